// Package database provides connection management, health checks,
// configuration loading, driver error classification, schema description,
// and SQL script execution on top of database/sql and the dbmap helpers.
package database
