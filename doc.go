// Package dbmap provides thin mapping helpers over database/sql: named
// parameter binding, reflection-based row materialization into structs,
// scalars, and maps, lazy typed result streams, tabular results with
// schema, stored procedure calls, prepared statement wrappers, and
// statement logging. It offers no query builder and manages no connections;
// query text stays with the caller and pooling with the driver.
package dbmap
