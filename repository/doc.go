// Package repository provides a generic repository and service facade over
// the root mapping helpers for CRUD operations, querying, pagination,
// transactions, and upsert support.
package repository
