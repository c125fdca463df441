/*
 * Copyright 2025 okoshkin.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/okoshkin/dbmap"
)

// ColumnSchema describes one column of an existing table as reported by the
// database's own catalog.
type ColumnSchema struct {
	Name       string
	DataType   string
	Nullable   bool
	Default    sql.NullString
	PrimaryKey bool
}

// DescribeTable reads the column definitions of a table from the catalog:
// INFORMATION_SCHEMA on MySQL and PostgreSQL, PRAGMA table_info on SQLite.
// Columns come back in their table order.
func DescribeTable(ctx context.Context, db dbmap.Queryer, dialect dbmap.Dialect, table string) ([]ColumnSchema, error) {
	switch dialect {
	case dbmap.MySQL:
		return describeMySQLTable(ctx, db, table)
	case dbmap.Postgres:
		return describePostgresTable(ctx, db, table)
	case dbmap.SQLite:
		return describeSQLiteTable(ctx, db, table)
	}
	return nil, fmt.Errorf("unsupported dialect: %s", dialect)
}

func describeMySQLTable(ctx context.Context, db dbmap.Queryer, table string) ([]ColumnSchema, error) {
	const q = `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT, COLUMN_KEY
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnSchema
	for rows.Next() {
		var (
			c         ColumnSchema
			nullable  string
			columnKey string
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &c.Default, &columnKey); err != nil {
			return nil, err
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		c.PrimaryKey = columnKey == "PRI"
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func describePostgresTable(ctx context.Context, db dbmap.Queryer, table string) ([]ColumnSchema, error) {
	const q = `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnSchema
	for rows.Next() {
		var (
			c        ColumnSchema
			nullable string
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &c.Default); err != nil {
			return nil, err
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pks, err := postgresPrimaryKeys(ctx, db, table)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		if pks[cols[i].Name] {
			cols[i].PrimaryKey = true
		}
	}
	return cols, nil
}

func postgresPrimaryKeys(ctx context.Context, db dbmap.Queryer, table string) (map[string]bool, error) {
	const q = `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND tc.table_schema = current_schema() AND tc.table_name = $1`

	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pks := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		pks[name] = true
	}
	return pks, rows.Err()
}

func describeSQLiteTable(ctx context.Context, db dbmap.Queryer, table string) ([]ColumnSchema, error) {
	q := fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table))

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnSchema
	for rows.Next() {
		var (
			c       ColumnSchema
			cid     int
			notNull int
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &c.DataType, &notNull, &c.Default, &pk); err != nil {
			return nil, err
		}
		c.Nullable = notNull == 0
		c.PrimaryKey = pk > 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// ListTables names the user tables visible to the connection, sorted.
func ListTables(ctx context.Context, db dbmap.Queryer, dialect dbmap.Dialect) ([]string, error) {
	var q string
	switch dialect {
	case dbmap.MySQL:
		q = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
ORDER BY TABLE_NAME`
	case dbmap.Postgres:
		q = `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`
	case dbmap.SQLite:
		q = `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// DescribeQuery runs the query and reports the driver's metadata for its
// result columns without reading any rows. Parameters bind the same way as
// in the mapping helpers.
func DescribeQuery(ctx context.Context, db dbmap.Queryer, query string, args ...any) ([]dbmap.Column, error) {
	bound, vals, err := dbmap.Bind(query, args...)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, bound, vals...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]dbmap.Column, len(types))
	for i, ct := range types {
		nullable, ok := ct.Nullable()
		cols[i] = dbmap.Column{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			Nullable:     nullable,
			NullableOK:   ok,
		}
	}
	return cols, rows.Err()
}

// quoteIdent double-quotes an identifier for safe interpolation where the
// driver cannot bind one, doubling any embedded quotes.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
