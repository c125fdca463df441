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

package dbmap

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"
)

// Queryer is the read side of a database client. It is satisfied by
// *sql.DB, *sql.Tx, and *sql.Conn.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is the write side of a database client. It is satisfied by
// *sql.DB, *sql.Tx, and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Preparer creates prepared statements. It is satisfied by *sql.DB,
// *sql.Tx, and *sql.Conn.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Beginner starts transactions. It is satisfied by *sql.DB and *sql.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Session is the connection-or-transaction argument every helper in this
// package accepts. Passing a *sql.Tx runs the operation inside that
// transaction; passing a *sql.DB runs it on the pool directly.
type Session interface {
	Queryer
	Execer
	Preparer
}

var (
	_ Session  = (*sql.DB)(nil)
	_ Session  = (*sql.Tx)(nil)
	_ Session  = (*sql.Conn)(nil)
	_ Beginner = (*sql.DB)(nil)
	_ Beginner = (*sql.Conn)(nil)
)

// Dialect selects the placeholder format and the stored-procedure calling
// convention used when rewriting named parameters.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Valid reports whether d is one of the supported dialects.
func (d Dialect) Valid() bool {
	switch d {
	case MySQL, Postgres, SQLite:
		return true
	}
	return false
}

// appendPlaceholder writes the n-th (1-based) positional placeholder.
func (d Dialect) appendPlaceholder(sb *strings.Builder, n int) {
	if d == Postgres {
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(n))
		return
	}
	sb.WriteByte('?')
}

var (
	defaultDialect   = MySQL
	defaultDialectMu sync.RWMutex
)

// SetDialect sets the package-level dialect used by the helpers when binding
// named parameters and building procedure calls. database.InitDB calls this
// from the connection configuration; standalone users of the helpers should
// set it once at startup.
func SetDialect(d Dialect) {
	defaultDialectMu.Lock()
	defaultDialect = d
	defaultDialectMu.Unlock()
}

// CurrentDialect returns the package-level dialect.
func CurrentDialect() Dialect {
	defaultDialectMu.RLock()
	d := defaultDialect
	defaultDialectMu.RUnlock()
	return d
}
