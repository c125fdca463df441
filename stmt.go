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
	"fmt"
	"strings"
	"time"
)

// Stmt is a prepared statement plus the named-parameter shape compiled out
// of its query text. Preparing once and executing many times skips both the
// text rewrite and the driver's parse on every subsequent run.
type Stmt struct {
	stmt  *sql.Stmt
	query string
	names []string
}

// Prepare compiles the :name placeholders in query for the current dialect
// and prepares the rewritten text on p. A query without named placeholders
// prepares as-is and executes with positional arguments.
//
// Because the statement shape is fixed at prepare time, slice expansion is
// not available here; use Query or Exec for IN (:ids) queries.
func Prepare(ctx context.Context, p Preparer, query string) (*Stmt, error) {
	bound, names, err := compileNamed(CurrentDialect(), query)
	if err != nil {
		return nil, err
	}
	stmt, err := p.PrepareContext(ctx, bound)
	if err != nil {
		return nil, err
	}
	return &Stmt{stmt: stmt, query: bound, names: names}, nil
}

// Close releases the driver-side statement.
func (s *Stmt) Close() error {
	return s.stmt.Close()
}

// resolveArgs turns the caller's arguments into the positional list the
// prepared text expects. Named statements take exactly one bag argument.
func (s *Stmt) resolveArgs(args []any) ([]any, error) {
	if len(s.names) == 0 {
		return args, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("dbmap: named statement takes exactly one parameter bag, got %d arguments", len(args))
	}
	vals, err := bagValues(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, len(s.names))
	for i, name := range s.names {
		v, ok := vals[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("dbmap: missing named parameter %q", name)
		}
		out[i] = v
	}
	return out, nil
}

// QueryStmt runs the prepared statement and returns a lazy typed stream,
// with the same destination rules as Query.
func QueryStmt[T any](ctx context.Context, s *Stmt, args ...any) (*Rows[T], error) {
	vals, err := s.resolveArgs(args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := s.stmt.QueryContext(ctx, vals...)
	logQuery(s.query, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return newRows[T](rows)
}

// AllStmt runs the prepared statement and materializes every row.
func AllStmt[T any](ctx context.Context, s *Stmt, args ...any) ([]T, error) {
	rows, err := QueryStmt[T](ctx, s, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := rows.Scan()
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// OneStmt runs the prepared statement and returns the first row, or
// sql.ErrNoRows when the result is empty.
func OneStmt[T any](ctx context.Context, s *Stmt, args ...any) (*T, error) {
	rows, err := QueryStmt[T](ctx, s, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return rows.Scan()
}

// ExecStmt runs the prepared statement as a non-query.
func ExecStmt(ctx context.Context, s *Stmt, args ...any) (sql.Result, error) {
	vals, err := s.resolveArgs(args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.stmt.ExecContext(ctx, vals...)
	logQuery(s.query, time.Since(start), err)
	return res, err
}

// compileNamed rewrites :name placeholders to the dialect's positional form
// and returns the placeholder names in order. Quoting, comments, and the
// "::" escape follow the same rules as BindNamed.
func compileNamed(d Dialect, query string) (string, []string, error) {
	var (
		sb    strings.Builder
		names []string
	)
	sb.Grow(len(query) + 8)

	const (
		plain = iota
		singleQuote
		doubleQuote
		lineComment
		blockComment
	)
	state := plain

	for i := 0; i < len(query); {
		c := query[i]
		switch state {
		case singleQuote:
			sb.WriteByte(c)
			if c == '\'' {
				state = plain
			}
			i++
			continue
		case doubleQuote:
			sb.WriteByte(c)
			if c == '"' {
				state = plain
			}
			i++
			continue
		case lineComment:
			sb.WriteByte(c)
			if c == '\n' {
				state = plain
			}
			i++
			continue
		case blockComment:
			if c == '*' && i+1 < len(query) && query[i+1] == '/' {
				sb.WriteString("*/")
				state = plain
				i += 2
				continue
			}
			sb.WriteByte(c)
			i++
			continue
		}

		switch {
		case c == '\'':
			state = singleQuote
		case c == '"':
			state = doubleQuote
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			state = lineComment
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			state = blockComment
		case c == ':':
			if i+1 < len(query) && query[i+1] == ':' {
				sb.WriteString("::")
				i += 2
				continue
			}
			if i+1 >= len(query) || !isNameStart(query[i+1]) {
				break
			}
			j := i + 1
			for j < len(query) && isNameChar(query[j]) {
				j++
			}
			names = append(names, query[i+1:j])
			d.appendPlaceholder(&sb, len(names))
			i = j
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String(), names, nil
}
