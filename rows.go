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
	"database/sql"
	"reflect"
)

// Rows is a lazy, typed view over a result set. Rows are materialized one
// at a time as Next advances, so a large result never has to fit in memory
// at once. The column mapping is derived when the query runs and reused for
// every row of the set.
//
// Callers must Close the stream unless they drain it; Close is idempotent.
type Rows[T any] struct {
	rows *sql.Rows
	m    *mapping
	err  error
}

// newRows derives the mapping for the result set and wraps it. The
// underlying rows are closed on a mapping failure so the caller never has
// to clean up a stream it did not receive.
func newRows[T any](rows *sql.Rows) (*Rows[T], error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	m, err := newMapping(reflect.TypeFor[T](), cols)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &Rows[T]{rows: rows, m: m}, nil
}

// Next advances to the next row. It returns false at the end of the set or
// after an error; check Err when it returns false.
func (r *Rows[T]) Next() bool {
	if r.err != nil {
		return false
	}
	return r.rows.Next()
}

// Scan materializes the current row into a new T.
func (r *Rows[T]) Scan() (*T, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := new(T)
	if err := r.m.scanRow(r.rows, reflect.ValueOf(out).Elem()); err != nil {
		r.err = err
		return nil, err
	}
	return out, nil
}

// Columns returns the result set's column names in result order.
func (r *Rows[T]) Columns() []string {
	cols := make([]string, len(r.m.cols))
	copy(cols, r.m.cols)
	return cols
}

// Err returns the first error hit while iterating or scanning, if any.
func (r *Rows[T]) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

// Close releases the underlying result set.
func (r *Rows[T]) Close() error {
	return r.rows.Close()
}
