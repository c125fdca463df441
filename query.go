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
	"time"
)

// Query runs the query on s and returns a lazy typed stream over the
// result. A single map or struct argument binds by :name; other arguments
// pass through positionally. The caller owns the returned stream and must
// Close it.
//
// T may be a struct (columns matched to fields by db tag, snake_case name,
// or bare field name), a scalar for single-column results, or
// map[string]any for untyped rows.
func Query[T any](ctx context.Context, s Queryer, query string, args ...any) (*Rows[T], error) {
	bound, vals, err := bindArgs(CurrentDialect(), query, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := s.QueryContext(ctx, bound, vals...)
	logQuery(bound, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return newRows[T](rows)
}

// All runs the query and materializes every row into a slice. Convenient
// for results known to be small; use Query for anything unbounded.
func All[T any](ctx context.Context, s Queryer, query string, args ...any) ([]T, error) {
	rows, err := Query[T](ctx, s, query, args...)
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

// One runs the query and returns the first row, or sql.ErrNoRows when the
// result is empty. Extra rows are ignored.
func One[T any](ctx context.Context, s Queryer, query string, args ...any) (*T, error) {
	rows, err := Query[T](ctx, s, query, args...)
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

// Each runs the query and invokes fn once per row in result order,
// materializing rows one at a time. Returning an error from fn stops the
// iteration and propagates that error.
func Each[T any](ctx context.Context, s Queryer, query string, fn func(*T) error, args ...any) error {
	rows, err := Query[T](ctx, s, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		v, err := rows.Scan()
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// MapRows runs the query and returns every row as a column-keyed map, with
// driver byte slices normalized to strings.
func MapRows(ctx context.Context, s Queryer, query string, args ...any) ([]map[string]any, error) {
	return All[map[string]any](ctx, s, query, args...)
}

// SliceRows runs the query and returns the column names plus every row as a
// plain value slice in column order.
func SliceRows(ctx context.Context, s Queryer, query string, args ...any) ([]string, [][]any, error) {
	bound, vals, err := bindArgs(CurrentDialect(), query, args)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	rows, err := s.QueryContext(ctx, bound, vals...)
	logQuery(bound, time.Since(start), err)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var data [][]any
	for rows.Next() {
		values, err := scanRowSlice(rows, len(cols))
		if err != nil {
			return nil, nil, err
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, data, nil
}
