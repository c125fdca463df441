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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ErrProcUnsupported is returned when the current dialect has no stored
// procedure support.
var ErrProcUnsupported = errors.New("dbmap: dialect does not support stored procedures")

// procParamNames lists the bag's parameter names in a deterministic order:
// declared order for struct bags, sorted order for map bags. The order is
// the positional order the procedure receives.
func procParamNames(bag any) ([]string, error) {
	if bag == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(bag)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		fields := structParamFields(rv.Type())
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.name
		}
		return names, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("dbmap: procedure parameter bag must have string keys, got %s", rv.Type())
		}
		names := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			names = append(names, iter.Key().String())
		}
		sort.Strings(names)
		return names, nil
	}
	return nil, fmt.Errorf("dbmap: unsupported procedure parameter bag type %T", bag)
}

// procCallSQL builds the dialect's invocation text for a stored procedure
// with :name placeholders, one per bag parameter. MySQL uses CALL for both
// result-returning and void procedures; PostgreSQL set-returning functions
// are queried with SELECT * FROM while void procedures use CALL.
func procCallSQL(d Dialect, name string, params []string, returnsRows bool) (string, error) {
	if d == SQLite {
		return "", ErrProcUnsupported
	}
	if !validProcName(name) {
		return "", fmt.Errorf("dbmap: invalid procedure name %q", name)
	}
	for _, p := range params {
		if !validParamName(p) {
			return "", fmt.Errorf("dbmap: invalid procedure parameter name %q", p)
		}
	}

	var sb strings.Builder
	if d == Postgres && returnsRows {
		sb.WriteString("SELECT * FROM ")
	} else {
		sb.WriteString("CALL ")
	}
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte(':')
		sb.WriteString(p)
	}
	sb.WriteByte(')')
	return sb.String(), nil
}

func validProcName(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if !validParamName(part) {
			return false
		}
	}
	return true
}

func validParamName(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNameChar(name[i]) {
			return false
		}
	}
	return true
}

// QueryProc invokes a result-returning stored procedure (a set-returning
// function on PostgreSQL) and streams its rows like Query. The bag may be a
// struct, a map, or nil for a parameterless procedure.
func QueryProc[T any](ctx context.Context, s Queryer, name string, bag any) (*Rows[T], error) {
	call, err := procSQL(name, bag, true)
	if err != nil {
		return nil, err
	}
	return Query[T](ctx, s, call, bag)
}

// AllProc invokes a result-returning stored procedure and materializes
// every row.
func AllProc[T any](ctx context.Context, s Queryer, name string, bag any) ([]T, error) {
	rows, err := QueryProc[T](ctx, s, name, bag)
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

// ExecProc invokes a stored procedure that returns no result set.
func ExecProc(ctx context.Context, s Execer, name string, bag any) (sql.Result, error) {
	call, err := procSQL(name, bag, false)
	if err != nil {
		return nil, err
	}
	return Exec(ctx, s, call, bag)
}

// ProcTable invokes a result-returning stored procedure and buffers the
// result with its schema, like QueryTable.
func ProcTable(ctx context.Context, s Queryer, name string, bag any) (*Table, error) {
	call, err := procSQL(name, bag, true)
	if err != nil {
		return nil, err
	}
	return QueryTable(ctx, s, call, bag)
}

func procSQL(name string, bag any, returnsRows bool) (string, error) {
	params, err := procParamNames(bag)
	if err != nil {
		return "", err
	}
	return procCallSQL(CurrentDialect(), name, params, returnsRows)
}
