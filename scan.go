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
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	mapType     = reflect.TypeOf(map[string]any(nil))
)

type scanMode int

const (
	scanStruct scanMode = iota
	scanScalar
	scanMap
)

// mapping is the column-to-destination plan derived once per result set and
// shared by every row of that set. It is never cached across calls; a new
// query derives a new plan from its own column list.
type mapping struct {
	mode scanMode
	cols []string
	// fields holds one entry per column in column order, struct mode only.
	fields []fieldTarget
}

type fieldTarget struct {
	index   []int
	convert ConvertFunc
}

// newMapping builds the plan for scanning the given columns into values of
// type t. Every column must find a destination; a column with no matching
// field is an error rather than a silent drop.
func newMapping(t reflect.Type, columns []string) (*mapping, error) {
	switch {
	case isScalarType(t):
		if len(columns) != 1 {
			return nil, fmt.Errorf("dbmap: scanning into %s requires exactly 1 column, result has %d", t, len(columns))
		}
		return &mapping{mode: scanScalar, cols: columns}, nil
	case t.Kind() == reflect.Map:
		if t != mapType {
			return nil, fmt.Errorf("dbmap: map destination must be map[string]any, got %s", t)
		}
		return &mapping{mode: scanMap, cols: columns}, nil
	case t.Kind() == reflect.Struct:
		paths := fieldPaths(t)
		fields := make([]fieldTarget, len(columns))
		for i, col := range columns {
			idx, ok := paths[strings.ToLower(col)]
			if !ok {
				return nil, fmt.Errorf("dbmap: no field in %s matches column %q", t, col)
			}
			ft := fieldTarget{index: idx}
			fieldType := fieldTypeByIndex(t, idx)
			if !reflect.PointerTo(fieldType).Implements(scannerType) {
				ft.convert = converterFor(fieldType)
			}
			fields[i] = ft
		}
		return &mapping{mode: scanStruct, cols: columns, fields: fields}, nil
	}
	return nil, fmt.Errorf("dbmap: unsupported destination type %s", t)
}

// isScalarType reports whether t is scanned as a single column: anything
// database/sql can fill directly, plus types with their own Scanner.
func isScalarType(t reflect.Type) bool {
	if reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	if t == timeType {
		return true
	}
	if t.Kind() == reflect.Pointer {
		return isScalarType(t.Elem())
	}
	return t.Kind() != reflect.Struct && t.Kind() != reflect.Map
}

// fieldPaths maps lowercased column names to field index paths. Anonymous
// embedded structs flatten into their parent; breadth-first traversal keeps
// the shallowest field when names collide, matching Go's own promotion
// rules. Each field is reachable under its db tag name or snake_case name,
// plus its bare field name when that differs.
func fieldPaths(t reflect.Type) map[string][]int {
	paths := make(map[string][]int)
	type node struct {
		t     reflect.Type
		index []int
	}
	queue := []node{{t: t}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for i := 0; i < n.t.NumField(); i++ {
			f := n.t.Field(i)
			if f.PkgPath != "" && !f.Anonymous {
				continue
			}
			name, _ := parseDBTag(f.Tag.Get("db"))
			if name == "-" {
				continue
			}
			idx := append(append([]int(nil), n.index...), i)
			if f.Anonymous && name == "" {
				base := f.Type
				if base.Kind() == reflect.Pointer {
					base = base.Elem()
				}
				if base.Kind() == reflect.Struct && base != timeType && !reflect.PointerTo(base).Implements(scannerType) {
					queue = append(queue, node{t: base, index: idx})
					continue
				}
			}
			if name == "" {
				name = snakeCase(f.Name)
			}
			addPath(paths, name, idx)
			addPath(paths, f.Name, idx)
		}
	}
	return paths
}

func addPath(paths map[string][]int, name string, idx []int) {
	key := strings.ToLower(name)
	if _, exists := paths[key]; !exists {
		paths[key] = idx
	}
}

func fieldTypeByIndex(t reflect.Type, index []int) reflect.Type {
	for _, i := range index {
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		t = t.Field(i).Type
	}
	return t
}

// fieldByIndexAlloc resolves an index path for writing, allocating any nil
// pointers it crosses so fields of pointer-embedded structs stay settable.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v
}

type deferredConvert struct {
	raw  *any
	dest reflect.Value
	fn   ConvertFunc
}

// scanRow fills dest, which must be an addressable value of the mapping's
// destination type, from the current row.
func (m *mapping) scanRow(rows *sql.Rows, dest reflect.Value) error {
	switch m.mode {
	case scanScalar:
		return rows.Scan(dest.Addr().Interface())
	case scanMap:
		rec, err := scanRowMap(rows, m.cols)
		if err != nil {
			return err
		}
		dest.Set(reflect.ValueOf(rec))
		return nil
	}

	targets := make([]any, len(m.fields))
	var deferred []deferredConvert
	for i, ft := range m.fields {
		fv := fieldByIndexAlloc(dest, ft.index)
		if ft.convert != nil {
			raw := new(any)
			targets[i] = raw
			deferred = append(deferred, deferredConvert{raw: raw, dest: fv, fn: ft.convert})
			continue
		}
		targets[i] = fv.Addr().Interface()
	}
	if err := rows.Scan(targets...); err != nil {
		return err
	}
	for _, d := range deferred {
		converted, err := d.fn(*d.raw)
		if err != nil {
			return err
		}
		if err := assignField(d.dest, converted); err != nil {
			return err
		}
	}
	return nil
}

func assignField(dest reflect.Value, v any) error {
	if v == nil {
		dest.Set(reflect.Zero(dest.Type()))
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(dest.Type()) {
		dest.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(dest.Type()) {
		dest.Set(rv.Convert(dest.Type()))
		return nil
	}
	return fmt.Errorf("dbmap: cannot assign converted %s to field of type %s", rv.Type(), dest.Type())
}

// scanRowMap reads the current row into a fresh map keyed by column name.
func scanRowMap(rows *sql.Rows, cols []string) (map[string]any, error) {
	values, err := scanRowSlice(rows, len(cols))
	if err != nil {
		return nil, err
	}
	rec := make(map[string]any, len(cols))
	for i, col := range cols {
		rec[col] = values[i]
	}
	return rec, nil
}

// scanRowSlice reads the current row into a generic value slice, unwrapping
// driver values into plain Go types.
func scanRowSlice(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	targets := make([]any, n)
	for i := range values {
		targets[i] = &values[i]
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = normalizeValue(v)
	}
	return values, nil
}

// normalizeValue unwraps the raw representations drivers hand back so
// untyped results hold printable Go values: byte slices become strings and
// driver.Valuer implementations collapse to their driver value.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case sql.RawBytes:
		return string(t)
	case []byte:
		return string(t)
	case driver.Valuer:
		if dv, err := t.Value(); err == nil {
			return dv
		}
	}
	return v
}
