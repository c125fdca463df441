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

package repository

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"github.com/samber/lo"
)

// TableNamer lets an entity type override the table name derived from its
// type name.
type TableNamer interface {
	TableName() string
}

// column describes one persistable field of an entity type. The pk option
// marks the primary key, the auto option marks database-generated columns
// that are omitted from inserts.
type column struct {
	name  string
	index []int
	typ   reflect.Type
	pk    bool
	auto  bool
}

// tableModel is the metadata the repository derives once per entity type:
// the table name, the persistable columns in declared field order, and the
// primary key column.
type tableModel struct {
	table string
	cols  []column
	pk    column
}

var (
	modelScannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	modelTimeType    = reflect.TypeOf(time.Time{})
)

// modelFor derives the table metadata for an entity type. The table name is
// TableName() when the type implements TableNamer, otherwise the pluralized
// snake_case type name. Columns are the exported fields, named by db tag or
// snake_case field name; a tag of "-" skips the field and anonymous embedded
// structs are flattened. Without an explicit pk tag option, the id column is
// the primary key.
func modelFor(t reflect.Type) (*tableModel, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == modelTimeType {
		return nil, fmt.Errorf("entity type %s is not a struct", t)
	}

	m := &tableModel{table: tableNameFor(t)}
	if m.table == "" {
		return nil, fmt.Errorf("entity type %s has no table name", t)
	}
	var walk func(t reflect.Type, index []int)
	walk = func(t reflect.Type, index []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" && !f.Anonymous {
				continue
			}
			name, opts := splitTag(f.Tag.Get("db"))
			if name == "-" {
				continue
			}
			idx := append(append([]int(nil), index...), i)
			if f.Anonymous && name == "" {
				ft := f.Type
				if ft.Kind() == reflect.Pointer {
					ft = ft.Elem()
				}
				if ft.Kind() == reflect.Struct && ft != modelTimeType &&
					!reflect.PointerTo(ft).Implements(modelScannerType) {
					walk(ft, idx)
					continue
				}
			}
			if name == "" {
				name = toSnake(f.Name)
			}
			c := column{name: name, index: idx, typ: f.Type}
			for _, opt := range opts {
				switch opt {
				case "pk":
					c.pk = true
				case "auto":
					c.auto = true
				}
			}
			m.cols = append(m.cols, c)
		}
	}
	walk(t, nil)

	if len(m.cols) == 0 {
		return nil, fmt.Errorf("entity type %s has no persistable fields", t)
	}
	for _, c := range m.cols {
		if c.pk {
			m.pk = c
			break
		}
	}
	if m.pk.name == "" {
		for _, c := range m.cols {
			if c.name == "id" {
				m.pk = c
				break
			}
		}
	}
	return m, nil
}

// tableNameFor resolves the table name for an entity type, preferring the
// TableNamer override.
func tableNameFor(t reflect.Type) string {
	if n, ok := reflect.New(t).Interface().(TableNamer); ok {
		return n.TableName()
	}
	if t.Name() == "" {
		return ""
	}
	return inflection.Plural(toSnake(t.Name()))
}

func (m *tableModel) columnNames() []string {
	return lo.Map(m.cols, func(c column, _ int) string { return c.name })
}

// insertColumns returns the columns written on INSERT, excluding
// database-generated ones.
func (m *tableModel) insertColumns() []column {
	return lo.Filter(m.cols, func(c column, _ int) bool { return !c.auto })
}

// valueColumns returns the columns updatable by UPDATE, excluding the
// primary key.
func (m *tableModel) valueColumns() []column {
	return lo.Filter(m.cols, func(c column, _ int) bool { return c.name != m.pk.name })
}

// generatedKey reports whether the primary key is database-generated into an
// integer field, so inserts can write the new id back to the entity.
func (m *tableModel) generatedKey() bool {
	if m.pk.name == "" || !m.pk.auto {
		return false
	}
	switch m.pk.typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// fieldValue reads the column value from an entity, yielding nil when a nil
// embedded pointer sits on the path.
func fieldValue(v reflect.Value, index []int) any {
	for _, i := range index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return nil
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return v.Interface()
}

// assignKey writes a generated id back into the entity's key field,
// allocating nil embedded pointers on the way.
func assignKey(v reflect.Value, c column, id int64) {
	for _, i := range c.index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	if !v.CanSet() {
		return
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(id)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(uint64(id))
	}
}

// splitTag separates a db struct tag into its name and option parts.
func splitTag(tag string) (name string, opts []string) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	return parts[0], parts[1:]
}

// toSnake converts a Go identifier to its column form, e.g. UserID to
// user_id.
func toSnake(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := s[i-1]
				nextLower := i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z'
				if prev < 'A' || prev > 'Z' || nextLower {
					sb.WriteByte('_')
				}
			}
			sb.WriteByte(byte(r) + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
