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

// BindNamed rewrites the :name placeholders in query against the given
// parameter bag and returns the rewritten query plus the positional argument
// list in placeholder order. The bag is either a map with string keys or a
// struct; struct fields are named by their db tag, falling back to the
// snake_case field name. Lookup is case-insensitive.
//
// Slice and array values expand into one placeholder per element, so
// "WHERE id IN (:ids)" works directly; an empty slice expands to NULL,
// which matches no rows. A literal "::" passes through untouched for
// PostgreSQL casts, and text inside string literals or SQL comments is
// never rewritten.
func BindNamed(d Dialect, query string, bag any) (string, []any, error) {
	vals, err := bagValues(bag)
	if err != nil {
		return "", nil, err
	}

	var (
		sb       strings.Builder
		out      []any
		n        int
		replaced int
	)
	sb.Grow(len(query) + 16)

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
			name := query[i+1 : j]
			v, ok := vals[strings.ToLower(name)]
			if !ok {
				return "", nil, fmt.Errorf("dbmap: missing named parameter %q", name)
			}
			n, out = appendBound(d, &sb, v, n, out)
			replaced++
			i = j
			continue
		}
		sb.WriteByte(c)
		i++
	}

	if replaced == 0 && len(vals) > 0 {
		return "", nil, fmt.Errorf("dbmap: parameter bag given but query has no :name placeholders")
	}
	return sb.String(), out, nil
}

// appendBound writes the placeholder(s) for a single bound value, expanding
// slices element-wise.
func appendBound(d Dialect, sb *strings.Builder, v any, n int, out []any) (int, []any) {
	if isExpandable(v) {
		rv := reflect.ValueOf(v)
		if rv.Len() == 0 {
			sb.WriteString("NULL")
			return n, out
		}
		for k := 0; k < rv.Len(); k++ {
			if k > 0 {
				sb.WriteString(", ")
			}
			n++
			d.appendPlaceholder(sb, n)
			out = append(out, rv.Index(k).Interface())
		}
		return n, out
	}
	n++
	d.appendPlaceholder(sb, n)
	return n, append(out, v)
}

// Bind applies the helper binding rules to a query under the current
// dialect and returns driver-ready text plus positional arguments. Exposed
// for callers that need the rewritten form without running it.
func Bind(query string, args ...any) (string, []any, error) {
	return bindArgs(CurrentDialect(), query, args)
}

// Rebind rewrites ? placeholders into the dialect's positional form, so SQL
// written with ? runs unchanged on PostgreSQL. Placeholders inside string
// literals and comments are left alone; for dialects that use ? natively the
// query is returned as is.
func Rebind(d Dialect, query string) string {
	if d != Postgres || !strings.ContainsRune(query, '?') {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)

	const (
		plain = iota
		singleQuote
		doubleQuote
		lineComment
		blockComment
	)
	state := plain
	n := 0

	for i := 0; i < len(query); {
		c := query[i]
		switch state {
		case singleQuote:
			if c == '\'' {
				state = plain
			}
		case doubleQuote:
			if c == '"' {
				state = plain
			}
		case lineComment:
			if c == '\n' {
				state = plain
			}
		case blockComment:
			if c == '*' && i+1 < len(query) && query[i+1] == '/' {
				sb.WriteString("*/")
				state = plain
				i += 2
				continue
			}
		default:
			switch {
			case c == '\'':
				state = singleQuote
			case c == '"':
				state = doubleQuote
			case c == '-' && i+1 < len(query) && query[i+1] == '-':
				state = lineComment
			case c == '/' && i+1 < len(query) && query[i+1] == '*':
				state = blockComment
			case c == '?':
				n++
				d.appendPlaceholder(&sb, n)
				i++
				continue
			}
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String()
}

// bindArgs is the entry point the helpers use. A single map or struct
// argument is treated as a named parameter bag; a single nil argument means
// "no parameters" and is dropped; anything else passes through positionally
// for queries written with the driver's native placeholders.
func bindArgs(d Dialect, query string, args []any) (string, []any, error) {
	if len(args) != 1 {
		return query, args, nil
	}
	if args[0] == nil {
		return query, nil, nil
	}
	if !isBag(args[0]) {
		return query, args, nil
	}
	return BindNamed(d, query, args[0])
}

// isBag reports whether v should be treated as a named parameter bag rather
// than a positional value. Values that carry their own SQL representation
// (driver.Valuer, []byte, sql.NamedArg, time.Time) are never bags.
func isBag(v any) bool {
	switch v.(type) {
	case driver.Valuer, sql.NamedArg, *sql.NamedArg, []byte, time.Time, *time.Time:
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	case reflect.Struct:
		return rv.Type() != reflect.TypeOf(time.Time{})
	}
	return false
}

// isExpandable reports whether v is a slice or array that should expand into
// one placeholder per element.
func isExpandable(v any) bool {
	switch v.(type) {
	case driver.Valuer, []byte:
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// bagValues flattens a parameter bag into a lookup table keyed by the
// lowercased parameter name.
func bagValues(bag any) (map[string]any, error) {
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
	case reflect.Map:
		vals := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			vals[strings.ToLower(iter.Key().String())] = iter.Value().Interface()
		}
		return vals, nil
	case reflect.Struct:
		fields := structParamFields(rv.Type())
		vals := make(map[string]any, len(fields))
		for _, f := range fields {
			fv, ok := fieldByIndexRead(rv, f.index)
			if !ok {
				continue
			}
			vals[strings.ToLower(f.name)] = fv.Interface()
			if alias := strings.ToLower(f.fieldName); alias != strings.ToLower(f.name) {
				if _, exists := vals[alias]; !exists {
					vals[alias] = fv.Interface()
				}
			}
		}
		return vals, nil
	}
	return nil, fmt.Errorf("dbmap: unsupported parameter bag type %T", bag)
}

// paramField is one bindable field of a struct bag, in declared order.
type paramField struct {
	name      string
	fieldName string
	index     []int
}

// structParamFields lists the bindable fields of a struct type in declared
// order, flattening anonymous embedded structs. The declared order is what
// gives stored-procedure calls their deterministic parameter order.
func structParamFields(t reflect.Type) []paramField {
	var fields []paramField
	var walk func(t reflect.Type, index []int)
	walk = func(t reflect.Type, index []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" && !f.Anonymous {
				continue
			}
			name, _ := parseDBTag(f.Tag.Get("db"))
			if name == "-" {
				continue
			}
			idx := append(append([]int(nil), index...), i)
			if f.Anonymous && name == "" {
				base := f.Type
				if base.Kind() == reflect.Pointer {
					base = base.Elem()
				}
				if base.Kind() == reflect.Struct && base != reflect.TypeOf(time.Time{}) {
					walk(base, idx)
					continue
				}
			}
			if name == "" {
				name = snakeCase(f.Name)
			}
			fields = append(fields, paramField{name: name, fieldName: f.Name, index: idx})
		}
	}
	walk(t, nil)
	return fields
}

// fieldByIndexRead resolves an index path without allocating; it reports
// false when a nil pointer sits on the path.
func fieldByIndexRead(v reflect.Value, index []int) (reflect.Value, bool) {
	for _, i := range index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, true
}

// parseDBTag splits a db struct tag into its name and option parts.
func parseDBTag(tag string) (name string, opts []string) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	return parts[0], parts[1:]
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// snakeCase converts a Go field name to its column form, e.g. UserID to
// user_id and HTTPStatus to http_status.
func snakeCase(s string) string {
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
