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
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// ConvertFunc turns a raw driver value into a value assignable to the field
// type it is registered for. Returning nil sets the field to its zero value.
type ConvertFunc func(src any) (any, error)

var (
	convertersMu sync.RWMutex
	converters   = make(map[reflect.Type]ConvertFunc)
)

// RegisterConverter installs a converter for fields of the given type. The
// row materializer uses it whenever a destination field of that exact type
// does not implement sql.Scanner itself, which lets drivers that return
// text or integers for richer types still fill typed fields. Registering
// nil removes a previous converter.
func RegisterConverter(t reflect.Type, fn ConvertFunc) {
	convertersMu.Lock()
	defer convertersMu.Unlock()
	if fn == nil {
		delete(converters, t)
		return
	}
	converters[t] = fn
}

// converterFor looks up the converter registered for t, if any.
func converterFor(t reflect.Type) ConvertFunc {
	convertersMu.RLock()
	fn := converters[t]
	convertersMu.RUnlock()
	return fn
}

// timeFormats are tried in order when a time column arrives as text,
// covering the text forms the supported drivers write, including the Go
// default format the pure-Go sqlite driver stores.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// convertTime handles the representations the supported drivers produce for
// time columns: native time.Time, text, and unix seconds.
func convertTime(src any) (any, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v, nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	case int64:
		return time.Unix(v, 0), nil
	}
	return nil, fmt.Errorf("dbmap: cannot convert %T into time.Time", src)
}

func parseTime(s string) (any, error) {
	// The pure-Go sqlite driver stores time.Time via String(), which can
	// carry a monotonic clock suffix that no layout accepts.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("dbmap: unrecognized time value %q", s)
}

func init() {
	RegisterConverter(reflect.TypeOf(time.Time{}), convertTime)
}
