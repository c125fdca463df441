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

package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JsonObject is a convenience type for JSON columns mapped to objects.
type JsonObject map[string]interface{}

// JsonArray is a convenience type for JSON columns mapped to arrays.
type JsonArray []JsonObject

// Value implements driver.Valuer for JsonObject.
func (j JsonObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JsonObject. NULL scans to an empty
// object.
func (j *JsonObject) Scan(value interface{}) error {
	if value == nil {
		*j = make(JsonObject)
		return nil
	}
	b, err := jsonBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, j)
}

// Value implements driver.Valuer for JsonArray.
func (j JsonArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JsonArray. NULL scans to an empty array.
func (j *JsonArray) Scan(value interface{}) error {
	if value == nil {
		*j = make(JsonArray, 0)
		return nil
	}
	b, err := jsonBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, j)
}

// JSON wraps an arbitrary value for storage in a JSON column. Valid is
// false when the column was NULL.
type JSON[T any] struct {
	Data  T
	Valid bool
}

// NewJSON wraps v as a non-NULL JSON column value.
func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{Data: v, Valid: true}
}

// Value implements driver.Valuer for JSON.
func (j JSON[T]) Value() (driver.Value, error) {
	if !j.Valid {
		return nil, nil
	}
	return json.Marshal(j.Data)
}

// Scan implements sql.Scanner for JSON.
func (j *JSON[T]) Scan(value interface{}) error {
	if value == nil {
		var zero T
		j.Data, j.Valid = zero, false
		return nil
	}
	b, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, &j.Data); err != nil {
		return err
	}
	j.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler, encoding NULL as null.
func (j JSON[T]) MarshalJSON() ([]byte, error) {
	if !j.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(j.Data)
}

// UnmarshalJSON implements json.Unmarshaler, decoding null as NULL.
func (j *JSON[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		var zero T
		j.Data, j.Valid = zero, false
		return nil
	}
	if err := json.Unmarshal(b, &j.Data); err != nil {
		return err
	}
	j.Valid = true
	return nil
}

// jsonBytes normalizes the raw driver value of a JSON column. Text drivers
// hand back strings, binary ones byte slices.
func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("cannot scan %T into a JSON column", value)
}
