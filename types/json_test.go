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
	"encoding/json"
	"reflect"
	"testing"
)

func TestJsonObjectScan(t *testing.T) {
	var obj JsonObject
	if err := obj.Scan([]byte(`{"a":1,"b":"x"}`)); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	want := JsonObject{"a": float64(1), "b": "x"}
	if !reflect.DeepEqual(obj, want) {
		t.Errorf("obj = %v, want %v", obj, want)
	}

	var fromString JsonObject
	if err := fromString.Scan(`{"a":2}`); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if fromString["a"] != float64(2) {
		t.Errorf("a = %v, want 2", fromString["a"])
	}

	var fromNull JsonObject
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if fromNull == nil || len(fromNull) != 0 {
		t.Errorf("NULL should scan to an empty object, got %v", fromNull)
	}

	if err := obj.Scan(42); err == nil {
		t.Error("scanning an int should fail")
	}
}

func TestJsonObjectValue(t *testing.T) {
	v, err := JsonObject{"a": 1, "b": "x"}.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if string(v.([]byte)) != `{"a":1,"b":"x"}` {
		t.Errorf("Value = %s", v)
	}

	nv, err := JsonObject(nil).Value()
	if err != nil || nv != nil {
		t.Errorf("nil object Value = %v, %v, want NULL", nv, err)
	}
}

func TestJsonArrayScan(t *testing.T) {
	var arr JsonArray
	if err := arr.Scan([]byte(`[{"id":1},{"id":2}]`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(arr) != 2 || arr[1]["id"] != float64(2) {
		t.Errorf("arr = %v", arr)
	}

	var fromNull JsonArray
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if fromNull == nil || len(fromNull) != 0 {
		t.Errorf("NULL should scan to an empty array, got %v", fromNull)
	}

	v, err := arr.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if string(v.([]byte)) != `[{"id":1},{"id":2}]` {
		t.Errorf("Value = %s", v)
	}
	if nv, err := JsonArray(nil).Value(); err != nil || nv != nil {
		t.Errorf("nil array Value = %v, %v, want NULL", nv, err)
	}
}

type prefs struct {
	Theme string `json:"theme"`
	Beta  bool   `json:"beta"`
}

func TestJSONWrapper(t *testing.T) {
	j := NewJSON(prefs{Theme: "dark", Beta: true})
	if !j.Valid {
		t.Fatal("NewJSON should be valid")
	}
	v, err := j.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if string(v.([]byte)) != `{"theme":"dark","beta":true}` {
		t.Errorf("Value = %s", v)
	}

	var scanned JSON[prefs]
	if err := scanned.Scan(`{"theme":"light","beta":false}`); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !scanned.Valid || scanned.Data.Theme != "light" {
		t.Errorf("scanned = %+v", scanned)
	}

	if err := scanned.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if scanned.Valid || scanned.Data.Theme != "" {
		t.Errorf("NULL scan = %+v, want zeroed", scanned)
	}

	if nv, err := (JSON[prefs]{}).Value(); err != nil || nv != nil {
		t.Errorf("invalid Value = %v, %v, want NULL", nv, err)
	}
}

func TestJSONMarshalJSON(t *testing.T) {
	type payload struct {
		Prefs JSON[prefs] `json:"prefs"`
	}

	b, err := json.Marshal(payload{Prefs: NewJSON(prefs{Theme: "dark"})})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"prefs":{"theme":"dark","beta":false}}` {
		t.Errorf("marshal = %s", b)
	}

	b, err = json.Marshal(payload{})
	if err != nil {
		t.Fatalf("marshal zero: %v", err)
	}
	if string(b) != `{"prefs":null}` {
		t.Errorf("marshal zero = %s", b)
	}

	var out payload
	if err := json.Unmarshal([]byte(`{"prefs":{"theme":"sys","beta":true}}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Prefs.Valid || out.Prefs.Data.Theme != "sys" || !out.Prefs.Data.Beta {
		t.Errorf("unmarshal = %+v", out.Prefs)
	}
	if err := json.Unmarshal([]byte(`{"prefs":null}`), &out); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if out.Prefs.Valid {
		t.Error("null should unmarshal to invalid")
	}
}
