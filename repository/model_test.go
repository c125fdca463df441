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
	"reflect"
	"strings"
	"testing"
	"time"
)

type book struct {
	ID       int64 `db:"id,pk,auto"`
	Title    string
	AuthorID int64 `db:"author_id"`
	Draft    bool  `db:"-"`

	internalNote string
}

type legacyRow struct {
	Code string `db:"code,pk"`
}

func (legacyRow) TableName() string { return "legacy_rows_v2" }

type category struct {
	ID   int64
	Name string
}

type timestamps struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type article struct {
	ID    int64 `db:"id,pk,auto"`
	Title string
	timestamps
}

type note struct {
	Note string `db:"note"`
}

type draft struct {
	ID int64 `db:"id,pk"`
	*note
}

// AuditKey is exported because reflect cannot allocate a nil unexported
// embedded pointer.
type AuditKey struct {
	ID int64 `db:"id,pk,auto"`
}

type ledgerEntry struct {
	*AuditKey
	Amount int64 `db:"amount"`
}

type counter struct {
	ID uint32 `db:"id,pk,auto"`
	N  int64  `db:"n"`
}

type hiddenOnly struct {
	Secret string `db:"-"`
}

func columnNamesOf(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func findColumn(t *testing.T, m *tableModel, name string) column {
	t.Helper()
	for _, c := range m.cols {
		if c.name == name {
			return c
		}
	}
	t.Fatalf("column %s not found in %v", name, m.columnNames())
	return column{}
}

func TestModelForBasics(t *testing.T) {
	m, err := modelFor(reflect.TypeOf(book{}))
	if err != nil {
		t.Fatalf("modelFor: %v", err)
	}
	if m.table != "books" {
		t.Errorf("table = %s, want books", m.table)
	}
	want := []string{"id", "title", "author_id"}
	if !reflect.DeepEqual(m.columnNames(), want) {
		t.Errorf("columns = %v, want %v", m.columnNames(), want)
	}
	if m.pk.name != "id" || !m.pk.auto {
		t.Errorf("pk = %s (auto=%v), want auto id", m.pk.name, m.pk.auto)
	}
	if !m.generatedKey() {
		t.Error("generatedKey should be true for an auto int key")
	}

	ins := columnNamesOf(m.insertColumns())
	if !reflect.DeepEqual(ins, []string{"title", "author_id"}) {
		t.Errorf("insert columns = %v", ins)
	}
	vals := columnNamesOf(m.valueColumns())
	if !reflect.DeepEqual(vals, []string{"title", "author_id"}) {
		t.Errorf("value columns = %v", vals)
	}

	pm, err := modelFor(reflect.TypeOf((*book)(nil)))
	if err != nil {
		t.Fatalf("modelFor pointer type: %v", err)
	}
	if pm.table != "books" {
		t.Errorf("pointer type table = %s, want books", pm.table)
	}
}

func TestModelForTableNamer(t *testing.T) {
	m, err := modelFor(reflect.TypeOf(legacyRow{}))
	if err != nil {
		t.Fatalf("modelFor: %v", err)
	}
	if m.table != "legacy_rows_v2" {
		t.Errorf("table = %s, want legacy_rows_v2", m.table)
	}
	if m.pk.name != "code" {
		t.Errorf("pk = %s, want code", m.pk.name)
	}
	if m.generatedKey() {
		t.Error("a string key is never generated")
	}
}

func TestModelForDefaultKey(t *testing.T) {
	m, err := modelFor(reflect.TypeOf(category{}))
	if err != nil {
		t.Fatalf("modelFor: %v", err)
	}
	if m.table != "categories" {
		t.Errorf("table = %s, want categories", m.table)
	}
	if m.pk.name != "id" || m.pk.auto {
		t.Errorf("pk = %s (auto=%v), want plain id", m.pk.name, m.pk.auto)
	}
	ins := columnNamesOf(m.insertColumns())
	if !reflect.DeepEqual(ins, []string{"id", "name"}) {
		t.Errorf("insert columns = %v, id is not auto so it is written", ins)
	}
}

func TestModelForEmbedded(t *testing.T) {
	m, err := modelFor(reflect.TypeOf(article{}))
	if err != nil {
		t.Fatalf("modelFor: %v", err)
	}
	want := []string{"id", "title", "created_at", "updated_at"}
	if !reflect.DeepEqual(m.columnNames(), want) {
		t.Errorf("columns = %v, want %v", m.columnNames(), want)
	}

	created := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	a := article{ID: 1, Title: "intro", timestamps: timestamps{CreatedAt: created}}
	c := findColumn(t, m, "created_at")
	got, ok := fieldValue(reflect.ValueOf(a), c.index).(time.Time)
	if !ok || !got.Equal(created) {
		t.Errorf("created_at = %v, want %v", got, created)
	}
}

func TestModelForErrors(t *testing.T) {
	if _, err := modelFor(reflect.TypeOf(42)); err == nil {
		t.Error("int should not map to a table")
	}
	if _, err := modelFor(reflect.TypeOf(time.Now())); err == nil {
		t.Error("time.Time should not map to a table")
	}
	if _, err := modelFor(reflect.TypeOf(hiddenOnly{})); err == nil || !strings.Contains(err.Error(), "no persistable fields") {
		t.Errorf("hiddenOnly: %v", err)
	}
	if _, err := modelFor(reflect.TypeOf(struct{ ID int64 }{})); err == nil || !strings.Contains(err.Error(), "no table name") {
		t.Errorf("anonymous struct: %v", err)
	}
}

func TestFieldValueNilPointer(t *testing.T) {
	m, err := modelFor(reflect.TypeOf(draft{}))
	if err != nil {
		t.Fatalf("modelFor: %v", err)
	}
	c := findColumn(t, m, "note")

	d := draft{ID: 7}
	if v := fieldValue(reflect.ValueOf(d), c.index); v != nil {
		t.Errorf("nil embedded pointer should read as nil, got %v", v)
	}
	d.note = &note{Note: "hi"}
	if v := fieldValue(reflect.ValueOf(d), c.index); v != "hi" {
		t.Errorf("note = %v, want hi", v)
	}
}

func TestAssignKey(t *testing.T) {
	lm, err := modelFor(reflect.TypeOf(ledgerEntry{}))
	if err != nil {
		t.Fatalf("modelFor: %v", err)
	}
	e := &ledgerEntry{Amount: 5}
	assignKey(reflect.ValueOf(e).Elem(), lm.pk, 77)
	if e.AuditKey == nil || e.AuditKey.ID != 77 {
		t.Errorf("ledger key = %+v, want allocated with id 77", e.AuditKey)
	}

	cm, err := modelFor(reflect.TypeOf(counter{}))
	if err != nil {
		t.Fatalf("modelFor: %v", err)
	}
	if !cm.generatedKey() {
		t.Error("generatedKey should accept uint keys")
	}
	c := &counter{}
	assignKey(reflect.ValueOf(c).Elem(), cm.pk, 5)
	if c.ID != 5 {
		t.Errorf("counter id = %d, want 5", c.ID)
	}
}

func TestToSnake(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Book", "book"},
		{"ID", "id"},
		{"AuthorID", "author_id"},
		{"HTMLBody", "html_body"},
		{"APIKey", "api_key"},
		{"CreatedAt", "created_at"},
	}
	for _, c := range cases {
		if got := toSnake(c.in); got != c.want {
			t.Errorf("toSnake(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
