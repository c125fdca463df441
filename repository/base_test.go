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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/okoshkin/dbmap"
	"github.com/okoshkin/dbmap/types"
)

type product struct {
	ID    int64  `db:"id,pk,auto"`
	Name  string `db:"name"`
	Price float64
	Qty   int64 `db:"qty"`
}

type memo struct {
	Body string `db:"body"`
}

func openRepoDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(sqliteshim.ShimName, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		price REAL NOT NULL,
		qty INTEGER NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	db := openRepoDB(t)
	repo := NewRepositoryWithDialect[product](db, dbmap.SQLite)

	if got := repo.Table(); got != "products" {
		t.Fatalf("Table = %s, want products", got)
	}
	if repo.Dialect() != dbmap.SQLite {
		t.Fatalf("Dialect = %v, want sqlite", repo.Dialect())
	}
	if repo.DB() != db {
		t.Fatal("DB should return the underlying connection")
	}

	p := &product{Name: "widget", Price: 9.99, Qty: 3}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("generated id was not written back")
	}

	got, err := repo.GetOne(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if got.Name != "widget" || got.Price != 9.99 || got.Qty != 3 {
		t.Errorf("GetOne = %+v", got)
	}

	more := []*product{
		{Name: "gadget", Price: 19.5, Qty: 10},
		{Name: "gizmo", Price: 2.25, Qty: 1},
	}
	if err := repo.Create(ctx, more...); err != nil {
		t.Fatalf("batch Create: %v", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("GetAll returned %d rows, want 3", len(all))
	}

	heavy, err := repo.Query(ctx, "qty >= ?", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(heavy) != 2 {
		t.Errorf("qty >= 3 matched %d rows, want 2", len(heavy))
	}

	named, err := repo.Query(ctx, "name = :name", map[string]interface{}{"name": "gizmo"})
	if err != nil {
		t.Fatalf("named Query: %v", err)
	}
	if len(named) != 1 || named[0].Qty != 1 {
		t.Errorf("named Query = %+v", named)
	}

	cheap, err := repo.List(ctx, types.NewQueryFilter("price < ?", 10.0))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cheap) != 2 {
		t.Errorf("price < 10 matched %d rows, want 2", len(cheap))
	}
	unfiltered, err := repo.List(ctx, nil)
	if err != nil {
		t.Fatalf("List nil filter: %v", err)
	}
	if len(unfiltered) != 3 {
		t.Errorf("nil filter matched %d rows, want 3", len(unfiltered))
	}

	p.Price = 12.5
	p.Qty = 4
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = repo.GetOne(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetOne after update: %v", err)
	}
	if got.Price != 12.5 || got.Qty != 4 || got.Name != "widget" {
		t.Errorf("updated row = %+v", got)
	}

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetOne(ctx, p.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetOne after delete = %v, want ErrNoRows", err)
	}
}

func TestRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	db := openRepoDB(t)
	repo := NewRepositoryWithDialect[product](db, dbmap.SQLite)

	err := repo.Upsert(ctx, nil, nil, &product{})
	if err == nil || !strings.Contains(err.Error(), "fields cannot be empty") {
		t.Fatalf("empty fields: %v", err)
	}
	if err := repo.Upsert(ctx, []string{"name"}, nil); err != nil {
		t.Fatalf("upsert with no entities should be a no-op, got %v", err)
	}

	first := &product{ID: 100, Name: "first", Price: 1, Qty: 1}
	if err := repo.Upsert(ctx, []string{"name", "price"}, nil, first); err != nil {
		t.Fatalf("insert path: %v", err)
	}

	second := &product{ID: 100, Name: "renamed", Price: 2, Qty: 9}
	if err := repo.Upsert(ctx, []string{"name", "price"}, nil, second); err != nil {
		t.Fatalf("update path: %v", err)
	}

	got, err := repo.GetOne(ctx, int64(100))
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if got.Name != "renamed" || got.Price != 2 {
		t.Errorf("upserted row = %+v", got)
	}
	if got.Qty != 1 {
		t.Errorf("qty = %d, want 1: columns outside fields must not change", got.Qty)
	}

	// Conflict on a unique column other than the key.
	cable := &product{Name: "cable", Price: 3, Qty: 2}
	if err := repo.Create(ctx, cable); err != nil {
		t.Fatalf("Create: %v", err)
	}
	byName := &product{ID: 500, Name: "cable", Price: 3, Qty: 8}
	if err := repo.Upsert(ctx, []string{"qty"}, []string{"name"}, byName); err != nil {
		t.Fatalf("upsert by name: %v", err)
	}
	rows, err := repo.Query(ctx, "name = ?", "cable")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || rows[0].Qty != 8 || rows[0].ID != cable.ID {
		t.Errorf("cable row = %+v, want original id with qty 8", rows)
	}
}

func TestRepositoryPage(t *testing.T) {
	ctx := context.Background()
	db := openRepoDB(t)
	repo := NewRepositoryWithDialect[product](db, dbmap.SQLite)

	batch := make([]*product, 0, 25)
	for i := 1; i <= 25; i++ {
		batch = append(batch, &product{
			Name:  fmt.Sprintf("item-%02d", i),
			Price: float64(i),
			Qty:   int64(i),
		})
	}
	if err := repo.Create(ctx, batch...); err != nil {
		t.Fatalf("seed: %v", err)
	}

	page, err := repo.Page(ctx, types.NewPageRequest(2, 10, nil, []string{"id ASC"}))
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if page.Total != 25 || page.Page != 2 || page.PageSize != 10 {
		t.Errorf("page meta = %+v", page)
	}
	if len(page.Items) != 10 || page.Items[0].Name != "item-11" {
		t.Errorf("page 2 starts at %s with %d items", page.Items[0].Name, len(page.Items))
	}
	if page.TotalPages() != 3 || !page.HasNext() {
		t.Errorf("TotalPages = %d, HasNext = %v", page.TotalPages(), page.HasNext())
	}

	last, err := repo.Page(ctx, types.NewPageRequest(3, 10, nil, []string{"id ASC"}))
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(last.Items) != 5 || last.HasNext() {
		t.Errorf("last page has %d items, HasNext = %v", len(last.Items), last.HasNext())
	}

	filtered, err := repo.Page(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("qty > ?", 20)))
	if err != nil {
		t.Fatalf("filtered page: %v", err)
	}
	if filtered.Total != 5 || len(filtered.Items) != 5 {
		t.Errorf("filtered total = %d, items = %d, want 5", filtered.Total, len(filtered.Items))
	}

	none, err := repo.Page(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("qty > ?", 999)))
	if err != nil {
		t.Fatalf("empty page: %v", err)
	}
	if none.Total != 0 || len(none.Items) != 0 {
		t.Errorf("empty page = %+v", none)
	}

	defaulted, err := repo.Page(ctx, nil)
	if err != nil {
		t.Fatalf("nil request: %v", err)
	}
	if defaulted.Page != 1 || defaulted.PageSize != 10 || defaulted.Total != 25 || len(defaulted.Items) != 10 {
		t.Errorf("defaulted page = %+v", defaulted)
	}
}

func TestRepositoryWithTx(t *testing.T) {
	ctx := context.Background()
	db := openRepoDB(t)
	repo := NewRepositoryWithDialect[product](db, dbmap.SQLite)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.CreateWithTx(ctx, tx, &product{Name: "ephemeral", Price: 1, Qty: 1}); err != nil {
		tx.Rollback()
		t.Fatalf("CreateWithTx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("rolled back insert is visible, %d rows", len(all))
	}

	tx, err = db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	durable := &product{Name: "durable", Price: 2, Qty: 2}
	if err := repo.CreateWithTx(ctx, tx, durable); err != nil {
		tx.Rollback()
		t.Fatalf("CreateWithTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if durable.ID == 0 {
		t.Fatal("generated id was not written back inside the transaction")
	}

	tx, err = db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	durable.Qty = 7
	if err := repo.UpdateWithTx(ctx, tx, durable); err != nil {
		tx.Rollback()
		t.Fatalf("UpdateWithTx: %v", err)
	}
	bump := &product{ID: durable.ID, Name: "durable-v2", Price: 9, Qty: 0}
	if err := repo.UpsertWithTx(ctx, tx, []string{"price"}, nil, bump); err != nil {
		tx.Rollback()
		t.Fatalf("UpsertWithTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := repo.GetOne(ctx, durable.ID)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if got.Name != "durable" || got.Price != 9 || got.Qty != 7 {
		t.Errorf("after tx update+upsert = %+v", got)
	}

	tx, err = db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.DeleteWithTx(ctx, tx, durable.ID); err != nil {
		tx.Rollback()
		t.Fatalf("DeleteWithTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	all, err = repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("row survived DeleteWithTx, %d rows", len(all))
	}
}

func TestRepositoryNoKey(t *testing.T) {
	ctx := context.Background()
	repo := NewRepositoryWithDialect[memo](nil, dbmap.SQLite)

	if _, err := repo.GetOne(ctx, 1); err == nil || !strings.Contains(err.Error(), "no primary key") {
		t.Errorf("GetOne: %v", err)
	}
	if err := repo.Update(ctx, &memo{Body: "x"}); err == nil || !strings.Contains(err.Error(), "no primary key") {
		t.Errorf("Update: %v", err)
	}
	if err := repo.Delete(ctx, 1); err == nil || !strings.Contains(err.Error(), "no primary key") {
		t.Errorf("Delete: %v", err)
	}
	err := repo.Upsert(ctx, []string{"body"}, nil, &memo{Body: "x"})
	if err == nil || !strings.Contains(err.Error(), "no primary key column for ON CONFLICT") {
		t.Errorf("Upsert: %v", err)
	}

	bad := NewRepositoryWithDialect[int](nil, dbmap.SQLite)
	if bad.Table() != "" {
		t.Errorf("Table for int = %q, want empty", bad.Table())
	}
	if _, err := bad.GetOne(ctx, 1); err == nil {
		t.Error("GetOne on an unmappable type should fail")
	}
}

func TestInsertSQL(t *testing.T) {
	m, err := modelFor(reflect.TypeOf(product{}))
	if err != nil {
		t.Fatalf("modelFor: %v", err)
	}
	entities := []*product{
		{Name: "a", Price: 1.5, Qty: 2},
		{Name: "b", Price: 2.5, Qty: 3},
	}
	query, args, err := insertSQL(m.table, m.insertColumns(), entities)
	if err != nil {
		t.Fatalf("insertSQL: %v", err)
	}
	want := "INSERT INTO products (name, price, qty) VALUES (?, ?, ?), (?, ?, ?)"
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if len(args) != 6 {
		t.Fatalf("got %d args, want 6", len(args))
	}
	if args[0] != "a" || args[4] != 2.5 {
		t.Errorf("args = %v", args)
	}

	_, _, err = insertSQL(m.table, m.insertColumns(), []*product{nil})
	if err == nil || !strings.Contains(err.Error(), "nil entity at index 0") {
		t.Errorf("nil entity: %v", err)
	}
}
