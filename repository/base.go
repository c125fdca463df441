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
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/okoshkin/dbmap"
	"github.com/okoshkin/dbmap/types"
)

type baseRepositoryImpl[T any] struct {
	db      *sql.DB
	dialect dbmap.Dialect

	once  sync.Once
	model *tableModel
	err   error
}

// NewRepository returns a generic repository backed by the provided
// connection, building SQL for the package-level dialect in effect at call
// time.
func NewRepository[T any](db *sql.DB) Repository[T] {
	return NewRepositoryWithDialect[T](db, dbmap.CurrentDialect())
}

// NewRepositoryWithDialect returns a generic repository that builds SQL for
// the given dialect.
func NewRepositoryWithDialect[T any](db *sql.DB, dialect dbmap.Dialect) Repository[T] {
	return &baseRepositoryImpl[T]{db: db, dialect: dialect}
}

func (r *baseRepositoryImpl[T]) Dialect() dbmap.Dialect { return r.dialect }

func (r *baseRepositoryImpl[T]) DB() *sql.DB { return r.db }

// Table returns the resolved table name, or "" when the entity type cannot
// be mapped.
func (r *baseRepositoryImpl[T]) Table() string {
	m, err := r.tableModel()
	if err != nil {
		return ""
	}
	return m.table
}

func (r *baseRepositoryImpl[T]) tableModel() (*tableModel, error) {
	r.once.Do(func() {
		r.model, r.err = modelFor(reflect.TypeOf((*T)(nil)).Elem())
	})
	return r.model, r.err
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	m, err := r.tableModel()
	if err != nil {
		return nil, err
	}
	if m.pk.name == "" {
		return nil, fmt.Errorf("table %s has no primary key column", m.table)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(m.columnNames(), ", "), m.table, m.pk.name)
	return dbmap.One[T](ctx, r.db, dbmap.Rebind(r.dialect, query), id)
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	m, err := r.tableModel()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(m.columnNames(), ", "), m.table)
	return r.selectAll(ctx, query)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	m, err := r.tableModel()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(m.columnNames(), ", "), m.table)
	var args []interface{}
	if filter != nil && filter.Schema != "" {
		query += " WHERE " + filter.Schema
		args = filter.Args
	}
	return r.selectAll(ctx, query, args...)
}

// Query returns the entities matching a WHERE condition fragment. The
// fragment may use ? placeholders with positional arguments, or :name
// placeholders with a single map or struct argument.
func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	m, err := r.tableModel()
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(m.columnNames(), ", "), m.table, query)
	return r.selectAll(ctx, q, args...)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	m, err := r.tableModel()
	if err != nil {
		return nil, err
	}
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(1, 10)
	}
	from := " FROM " + m.table
	var args []interface{}
	if f := pageRequest.GetFilter(); f != nil && f.Schema != "" {
		from += " WHERE " + f.Schema
		args = f.Args
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := dbmap.One[int](ctx, r.db, dbmap.Rebind(r.dialect, "SELECT COUNT(*)"+from), args...)
	if err != nil || *total == 0 {
		return pagination, err
	}
	query := "SELECT " + strings.Join(m.columnNames(), ", ") + from
	if orders := pageRequest.GetOrders(); len(orders) > 0 {
		query += " ORDER BY " + strings.Join(orders, ", ")
	}
	query += " LIMIT " + strconv.Itoa(pageRequest.GetPageSize()) +
		" OFFSET " + strconv.Itoa(pageRequest.GetOffset())
	items, err := r.selectAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	pagination.Total = *total
	pagination.Items = items
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	return r.insert(ctx, r.db, entity)
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.upsert(ctx, r.db, fields, duplicateKeys, entity)
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	return r.update(ctx, r.db, entity)
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	return r.deleteByKey(ctx, r.db, id)
}

func (r *baseRepositoryImpl[T]) CreateWithTx(ctx context.Context, tx *sql.Tx, entity ...*T) error {
	return r.insert(ctx, tx, entity)
}

func (r *baseRepositoryImpl[T]) UpsertWithTx(ctx context.Context, tx *sql.Tx, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.upsert(ctx, tx, fields, duplicateKeys, entity)
}

func (r *baseRepositoryImpl[T]) UpdateWithTx(ctx context.Context, tx *sql.Tx, entity *T) error {
	return r.update(ctx, tx, entity)
}

func (r *baseRepositoryImpl[T]) DeleteWithTx(ctx context.Context, tx *sql.Tx, id any) error {
	return r.deleteByKey(ctx, tx, id)
}

func (r *baseRepositoryImpl[T]) insert(ctx context.Context, s dbmap.Session, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	m, err := r.tableModel()
	if err != nil {
		return err
	}
	cols := m.insertColumns()
	if len(cols) == 0 {
		return fmt.Errorf("table %s has no insertable columns", m.table)
	}
	query, args, err := insertSQL(m.table, cols, entities)
	if err != nil {
		return err
	}
	if r.dialect == dbmap.Postgres && m.generatedKey() {
		ids, err := dbmap.All[int64](ctx, s, dbmap.Rebind(r.dialect, query+" RETURNING "+m.pk.name), args...)
		if err != nil {
			return err
		}
		for i, id := range ids {
			if i < len(entities) {
				assignKey(reflect.ValueOf(entities[i]).Elem(), m.pk, id)
			}
		}
		return nil
	}
	res, err := dbmap.Exec(ctx, s, dbmap.Rebind(r.dialect, query), args...)
	if err != nil {
		return err
	}
	// LastInsertId is only trustworthy for a single-row insert.
	if len(entities) == 1 && m.generatedKey() {
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			assignKey(reflect.ValueOf(entities[0]).Elem(), m.pk, id)
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) upsert(ctx context.Context, s dbmap.Session, fields []string, duplicateKeys []string, entities []*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if len(entities) == 0 {
		return nil
	}
	m, err := r.tableModel()
	if err != nil {
		return err
	}
	// Upserted rows carry their key columns, so generated columns are
	// written too.
	query, args, err := insertSQL(m.table, m.cols, entities)
	if err != nil {
		return err
	}
	switch r.dialect {
	case dbmap.MySQL:
		set := lo.Map(fields, func(f string, _ int) string {
			return fmt.Sprintf("%s = VALUES(%s)", f, f)
		})
		query += " ON DUPLICATE KEY UPDATE " + strings.Join(set, ", ")
	default:
		if len(duplicateKeys) == 0 {
			if m.pk.name == "" {
				return fmt.Errorf("table %s has no primary key column for ON CONFLICT", m.table)
			}
			duplicateKeys = []string{m.pk.name}
		}
		set := lo.Map(fields, func(f string, _ int) string {
			return fmt.Sprintf("%s = EXCLUDED.%s", f, f)
		})
		query += " ON CONFLICT (" + strings.Join(duplicateKeys, ", ") + ") DO UPDATE SET " +
			strings.Join(set, ", ")
	}
	_, err = dbmap.Exec(ctx, s, dbmap.Rebind(r.dialect, query), args...)
	return err
}

func (r *baseRepositoryImpl[T]) update(ctx context.Context, s dbmap.Session, entity *T) error {
	if entity == nil {
		return fmt.Errorf("nil entity")
	}
	m, err := r.tableModel()
	if err != nil {
		return err
	}
	if m.pk.name == "" {
		return fmt.Errorf("table %s has no primary key column", m.table)
	}
	cols := m.valueColumns()
	if len(cols) == 0 {
		return fmt.Errorf("table %s has no updatable columns", m.table)
	}
	set := lo.Map(cols, func(c column, _ int) string { return c.name + " = ?" })
	rv := reflect.ValueOf(entity).Elem()
	args := make([]interface{}, 0, len(cols)+1)
	for _, c := range cols {
		args = append(args, fieldValue(rv, c.index))
	}
	args = append(args, fieldValue(rv, m.pk.index))
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		m.table, strings.Join(set, ", "), m.pk.name)
	_, err = dbmap.Exec(ctx, s, dbmap.Rebind(r.dialect, query), args...)
	return err
}

func (r *baseRepositoryImpl[T]) deleteByKey(ctx context.Context, s dbmap.Session, id any) error {
	m, err := r.tableModel()
	if err != nil {
		return err
	}
	if m.pk.name == "" {
		return fmt.Errorf("table %s has no primary key column", m.table)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", m.table, m.pk.name)
	_, err = dbmap.Exec(ctx, s, dbmap.Rebind(r.dialect, query), id)
	return err
}

func (r *baseRepositoryImpl[T]) selectAll(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	vals, err := dbmap.All[T](ctx, r.db, dbmap.Rebind(r.dialect, query), args...)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(vals))
	for i := range vals {
		out[i] = &vals[i]
	}
	return out, nil
}

// insertSQL builds a multi-row INSERT with ? placeholders and its argument
// list, reading the column values from each entity.
func insertSQL[T any](table string, cols []column, entities []*T) (string, []interface{}, error) {
	names := lo.Map(cols, func(c column, _ int) string { return c.name })
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(entities)*len(cols))
	for i, e := range entities {
		if e == nil {
			return "", nil, fmt.Errorf("nil entity at index %d", i)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(row)
		rv := reflect.ValueOf(e).Elem()
		for _, c := range cols {
			args = append(args, fieldValue(rv, c.index))
		}
	}
	return sb.String(), args, nil
}
