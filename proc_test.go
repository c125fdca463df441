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
	"errors"
	"reflect"
	"testing"
)

func TestProcCallSQL(t *testing.T) {
	call, err := procCallSQL(MySQL, "sync_users", []string{"batch", "dry_run"}, true)
	if err != nil {
		t.Fatalf("mysql call error: %v", err)
	}
	if call != "CALL sync_users(:batch, :dry_run)" {
		t.Fatalf("unexpected mysql call: %s", call)
	}

	call, err = procCallSQL(Postgres, "sync_users", []string{"batch"}, true)
	if err != nil {
		t.Fatalf("postgres call error: %v", err)
	}
	if call != "SELECT * FROM sync_users(:batch)" {
		t.Fatalf("unexpected postgres call: %s", call)
	}

	call, err = procCallSQL(Postgres, "sync_users", []string{"batch"}, false)
	if err != nil {
		t.Fatalf("postgres void call error: %v", err)
	}
	if call != "CALL sync_users(:batch)" {
		t.Fatalf("unexpected postgres void call: %s", call)
	}

	call, err = procCallSQL(MySQL, "analytics.rollup", nil, true)
	if err != nil {
		t.Fatalf("qualified name error: %v", err)
	}
	if call != "CALL analytics.rollup()" {
		t.Fatalf("unexpected qualified call: %s", call)
	}

	if _, err := procCallSQL(SQLite, "anything", nil, true); !errors.Is(err, ErrProcUnsupported) {
		t.Fatalf("expected ErrProcUnsupported, got %v", err)
	}
	if _, err := procCallSQL(MySQL, "drop table", nil, true); err == nil {
		t.Fatalf("expected error for invalid procedure name")
	}
	if _, err := procCallSQL(MySQL, "ok", []string{"a;b"}, true); err == nil {
		t.Fatalf("expected error for invalid parameter name")
	}
}

func TestProcParamNames(t *testing.T) {
	type report struct {
		UserID int64
		Limit  int `db:"max_rows"`
	}
	names, err := procParamNames(report{UserID: 1, Limit: 10})
	if err != nil {
		t.Fatalf("struct bag error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"user_id", "max_rows"}) {
		t.Fatalf("unexpected struct order: %v", names)
	}

	names, err = procParamNames(map[string]any{"zeta": 1, "alpha": 2})
	if err != nil {
		t.Fatalf("map bag error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "zeta"}) {
		t.Fatalf("map keys not sorted: %v", names)
	}

	names, err = procParamNames(nil)
	if err != nil || names != nil {
		t.Fatalf("nil bag should yield no names, got %v %v", names, err)
	}

	if _, err := procParamNames(42); err == nil {
		t.Fatalf("expected error for scalar bag")
	}
}

func TestProcOnSQLiteDialect(t *testing.T) {
	db := openTestDB(t)
	prev := CurrentDialect()
	SetDialect(SQLite)
	t.Cleanup(func() { SetDialect(prev) })

	if _, err := ExecProc(context.Background(), db, "refresh_stats", nil); !errors.Is(err, ErrProcUnsupported) {
		t.Fatalf("expected ErrProcUnsupported, got %v", err)
	}
}
