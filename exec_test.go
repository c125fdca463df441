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
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func countKV(t *testing.T, db *sql.DB) int {
	t.Helper()
	n, err := One[int](context.Background(), db, "SELECT COUNT(*) FROM kv")
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	return *n
}

func TestExecNamed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := Exec(ctx, db, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	res, err := Exec(ctx, db, "INSERT INTO kv (k, v) VALUES (:k, :v)", map[string]any{"k": "mode", "v": "test"})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}
	if countKV(t, db) != 1 {
		t.Fatalf("row not persisted")
	}
}

func TestRunInTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := Exec(ctx, db, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := RunInTx(ctx, db, nil, func(tx *sql.Tx) error {
		_, err := Exec(ctx, tx, "INSERT INTO kv (k, v) VALUES ('a', '1')")
		return err
	})
	if err != nil {
		t.Fatalf("commit error: %v", err)
	}
	if countKV(t, db) != 1 {
		t.Fatalf("committed row missing")
	}

	err = RunInTx(ctx, db, nil, func(tx *sql.Tx) error {
		if _, err := Exec(ctx, tx, "INSERT INTO kv (k, v) VALUES ('b', '2')"); err != nil {
			return err
		}
		return fmt.Errorf("force rollback")
	})
	if err == nil || err.Error() != "force rollback" {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if countKV(t, db) != 1 {
		t.Fatalf("rolled back row visible")
	}
}

func TestRunInTxPanic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := Exec(ctx, db, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = RunInTx(ctx, db, nil, func(tx *sql.Tx) error {
			if _, err := Exec(ctx, tx, "INSERT INTO kv (k, v) VALUES ('p', '1')"); err != nil {
				return err
			}
			panic("boom")
		})
	}()
	if countKV(t, db) != 0 {
		t.Fatalf("panicked transaction left a row behind")
	}
}

func TestSplitStatements(t *testing.T) {
	script := "CREATE TABLE a (x TEXT); -- trailing; comment\n" +
		"INSERT INTO a VALUES (';');\n" +
		"/* block; comment */ INSERT INTO a VALUES (\"b\");"
	stmts := SplitStatements(script)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (x TEXT)" {
		t.Errorf("unexpected first statement: %q", stmts[0])
	}
	if stmts[1] != "INSERT INTO a VALUES (';')" {
		t.Errorf("semicolon in literal split the statement: %q", stmts[1])
	}
	if stmts[2] != `INSERT INTO a VALUES ("b")` {
		t.Errorf("unexpected last statement: %q", stmts[2])
	}

	if got := SplitStatements("  ;;  \n"); len(got) != 0 {
		t.Errorf("expected no statements from blanks, got %q", got)
	}
}

func TestExecScript(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	script := `CREATE TABLE t1 (n INTEGER);
INSERT INTO t1 VALUES (1);
INSERT INTO t1 VALUES (2);`
	n, err := ExecScript(ctx, db, strings.NewReader(script))
	if err != nil {
		t.Fatalf("script error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows affected, got %d", n)
	}

	_, err = ExecScript(ctx, db, strings.NewReader("INSERT INTO missing_table VALUES (1);"))
	if err == nil || !strings.Contains(err.Error(), "statement 1 failed") {
		t.Fatalf("expected statement position in error, got %v", err)
	}
}

func TestExecFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "init.sql")
	content := "CREATE TABLE f1 (n INTEGER);\nINSERT INTO f1 VALUES (7);"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	n, err := ExecFile(ctx, db, path)
	if err != nil {
		t.Fatalf("exec file error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}

	if _, err := ExecFile(ctx, db, filepath.Join(dir, "missing.sql")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
