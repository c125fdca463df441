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
	"io"
	"os"
	"strings"
	"time"
)

// Exec runs a statement that returns no rows and reports the driver result.
// Parameter binding works exactly as in Query: one map or struct argument
// binds by :name, anything else passes through positionally.
func Exec(ctx context.Context, s Execer, query string, args ...any) (sql.Result, error) {
	bound, vals, err := bindArgs(CurrentDialect(), query, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.ExecContext(ctx, bound, vals...)
	logQuery(bound, time.Since(start), err)
	return res, err
}

// RunInTx begins a transaction on b, runs fn inside it, and commits when fn
// returns nil. Any error, or a panic inside fn, rolls the transaction back;
// panics re-raise after the rollback.
func RunInTx(ctx context.Context, b Beginner, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	var done bool
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	done = true
	return nil
}

// ExecScript reads a multi-statement SQL script from r and executes each
// statement in order on s, returning the total rows affected. Statements
// are separated by semicolons outside of string literals and comments; line
// and block comments are dropped. The first failing statement aborts the
// run with its position in the script.
//
// ExecScript does not open a transaction itself; pass a *sql.Tx (or wrap
// the call in RunInTx) to make the script atomic.
func ExecScript(ctx context.Context, s Execer, r io.Reader) (int64, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	statements := SplitStatements(string(raw))

	var total int64
	for i, stmt := range statements {
		res, err := Exec(ctx, s, stmt)
		if err != nil {
			return total, fmt.Errorf("dbmap: script statement %d failed: %w", i+1, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// ExecFile runs the SQL script at path via ExecScript.
func ExecFile(ctx context.Context, s Execer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ExecScript(ctx, s, f)
}

// SplitStatements splits a SQL script into individual statements on
// semicolons, honoring single- and double-quoted literals and stripping
// "--" line comments and "/* */" block comments. Empty statements are
// dropped.
func SplitStatements(script string) []string {
	const (
		plain = iota
		singleQuote
		doubleQuote
		lineComment
		blockComment
	)
	state := plain

	var (
		sb    strings.Builder
		stmts []string
	)
	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			stmts = append(stmts, s)
		}
		sb.Reset()
	}

	for i := 0; i < len(script); {
		c := script[i]
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
			if c == '\n' {
				sb.WriteByte(c)
				state = plain
			}
			i++
			continue
		case blockComment:
			if c == '*' && i+1 < len(script) && script[i+1] == '/' {
				state = plain
				i += 2
				continue
			}
			i++
			continue
		}

		switch {
		case c == '\'':
			state = singleQuote
			sb.WriteByte(c)
		case c == '"':
			state = doubleQuote
			sb.WriteByte(c)
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			state = lineComment
			i++
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			state = blockComment
			i++
		case c == ';':
			flush()
		default:
			sb.WriteByte(c)
		}
		i++
	}
	flush()
	return stmts
}
