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
	"strings"
	"time"

	"github.com/samber/lo"
)

// Column describes one column of a result set as reported by the driver.
type Column struct {
	Name         string
	DatabaseType string
	Nullable     bool
	NullableOK   bool
}

// Table is a fully materialized, schema-carrying result set: the untyped
// counterpart of All for callers that do not know the row shape up front,
// such as admin consoles and ad-hoc query tools.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// QueryTable runs the query and buffers the entire result with its column
// schema. Byte-slice values normalize to strings so the table is directly
// printable.
func QueryTable(ctx context.Context, s Queryer, query string, args ...any) (*Table, error) {
	bound, vals, err := bindArgs(CurrentDialect(), query, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := s.QueryContext(ctx, bound, vals...)
	logQuery(bound, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return readTable(rows)
}

// readTable drains rows into a Table, capturing driver column metadata.
func readTable(rows *sql.Rows) (*Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	t := &Table{
		Columns: lo.Map(types, func(ct *sql.ColumnType, _ int) Column {
			nullable, ok := ct.Nullable()
			return Column{
				Name:         ct.Name(),
				DatabaseType: ct.DatabaseTypeName(),
				Nullable:     nullable,
				NullableOK:   ok,
			}
		}),
	}
	for rows.Next() {
		values, err := scanRowSlice(rows, len(t.Columns))
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ColumnNames returns the column names in result order.
func (t *Table) ColumnNames() []string {
	return lo.Map(t.Columns, func(c Column, _ int) string { return c.Name })
}

// RowMap returns row i keyed by column name.
func (t *Table) RowMap(i int) map[string]any {
	rec := make(map[string]any, len(t.Columns))
	for j, c := range t.Columns {
		rec[c.Name] = t.Rows[i][j]
	}
	return rec
}

// Len returns the number of buffered rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// RenderOptions controls Render output.
type RenderOptions struct {
	// MaxWidth truncates cells longer than this many characters; zero
	// means no limit.
	MaxWidth int
}

// Render writes the table as ASCII art, one header row plus one line per
// data row.
func (t *Table) Render(w io.Writer, opts RenderOptions) error {
	header := t.ColumnNames()
	cells := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells[i] = lo.Map(row, func(v any, _ int) string {
			return truncateCell(formatCell(v), opts.MaxWidth)
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(truncateCell(h, opts.MaxWidth))
	}
	for _, row := range cells {
		for i, c := range row {
			if i < len(widths) && len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	sep := renderSeparator(widths)
	if _, err := io.WriteString(w, sep); err != nil {
		return err
	}
	if err := renderRow(w, lo.Map(header, func(h string, _ int) string {
		return truncateCell(h, opts.MaxWidth)
	}), widths); err != nil {
		return err
	}
	if _, err := io.WriteString(w, sep); err != nil {
		return err
	}
	for _, row := range cells {
		if err := renderRow(w, row, widths); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, sep)
	return err
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return t.Format(time.RFC3339)
	case string:
		return t
	}
	return fmt.Sprintf("%v", v)
}

func truncateCell(s string, maxWidth int) string {
	if maxWidth <= 0 || len(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return s[:maxWidth]
	}
	return s[:maxWidth-3] + "..."
}

func renderSeparator(widths []int) string {
	var sb strings.Builder
	for _, w := range widths {
		sb.WriteByte('+')
		sb.WriteString(strings.Repeat("-", w+2))
	}
	sb.WriteString("+\n")
	return sb.String()
}

func renderRow(w io.Writer, cells []string, widths []int) error {
	var sb strings.Builder
	for i, width := range widths {
		c := ""
		if i < len(cells) {
			c = cells[i]
		}
		sb.WriteString("| ")
		sb.WriteString(c)
		sb.WriteString(strings.Repeat(" ", width-len(c)))
		sb.WriteByte(' ')
	}
	sb.WriteString("|\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
