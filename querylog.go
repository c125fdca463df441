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
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const (
	ansiReset     = "\x1b[0m"
	ansiRed       = "\x1b[31m"
	ansiYellow    = "\x1b[33m"
	ansiGreen     = "\x1b[32m"
	ansiBlue      = "\x1b[34m"
	ansiMagenta   = "\x1b[35m"
	ansiCyan      = "\x1b[36m"
	ansiBGGreen   = "\x1b[42;97m"
	ansiBGYellow  = "\x1b[43;97m"
	ansiBGBlue    = "\x1b[44;97m"
	ansiBGMagenta = "\x1b[45;97m"
	ansiBGRed     = "\x1b[41;97m"
)

const (
	// QueryLogEnv overrides the programmatic toggle at runtime: unset
	// keeps the configured behavior, "" or "0" disables, "1" logs only
	// failed statements, "2" logs every statement.
	QueryLogEnv = "DBMAP_QUERYLOG"
	// SlowLogEnv set to "1" force-enables slow statement reporting.
	SlowLogEnv = "DBMAP_SLOWLOG"

	defaultSlowQueryTime = 200 * time.Millisecond
)

func colorWrap(s, code string) string { return fmt.Sprintf("%s%s%s", code, s, ansiReset) }

type queryLogConfig struct {
	silent   bool
	enabled  bool
	verbose  bool
	slowTime time.Duration
	writer   io.Writer
}

var (
	queryLogMu    sync.RWMutex
	queryLogState = queryLogConfig{writer: os.Stdout}
)

// EnableQueryLog turns statement echoing on or off. When on, every
// statement the helpers run is printed with its duration; failures print
// regardless of this toggle once logging is enabled via QueryLogEnv.
func EnableQueryLog(enabled bool) {
	queryLogMu.Lock()
	queryLogState.enabled = enabled
	queryLogState.verbose = enabled
	queryLogMu.Unlock()
}

// SilenceQueryLog hard-mutes all statement output, overriding both the
// programmatic toggle and the environment. Test suites use this to keep
// output readable.
func SilenceQueryLog(silent bool) {
	queryLogMu.Lock()
	queryLogState.silent = silent
	queryLogMu.Unlock()
}

// SetSlowQueryThreshold enables slow statement reporting for successful
// statements that run longer than d; zero disables it.
func SetSlowQueryThreshold(d time.Duration) {
	queryLogMu.Lock()
	queryLogState.slowTime = d
	queryLogMu.Unlock()
}

// SetQueryLogOutput redirects statement output, which defaults to stdout.
// Passing nil restores the default.
func SetQueryLogOutput(w io.Writer) {
	queryLogMu.Lock()
	if w == nil {
		w = os.Stdout
	}
	queryLogState.writer = w
	queryLogMu.Unlock()
}

// logQuery is called by every helper after the driver returns.
func logQuery(query string, dur time.Duration, err error) {
	queryLogMu.RLock()
	cfg := queryLogState
	queryLogMu.RUnlock()

	if cfg.silent {
		return
	}

	enabled := cfg.enabled
	verbose := cfg.verbose
	if env, ok := os.LookupEnv(QueryLogEnv); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}

	if enabled {
		skip := false
		if !verbose {
			switch {
			case err == nil, errors.Is(err, sql.ErrNoRows), errors.Is(err, sql.ErrTxDone):
				skip = true
			}
		}
		if !skip {
			args := []interface{}{
				time.Now().Format("2006-01-02 15:04:05.000"),
				colorWrap(fmt.Sprintf("%15s", "[SQL] ✅"), ansiCyan),
				fmt.Sprintf("%17s", dur.Round(time.Microsecond)),
				"  ", operationColor(query),
			}
			if err != nil {
				typ := reflect.TypeOf(err).String()
				args = append(args,
					"\t",
					color.New(color.BgRed).Sprintf(" %s ", typ+": "+err.Error()),
				)
			}
			_, _ = fmt.Fprintln(cfg.writer, args...)
		}
	}

	if err != nil {
		return
	}
	slowEnabled := cfg.slowTime > 0
	slowTime := cfg.slowTime
	if env, ok := os.LookupEnv(SlowLogEnv); ok {
		slowEnabled = strings.TrimSpace(env) == "1"
		if slowTime <= 0 {
			slowTime = defaultSlowQueryTime
		}
	}
	if slowEnabled && dur > slowTime {
		args := []interface{}{
			time.Now().Format("2006-01-02 15:04:05.000"),
			colorWrap(fmt.Sprintf("%15s", "[SQL_SLOW] \U0001f534"), ansiYellow),
			fmt.Sprintf("%17s", dur.Round(time.Microsecond)),
			"  ", operationBackgroundColor(query),
		}
		_, _ = fmt.Fprintln(cfg.writer, args...)
	}
}

// queryOperation extracts the leading SQL verb for color selection.
func queryOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func operationColor(query string) string {
	switch queryOperation(query) {
	case "SELECT":
		return colorWrap(query, ansiGreen)
	case "INSERT":
		return colorWrap(query, ansiBlue)
	case "UPDATE":
		return colorWrap(query, ansiYellow)
	case "DELETE":
		return colorWrap(query, ansiMagenta)
	default:
		return colorWrap(query, ansiRed)
	}
}

func operationBackgroundColor(query string) string {
	switch queryOperation(query) {
	case "SELECT":
		return colorWrap(query, ansiBGGreen)
	case "INSERT":
		return colorWrap(query, ansiBGBlue)
	case "UPDATE":
		return colorWrap(query, ansiBGYellow)
	case "DELETE":
		return colorWrap(query, ansiBGMagenta)
	default:
		return colorWrap(query, ansiBGRed)
	}
}
