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

package database

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/okoshkin/dbmap"
)

// ScriptRunner discovers and executes SQL script files, typically to seed
// data on startup. Scripts live under <root>/common plus an optional
// <root>/environments/<env> directory; a numeric filename prefix like
// "01_users.sql" fixes the execution order. Each file runs inside its own
// transaction.
type ScriptRunner struct {
	db          *sql.DB
	environment string
	rootPath    string
	expandEnv   bool
	logger      Logger
}

// ScriptFile describes one discovered SQL script.
type ScriptFile struct {
	Path        string
	Name        string
	Order       int
	Environment string
	ModTime     time.Time
}

// ScriptResult contains the outcome of executing a single SQL file.
type ScriptResult struct {
	File         string
	Success      bool
	Error        error
	Duration     time.Duration
	RowsAffected int64
}

// NewScriptRunner creates a runner for the given environment rooted at
// "configs/sql".
func NewScriptRunner(db *sql.DB, environment string) *ScriptRunner {
	return &ScriptRunner{
		db:          db,
		environment: environment,
		rootPath:    "configs/sql",
		logger:      GetLogger(),
	}
}

// SetRootPath sets the root directory from which SQL files are loaded.
func (s *ScriptRunner) SetRootPath(path string) {
	s.rootPath = path
}

// SetLogger replaces the runner's logger.
func (s *ScriptRunner) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// EnableTemplating turns on Go template expansion over the script text with
// the process environment as data, plus ENVIRONMENT and TIMESTAMP.
func (s *ScriptRunner) EnableTemplating(enabled bool) {
	s.expandEnv = enabled
}

// Execute runs all discovered SQL files in order and stops at the first
// failure.
func (s *ScriptRunner) Execute(ctx context.Context) error {
	s.logger.Info("Starting SQL script execution",
		"environment", s.environment,
		"sql_path", s.rootPath,
	)

	files, err := s.Files()
	if err != nil {
		return fmt.Errorf("failed to get SQL files: %w", err)
	}

	if len(files) == 0 {
		s.logger.Info("No SQL files found to execute")
		return nil
	}

	for _, file := range files {
		result := s.executeFile(ctx, file)
		if !result.Success {
			s.logger.Error("SQL file execution failed",
				"file", result.File,
				"error", result.Error.Error(),
			)
			return fmt.Errorf("SQL file execution failed %s: %w", result.File, result.Error)
		}

		s.logger.Info("SQL file executed successfully",
			"file", result.File,
			"duration", result.Duration.String(),
			"rows_affected", result.RowsAffected,
		)
	}

	s.logger.Info("SQL script execution completed",
		"total_files", len(files),
		"environment", s.environment,
	)

	return nil
}

// Files returns the scripts from the common and environment directories,
// common first, each ordered by numeric prefix.
func (s *ScriptRunner) Files() ([]ScriptFile, error) {
	var files []ScriptFile

	commonPath := filepath.Join(s.rootPath, "common")
	if _, err := os.Stat(commonPath); err == nil {
		commonFiles, err := s.filesFromDir(commonPath, "common")
		if err != nil {
			return nil, fmt.Errorf("failed to get common SQL files: %w", err)
		}
		files = append(files, commonFiles...)
	}

	envPath := filepath.Join(s.rootPath, "environments", s.environment)
	if _, err := os.Stat(envPath); err == nil {
		envFiles, err := s.filesFromDir(envPath, s.environment)
		if err != nil {
			return nil, fmt.Errorf("failed to get environment SQL files: %w", err)
		}
		files = append(files, envFiles...)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Environment != files[j].Environment {
			return files[i].Environment == "common"
		}
		return files[i].Order < files[j].Order
	})

	return files, nil
}

func (s *ScriptRunner) filesFromDir(dir, environment string) ([]ScriptFile, error) {
	var files []ScriptFile

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		files = append(files, ScriptFile{
			Path:        path,
			Name:        d.Name(),
			Order:       parseFileOrder(d.Name()),
			Environment: environment,
			ModTime:     info.ModTime(),
		})

		return nil
	})

	return files, err
}

var fileOrderRe = regexp.MustCompile(`^(\d+)_`)

func parseFileOrder(filename string) int {
	matches := fileOrderRe.FindStringSubmatch(filename)
	if len(matches) > 1 {
		var order int
		_, _ = fmt.Sscanf(matches[1], "%d", &order)
		return order
	}
	return 999
}

func (s *ScriptRunner) executeFile(ctx context.Context, file ScriptFile) ScriptResult {
	start := time.Now()
	result := ScriptResult{
		File:    file.Path,
		Success: false,
	}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		result.Error = fmt.Errorf("failed to read file: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	script := string(content)
	if s.expandEnv {
		script, err = s.expandTemplate(script)
		if err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			return result
		}
	}

	err = dbmap.RunInTx(ctx, s.db, &sql.TxOptions{}, func(tx *sql.Tx) error {
		n, err := dbmap.ExecScript(ctx, tx, strings.NewReader(script))
		result.RowsAffected = n
		return err
	})

	if err != nil {
		result.Error = err
	} else {
		result.Success = true
	}

	result.Duration = time.Since(start)
	return result
}

// expandTemplate renders the script as a Go template against the process
// environment, so seed data can say {{.ENVIRONMENT}} or {{.HOSTNAME}}.
func (s *ScriptRunner) expandTemplate(content string) (string, error) {
	tmpl, err := template.New("sql").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envVars[parts[0]] = parts[1]
		}
	}

	envVars["ENVIRONMENT"] = s.environment
	envVars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envVars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
