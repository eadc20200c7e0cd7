/*
 * Copyright 2025 tomoncle.
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
	"bufio"
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/uptrace/bun"
)

const (
	commonEnvironment = "common"
	unorderedFile     = 999
)

var fileOrderPattern = regexp.MustCompile(`^(\d+)_`)

// SQLInitManager seeds data from SQL files laid out as
// <root>/common/*.sql followed by <root>/environments/<env>/*.sql.
type SQLInitManager struct {
	db          bun.IDB
	environment string
	sqlRootPath string
	logger      Logger
}

// SQLFileInfo is one seed file and its position in the run.
type SQLFileInfo struct {
	Path        string
	Name        string
	Order       int
	Environment string
	ModTime     time.Time
}

// ExecutionResult is the outcome of one seed file.
type ExecutionResult struct {
	File         string        `json:"file"`
	Success      bool          `json:"success"`
	Error        error         `json:"-"`
	Duration     time.Duration `json:"duration"`
	RowsAffected int64         `json:"rows_affected"`
}

func NewSQLInitManager(db bun.IDB, environment string, logger Logger) *SQLInitManager {
	if logger == nil {
		logger = NopLogger()
	}
	return &SQLInitManager{
		db:          db,
		environment: environment,
		sqlRootPath: "configs/sql",
		logger:      logger,
	}
}

func (s *SQLInitManager) SetSQLRootPath(path string) { s.sqlRootPath = path }

// ExecuteInitialization runs every seed file in its own transaction and
// stops at the first file that fails. Results up to and including the
// failing file are returned.
func (s *SQLInitManager) ExecuteInitialization(ctx context.Context) ([]ExecutionResult, error) {
	s.logger.Info("Starting SQL initialization", "environment", s.environment, "sql_path", s.sqlRootPath)

	files, err := s.GetSQLFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL files: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("No SQL files found to execute")
		return nil, nil
	}

	results := make([]ExecutionResult, 0, len(files))
	for _, file := range files {
		start := time.Now()
		rows, err := s.executeFile(ctx, file)
		result := ExecutionResult{
			File:         file.Path,
			Success:      err == nil,
			Error:        err,
			Duration:     time.Since(start),
			RowsAffected: rows,
		}
		results = append(results, result)
		if err != nil {
			s.logger.Error("SQL file execution failed", "file", file.Path, "error", err)
			return results, fmt.Errorf("SQL file execution failed %s: %w", file.Path, err)
		}
		s.logger.Info("SQL file executed", "file", file.Path, "duration", result.Duration.String(), "rows_affected", rows)
	}

	s.logger.Info("SQL initialization completed", "total_files", len(results), "environment", s.environment)
	return results, nil
}

// GetSQLFiles lists the common files before the environment files, each
// group ordered by its numeric NNN_ prefix and then by name.
func (s *SQLInitManager) GetSQLFiles() ([]SQLFileInfo, error) {
	groups := []struct{ dir, env string }{
		{filepath.Join(s.sqlRootPath, commonEnvironment), commonEnvironment},
		{filepath.Join(s.sqlRootPath, "environments", s.environment), s.environment},
	}

	var files []SQLFileInfo
	for _, g := range groups {
		if _, err := os.Stat(g.dir); err != nil {
			continue
		}
		found, err := collectSQLFiles(g.dir, g.env)
		if err != nil {
			return nil, fmt.Errorf("failed to read SQL files of %s: %w", g.env, err)
		}
		slices.SortStableFunc(found, func(a, b SQLFileInfo) int {
			return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.Name, b.Name))
		})
		files = append(files, found...)
	}
	return files, nil
}

func collectSQLFiles(dir, environment string) ([]SQLFileInfo, error) {
	var files []SQLFileInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".sql") {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, SQLFileInfo{
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

// parseFileOrder reads the NNN_ prefix; files without one sort last.
func parseFileOrder(filename string) int {
	m := fileOrderPattern.FindStringSubmatch(filename)
	if m == nil {
		return unorderedFile
	}
	order, err := strconv.Atoi(m[1])
	if err != nil {
		return unorderedFile
	}
	return order
}

func (s *SQLInitManager) executeFile(ctx context.Context, file SQLFileInfo) (int64, error) {
	content, err := os.ReadFile(file.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}
	text, err := s.render(string(content))
	if err != nil {
		return 0, err
	}
	statements := splitSQLStatements(text)
	if len(statements) == 0 {
		return 0, nil
	}

	var affected int64
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range statements {
			res, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("failed to execute SQL statement: %s, error: %w", stmt, err)
			}
			n, _ := res.RowsAffected()
			affected += n
		}
		return nil
	})
	return affected, err
}

// render expands {{.NAME}} placeholders from the process environment plus
// ENVIRONMENT and TIMESTAMP. Unknown names render empty.
func (s *SQLInitManager) render(content string) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}
	tmpl, err := template.New("sql").Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	data := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			data[k] = v
		}
	}
	data["ENVIRONMENT"] = s.environment
	data["TIMESTAMP"] = time.Now().Format(time.DateTime)

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return out.String(), nil
}

// splitSQLStatements joins lines until one ends with ';', dropping blank and
// comment lines. The trailing ';' is kept.
func splitSQLStatements(content string) []string {
	var (
		statements []string
		parts      []string
	)
	flush := func() {
		if len(parts) > 0 {
			statements = append(statements, strings.Join(parts, " "))
			parts = parts[:0]
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		parts = append(parts, line)
		if strings.HasSuffix(line, ";") {
			flush()
		}
	}
	flush()
	return statements
}
