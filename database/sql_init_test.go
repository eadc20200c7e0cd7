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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSQL(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSplitSQLStatements(t *testing.T) {
	content := `
-- seed users
INSERT INTO users (username, email)
VALUES ('ada', 'ada@example.com');

INSERT INTO users (username, email) VALUES ('bob', 'bob@example.com');
UPDATE users SET email = 'x' WHERE id = 1`

	statements := splitSQLStatements(content)
	require.Len(t, statements, 3)
	assert.Equal(t, "INSERT INTO users (username, email) VALUES ('ada', 'ada@example.com');", statements[0])
	assert.Equal(t, "UPDATE users SET email = 'x' WHERE id = 1", statements[2])

	assert.Empty(t, splitSQLStatements("-- only comments\n\n"))
}

func TestParseFileOrder(t *testing.T) {
	assert.Equal(t, 1, parseFileOrder("001_users.sql"))
	assert.Equal(t, 20, parseFileOrder("20_agents.sql"))
	assert.Equal(t, 999, parseFileOrder("agents.sql"))
}

func TestGetSQLFiles(t *testing.T) {
	root := t.TempDir()
	writeSQL(t, filepath.Join(root, "common", "010_agents.sql"), "")
	writeSQL(t, filepath.Join(root, "common", "002_users.sql"), "")
	writeSQL(t, filepath.Join(root, "common", "notes.txt"), "")
	writeSQL(t, filepath.Join(root, "environments", "dev", "001_demo.sql"), "")
	writeSQL(t, filepath.Join(root, "environments", "prod", "001_prod.sql"), "")

	m := NewSQLInitManager(nil, "dev", nil)
	m.SetSQLRootPath(root)
	files, err := m.GetSQLFiles()
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"002_users.sql", "010_agents.sql", "001_demo.sql"}, names)
	assert.Equal(t, "dev", files[2].Environment)
}

func TestExecuteInitialization(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.ExecContext(ctx, "CREATE TABLE settings (name TEXT PRIMARY KEY, value TEXT)")
	require.NoError(t, err)

	t.Setenv("AGENTDESK_REGION", "eu")
	root := t.TempDir()
	writeSQL(t, filepath.Join(root, "common", "001_settings.sql"),
		"INSERT INTO settings (name, value) VALUES ('region', '{{.AGENTDESK_REGION}}');\nINSERT INTO settings (name, value) VALUES ('env', '{{.ENVIRONMENT}}');\n")

	m := NewSQLInitManager(db, "test", nil)
	m.SetSQLRootPath(root)
	results, err := m.ExecuteInitialization(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.EqualValues(t, 2, results[0].RowsAffected)

	var value string
	require.NoError(t, db.NewSelect().Table("settings").Column("value").Where("name = ?", "region").Scan(ctx, &value))
	assert.Equal(t, "eu", value)
	require.NoError(t, db.NewSelect().Table("settings").Column("value").Where("name = ?", "env").Scan(ctx, &value))
	assert.Equal(t, "test", value)
}

func TestExecuteInitializationStopsOnFailure(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	root := t.TempDir()
	writeSQL(t, filepath.Join(root, "common", "001_broken.sql"), "INSERT INTO missing_table VALUES (1);\n")
	writeSQL(t, filepath.Join(root, "common", "002_never.sql"), "SELECT 1;\n")

	m := NewSQLInitManager(db, "prod", nil)
	m.SetSQLRootPath(root)
	results, err := m.ExecuteInitialization(ctx)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	is, kind := IsSqlError(results[0].Error)
	assert.True(t, is)
	assert.Equal(t, NoTableErr, kind)
}

func TestExecuteInitializationWithoutFiles(t *testing.T) {
	m := NewSQLInitManager(openTestDB(t), "prod", nil)
	m.SetSQLRootPath(t.TempDir())
	results, err := m.ExecuteInitialization(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, results)
}
