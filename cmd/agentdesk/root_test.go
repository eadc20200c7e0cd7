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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/agentdesk/database"
)

func sqliteEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_USERNAME", "DB_PASSWORD", "DB_NAME", "DB_PG_DRIVER"} {
		t.Setenv(key, "")
	}
	t.Setenv("AGENTDESK_DATABASE__CONNECTION__TYPE", "sqlite")
	t.Setenv("AGENTDESK_DATABASE__CONNECTION__DBNAME", "file:"+t.Name()+"?mode=memory&cache=shared")
	t.Setenv("AGENTDESK_DATABASE__CONNECTION__HEALTH_CHECK_INTERVAL", "0s")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestModelsCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	sqliteEnv(t)

	out, err := run(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "User     table=users priority=10")
	assert.Contains(t, out, "Agent    table=agents priority=20")
	assert.Contains(t, out, "Message  table=messages priority=30")
	assert.Contains(t, out, "Message belongs-to Agent (agent_id)")
}

func TestMigrateCommandExportsForeignKeys(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	sqliteEnv(t)

	fkFile := filepath.Join(dir, "fk", "foreign_keys.yaml")
	_, err := run(t, "migrate", "--export-fk", fkFile)
	require.NoError(t, err)

	constraints, err := database.LoadForeignKeyFile(fkFile)
	require.NoError(t, err)
	assert.Len(t, constraints, 3)
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	sqliteEnv(t)
	t.Setenv("AGENTDESK_DATABASE__CONNECTION__TYPE", "")
	require.NoError(t, os.Unsetenv("AGENTDESK_DATABASE__CONNECTION__TYPE"))

	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("AGENTDESK_DATABASE__CONNECTION__TYPE=sqlite\n"), 0o644))

	out, err := run(t, "--env-file", envFile, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "User")
}

func TestMissingEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := run(t, "--env-file", "missing.env", "models")
	assert.ErrorContains(t, err, "missing.env")
}

func TestMigrateCommandDropsForeignKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	sqliteEnv(t)

	_, err := run(t, "migrate", "--drop-fk")
	assert.NoError(t, err)
}
