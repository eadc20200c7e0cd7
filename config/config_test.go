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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Database.ConnectionConfig.Type)
	assert.Equal(t, "localhost", cfg.Database.ConnectionConfig.Host)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnectionConfig.HealthCheckInterval)
	assert.Equal(t, "prod", cfg.Database.DataInitConfig.Environment)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
http:
  addr: ":9000"
database:
  connection:
    type: sqlite
    dbname: agentdesk
    max_open_conns: 4
    slow_query_time: 500ms
  migrate:
    enable_migrate_on_startup: true
  init:
    environment: dev
`), 0o644))

	t.Setenv("AGENTDESK_LOG__FORMAT", "json")
	t.Setenv("AGENTDESK_DATABASE__CONNECTION__DBNAME", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("http-addr", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--http-addr", ":7000"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.ConnectionConfig.Type)
	assert.Equal(t, "from-env", cfg.Database.ConnectionConfig.DBName)
	assert.Equal(t, 4, cfg.Database.ConnectionConfig.MaxOpenConns)
	assert.Equal(t, 500*time.Millisecond, cfg.Database.ConnectionConfig.SlowQueryTime)
	assert.True(t, cfg.Database.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "dev", cfg.Database.DataInitConfig.Environment)
	// untouched keys keep their defaults
	assert.Equal(t, 10, cfg.Database.ConnectionConfig.MaxIdleConns)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "log.level", envKey("AGENTDESK_LOG__LEVEL"))
	assert.Equal(t, "database.connection.max_open_conns", envKey("AGENTDESK_DATABASE__CONNECTION__MAX_OPEN_CONNS"))
}
