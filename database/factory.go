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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// dialectAliases maps every accepted connection type to its canonical name.
var dialectAliases = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
}

// envBinding copies one DB_* variable onto the connection config. apply
// reports false when the value cannot be parsed, leaving cfg untouched.
type envBinding struct {
	key   string
	apply func(cfg *ConnectionConfig, value string) bool
}

// envBindings are applied in order, so DB_USER overrides DB_USERNAME.
var envBindings = []envBinding{
	{"DB_HOST", func(c *ConnectionConfig, v string) bool { c.Host = v; return true }},
	{"DB_PORT", intEnv(func(c *ConnectionConfig, n int) { c.Port = n })},
	{"DB_USERNAME", func(c *ConnectionConfig, v string) bool { c.Username = v; return true }},
	{"DB_USER", func(c *ConnectionConfig, v string) bool { c.Username = v; return true }},
	{"DB_PASSWORD", func(c *ConnectionConfig, v string) bool { c.Password = v; return true }},
	{"DB_NAME", func(c *ConnectionConfig, v string) bool { c.DBName = v; return true }},
	{"DB_SSLMODE", func(c *ConnectionConfig, v string) bool { c.SSLMode = v; return true }},
	{"DB_PG_DRIVER", func(c *ConnectionConfig, v string) bool { c.Driver = v; return true }},
	{"DB_MAX_IDLE_CONNS", intEnv(func(c *ConnectionConfig, n int) { c.MaxIdleConns = n })},
	{"DB_MAX_OPEN_CONNS", intEnv(func(c *ConnectionConfig, n int) { c.MaxOpenConns = n })},
	{"DB_CONN_MAX_LIFETIME", intEnv(func(c *ConnectionConfig, n int) { c.ConnMaxLifetime = time.Duration(n) * time.Second })},
	{"DB_ENABLE_RECONNECT", boolEnv(func(c *ConnectionConfig, b bool) { c.EnableReconnect = b })},
	{"DB_RECONNECT_INTERVAL", intEnv(func(c *ConnectionConfig, n int) { c.ReconnectInterval = time.Duration(n) * time.Second })},
	{"DB_ENABLE_QUERY_LOG", boolEnv(func(c *ConnectionConfig, b bool) { c.EnableQueryLog = b })},
}

func intEnv(set func(*ConnectionConfig, int)) func(*ConnectionConfig, string) bool {
	return func(c *ConnectionConfig, v string) bool {
		n, err := strconv.Atoi(v)
		if err != nil {
			return false
		}
		set(c, n)
		return true
	}
}

func boolEnv(set func(*ConnectionConfig, bool)) func(*ConnectionConfig, string) bool {
	return func(c *ConnectionConfig, v string) bool {
		set(c, strings.EqualFold(v, "true"))
		return true
	}
}

// OverrideFromEnv applies the DB_* environment variables to cfg. Values that
// do not parse are skipped and the configured value is kept.
func OverrideFromEnv(cfg *ConnectionConfig) {
	logger := GetLogger()
	for _, b := range envBindings {
		value := os.Getenv(b.key)
		if value == "" {
			continue
		}
		if !b.apply(cfg, value) {
			logger.Warn("Ignoring invalid environment value", "key", b.key)
		}
	}
}

// BaseDatabaseFactory owns the connection manager of one DataStore.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
}

func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{logger: GetLogger()}
}

// CreateFromConfig applies DB_* overrides to cfg and builds a manager for
// it. An empty Type selects postgres. Connection values are not validated;
// a bad host or credential surfaces when connecting.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	OverrideFromEnv(cfg)
	if cfg.Type == "" {
		cfg.Type = "postgres"
	}
	if _, ok := dialectAliases[strings.ToLower(cfg.Type)]; !ok {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Type, supportedTypes())
	}

	manager := NewDatabaseManager(cfg)
	manager.SetLogger(f.logger)
	f.manager = manager
	return manager, nil
}

func supportedTypes() []string {
	return []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3"}
}

// InitializeDatabase connects the manager built by CreateFromConfig.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager { return f.manager }

// GetDB returns nil until a manager exists.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

// GetHealthStatus reports unhealthy when no manager was created.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{LastError: "database manager not initialized", LastCheckTime: time.Now()}
	}
	return f.manager.HealthCheck(ctx)
}

func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
