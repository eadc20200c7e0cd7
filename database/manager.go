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
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	defaultConnectTimeout = 30 * time.Second
	healthPingTimeout     = 5 * time.Second
)

type defaultDatabaseManager struct {
	config *ConnectionConfig
	logger Logger

	mu        sync.RWMutex
	db        *bun.DB
	sqlDB     *sql.DB
	connected bool
	lastError error
	last      *HealthStatus
	attempts  int

	watchOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewDatabaseManager returns a bun backed manager for config, or for
// DefaultConnectionConfig when config is nil. Nothing is opened until Connect.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	return &defaultDatabaseManager{
		config: config,
		logger: NopLogger(),
		last:   &HealthStatus{},
		stop:   make(chan struct{}),
	}
}

// Connect opens and pings the handle. It is a no-op while connected.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.db != nil {
		return nil
	}
	if dm.config.ConnectTimeout <= 0 {
		dm.config.ConnectTimeout = defaultConnectTimeout
	}

	sqlDB, db, err := openBun(dm.config)
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	dm.tunePool(sqlDB)
	dm.addQueryHooks(db)

	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		dm.lastError = err
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}

	dm.db, dm.sqlDB = db, sqlDB
	dm.connected, dm.lastError, dm.attempts = true, nil, 0
	if dm.config.HealthCheckInterval > 0 {
		dm.watchOnce.Do(func() { go dm.watch() })
	}

	dm.logger.Info("Database connected", "type", dm.config.Type, "host", dm.config.Host, "dbname", dm.config.DBName)
	return nil
}

func (dm *defaultDatabaseManager) addQueryHooks(db *bun.DB) {
	if dm.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.FromEnv("BUNDEBUG")))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(dm.config.SlowQueryTime, dm.logger))
	}
}

func (dm *defaultDatabaseManager) tunePool(sqlDB *sql.DB) {
	cfg := dm.config
	if isInMemorySQLite(cfg) {
		// The in-memory database is dropped with its last connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		return
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// Disconnect stops the health watcher and closes the handle. Calling it
// again is safe.
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.stopOnce.Do(func() { close(dm.stop) })
	return dm.release()
}

func (dm *defaultDatabaseManager) release() error {
	dm.mu.Lock()
	db := dm.db
	dm.db, dm.sqlDB, dm.connected = nil, nil, false
	dm.mu.Unlock()

	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	dm.logger.Info("Database connection closed")
	return nil
}

// Reconnect restores connectivity on the existing handle. database/sql
// redials broken connections by itself, so the *bun.DB held by the registry
// and the repositories is never replaced. Only a manager that was
// disconnected opens a new handle.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return dm.Connect(ctx)
	}

	timeout := dm.config.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := db.PingContext(pingCtx)

	dm.mu.Lock()
	dm.connected, dm.lastError = err == nil, err
	if err == nil {
		dm.attempts = 0
	}
	dm.mu.Unlock()

	if err != nil {
		return fmt.Errorf("database still unreachable: %w", err)
	}
	dm.logger.Info("Database reachable again", "type", dm.config.Type)
	return nil
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return ErrNotConnected
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

// HealthCheck pings the handle and records the outcome with pool usage.
func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	status := &HealthStatus{LastCheckTime: time.Now(), Connected: dm.connected}
	defer func() { dm.last = status }()

	if dm.db == nil {
		status.LastError = ErrNotConnected.Error()
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	err := dm.db.PingContext(pingCtx)
	status.ResponseTime = time.Since(status.LastCheckTime)
	status.Healthy = err == nil
	status.Connected = err == nil
	dm.lastError = err
	if err != nil {
		status.LastError = err.Error()
	}

	pool := dm.sqlDB.Stats()
	status.ActiveConns, status.IdleConns, status.MaxOpenConns = pool.InUse, pool.Idle, pool.MaxOpenConnections
	return status
}

// watch runs periodic health checks until Disconnect, reconnecting on
// failure when enabled.
func (dm *defaultDatabaseManager) watch() {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-dm.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*healthPingTimeout)
		healthy := dm.HealthCheck(ctx).Healthy
		cancel()
		if !healthy && dm.config.EnableReconnect {
			dm.retry()
		}
	}
}

func (dm *defaultDatabaseManager) retry() {
	dm.mu.Lock()
	if dm.attempts >= dm.config.MaxReconnectTries {
		attempts := dm.attempts
		dm.mu.Unlock()
		dm.logger.Error("Max reconnect attempts reached, stopping", "tries", attempts)
		return
	}
	dm.attempts++
	attempt := dm.attempts
	dm.mu.Unlock()

	select {
	case <-time.After(dm.config.ReconnectInterval):
	case <-dm.stop:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dm.config.ConnectTimeout)
	defer cancel()
	if err := dm.Reconnect(ctx); err != nil {
		dm.logger.Error("Reconnect failed", "error", err, "try", attempt)
		return
	}
	dm.logger.Info("Reconnect succeeded", "try", attempt)
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	sqlDB := dm.GetSQLDB()
	if sqlDB == nil {
		return &DBStats{}
	}
	s := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}
