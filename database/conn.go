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

	"github.com/uptrace/bun"
)

// DataStore is the connection handle and model registry built at startup.
// It is constructed once by Bootstrap and passed to consumers explicitly.
type DataStore struct {
	config  *Config
	factory *BaseDatabaseFactory
	db      *bun.DB
	models  *Registry
	logger  Logger
}

// Bootstrap connects using cfg (after DB_* overrides), loads every ModelSpec into
// a registry in the given order, then runs the association pass once all
// models exist. Table creation and seeding follow when enabled in cfg.
//
// On any failure the connection is closed and no DataStore is returned.
func Bootstrap(ctx context.Context, cfg *Config, specs ...ModelSpec) (*DataStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	factory := NewDatabaseFactory()
	if _, err := factory.CreateFromConfig(&cfg.ConnectionConfig); err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := factory.InitializeDatabase(ctx); err != nil {
		return nil, err
	}

	store := &DataStore{
		config:  cfg,
		factory: factory,
		db:      factory.GetDB(),
		logger:  factory.logger,
	}
	if err := store.init(ctx, specs); err != nil {
		_ = factory.Close()
		return nil, err
	}
	return store, nil
}

func (s *DataStore) init(ctx context.Context, specs []ModelSpec) error {
	registry := NewRegistry(s.db)
	for _, spec := range specs {
		if err := registry.Load(spec.Name, spec.Load); err != nil {
			return fmt.Errorf("failed to load model %s: %w", spec.Name, err)
		}
	}
	if err := registry.Associate(); err != nil {
		return err
	}
	s.db.RegisterModel(registry.Instances()...)
	s.models = registry

	s.logger.Info("Model registry ready", "models", registry.Names(), "associations", len(registry.Associations()))

	if s.config.DataMigrateConfig.EnableMigrateOnStartup {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	}
	if s.config.DataInitConfig.AutoInitOnStartup {
		if _, err := s.Seed(ctx, s.config.DataInitConfig.Environment); err != nil {
			return err
		}
	}
	return nil
}

// DB returns the shared connection handle.
func (s *DataStore) DB() *bun.DB {
	return s.db
}

// Models returns the wired model registry.
func (s *DataStore) Models() *Registry {
	return s.models
}

// Manager returns the connection manager.
func (s *DataStore) Manager() AbstractDatabaseManager {
	return s.factory.GetManager()
}

// Config returns the configuration the store was built from.
func (s *DataStore) Config() *Config {
	return s.config
}

// Migrate creates missing tables and, when enabled, foreign key constraints.
func (s *DataStore) Migrate(ctx context.Context) error {
	mm := NewMigrationManager(s.models, s.config.DataMigrateConfig, s.logger)
	if err := mm.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

// DropForeignKeys removes the constraints added by Migrate and resets that
// step, so the next Migrate adds them again. On SQLite the constraints are
// part of the tables and stay in place.
func (s *DataStore) DropForeignKeys(ctx context.Context) error {
	mm := NewMigrationManager(s.models, s.config.DataMigrateConfig, s.logger)
	if err := mm.DropForeignKeys(ctx); err != nil {
		return fmt.Errorf("failed to drop foreign keys: %w", err)
	}
	return nil
}

// Seed executes the SQL files for environment, "prod" when empty.
func (s *DataStore) Seed(ctx context.Context, environment string) ([]ExecutionResult, error) {
	if environment == "" {
		environment = "prod"
	}
	sqlManager := NewSQLInitManager(s.db, environment, s.logger)
	if path := s.config.DataInitConfig.Filepath; path != "" {
		sqlManager.SetSQLRootPath(path)
	}
	results, err := sqlManager.ExecuteInitialization(ctx)
	if err != nil {
		return results, fmt.Errorf("failed to seed data: %w", err)
	}
	return results, nil
}

// Health pings the database and reports pool usage.
func (s *DataStore) Health(ctx context.Context) *HealthStatus {
	return s.factory.GetHealthStatus(ctx)
}

// Stats returns connection pool statistics.
func (s *DataStore) Stats() *DBStats {
	return s.factory.GetStats()
}

// Close stops health checks and closes the connection.
func (s *DataStore) Close() error {
	return s.factory.Close()
}
