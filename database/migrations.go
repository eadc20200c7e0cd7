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
	"sort"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const foreignKeyVersion = "002"

// MigrationManager creates the tables of a wired registry and applies the
// foreign keys derived from its associations. Each step is recorded in the
// schema_migrations table and runs once.
type MigrationManager struct {
	db       *bun.DB
	registry *Registry
	config   DataMigrateConfig
	logger   Logger
}

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// NewMigrationManager constructs a MigrationManager for a wired registry.
func NewMigrationManager(registry *Registry, config DataMigrateConfig, logger Logger) *MigrationManager {
	if logger == nil {
		logger = NopLogger()
	}
	return &MigrationManager{
		db:       registry.DB(),
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// RunMigrations executes all pending migrations in ascending version order.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return ErrNotConnected
	}
	if !mm.registry.Wired() {
		return fmt.Errorf("model associations must be wired before migrating")
	}

	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations := mm.getAllMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}

	mm.logger.Info("Database migrations completed", "models", mm.registry.Len())
	return nil
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) getAllMigrations() []MigrationItem {
	migrations := []MigrationItem{
		{
			Version:     "001",
			Name:        "create_base_tables",
			Description: "Create tables for registered models",
			Up:          mm.createBaseTables,
		},
	}
	if mm.config.EnableForeignKey {
		migrations = append(migrations, MigrationItem{
			Version:     foreignKeyVersion,
			Name:        "add_foreign_keys",
			Description: "Add foreign key constraints from model associations",
			Up:          mm.addForeignKeys,
		})
	}
	return migrations
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		mm.logger.Debug("Migration already applied", "version", migration.Version, "name", migration.Name)
		return nil
	}

	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		record := &Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
		return nil
	})
}

// createBaseTables creates the tables by priority. SQLite cannot add
// constraints later, so there the foreign keys are declared inline.
func (mm *MigrationManager) createBaseTables(ctx context.Context, db bun.IDB) error {
	var fkm *ForeignKeyManager
	if mm.config.EnableForeignKey && db.Dialect().Name() == dialect.SQLite {
		fkm = mm.ForeignKeyManager()
		if err := mm.validate(fkm); err != nil {
			return err
		}
	}

	for _, model := range mm.registry.Models() {
		q := db.NewCreateTable().Model(model.Instance()).IfNotExists()
		if fkm != nil {
			for _, fk := range fkm.GetConstraintsByTable(model.Table()) {
				clause, args := fk.inlineClause()
				q = q.ForeignKey(clause, args...)
			}
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %s for model %s: %w", model.Table(), model.Name(), err)
		}
	}
	return nil
}

func (mm *MigrationManager) validate(fkm *ForeignKeyManager) error {
	errs := fkm.ValidateConstraints()
	for _, err := range errs {
		mm.logger.Warn("Foreign key constraint validation failed", "error", err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("foreign key constraint validation failed, %d errors in total", len(errs))
	}
	return nil
}

func (mm *MigrationManager) addForeignKeys(ctx context.Context, _ bun.IDB) error {
	fkm := mm.ForeignKeyManager()
	if err := mm.validate(fkm); err != nil {
		return err
	}

	// Run outside the step transaction: on postgres a failed ALTER aborts the
	// transaction, and an existing constraint is expected to fail.
	added, err := fkm.AddAllForeignKeys(ctx, mm.db)
	if err != nil {
		return err
	}
	mm.logger.Debug("Foreign key constraints applied", "added", added, "total", len(fkm.ListAllConstraints()))
	return nil
}

// DropForeignKeys removes the derived constraints and forgets the step that
// added them, so the next migration run adds them again.
func (mm *MigrationManager) DropForeignKeys(ctx context.Context) error {
	if mm.db == nil {
		return ErrNotConnected
	}
	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	removed, err := mm.ForeignKeyManager().RemoveAllForeignKeys(ctx, mm.db)
	if err != nil {
		return err
	}
	_, err = mm.db.NewDelete().
		Model((*Migration)(nil)).
		Where("version = ?", foreignKeyVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset foreign key migration: %w", err)
	}
	mm.logger.Info("Foreign key constraints dropped", "removed", removed)
	return nil
}

// ForeignKeyManager returns the constraints derived from the registry merged
// with the optional foreign key file.
func (mm *MigrationManager) ForeignKeyManager() *ForeignKeyManager {
	return NewForeignKeyManagerFromFile(mm.logger, mm.config.ForeignKeyFile, mm.registry.ForeignKeys())
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}
