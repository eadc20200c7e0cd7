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
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var referentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDelete        string // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string
	ConstraintName  string
}

// GenerateConstraintName returns the explicit name or fk_<table>_<column>.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// GenerateSQL returns the ALTER TABLE statement that adds the constraint.
func (fk *ForeignKeyConstraint) GenerateSQL() string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		fk.Table, fk.GenerateConstraintName(), fk.Column, fk.ReferenceTable, fk.ReferenceColumn)

	if fk.OnDelete != "" {
		sql += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		sql += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return sql
}

// inlineClause is the FOREIGN KEY body used inside CREATE TABLE, with the
// column and table names left as placeholders for bun.Ident arguments.
func (fk *ForeignKeyConstraint) inlineClause() (string, []interface{}) {
	clause := "(?) REFERENCES ? (?)"
	if fk.OnDelete != "" {
		clause += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		clause += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return clause, []interface{}{bun.Ident(fk.Column), bun.Ident(fk.ReferenceTable), bun.Ident(fk.ReferenceColumn)}
}

// ForeignKeyManager applies and validates foreign key constraints.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

// NewForeignKeyManager creates a manager for the given constraints.
func NewForeignKeyManager(logger Logger, constraints []ForeignKeyConstraint) *ForeignKeyManager {
	if logger == nil {
		logger = NopLogger()
	}
	return &ForeignKeyManager{constraints: constraints, logger: logger}
}

// NewForeignKeyManagerFromFile merges constraints from a YAML file over the
// given defaults; entries with the same constraint name replace the default.
// A missing or unreadable file leaves the defaults untouched.
func NewForeignKeyManagerFromFile(logger Logger, path string, defaults []ForeignKeyConstraint) *ForeignKeyManager {
	fkm := NewForeignKeyManager(logger, defaults)
	if path == "" {
		return fkm
	}
	fromFile, err := LoadForeignKeyFile(path)
	if err != nil {
		fkm.logger.Debug("Foreign key file not used, keeping association constraints", "error", err, "config_path", path)
		return fkm
	}
	fkm.Merge(fromFile)
	return fkm
}

// Merge adds constraints, replacing existing ones that share a constraint name.
func (fkm *ForeignKeyManager) Merge(constraints []ForeignKeyConstraint) {
	index := make(map[string]int, len(fkm.constraints))
	for i, c := range fkm.constraints {
		index[c.GenerateConstraintName()] = i
	}
	for _, c := range constraints {
		if i, ok := index[c.GenerateConstraintName()]; ok {
			fkm.constraints[i] = c
			continue
		}
		index[c.GenerateConstraintName()] = len(fkm.constraints)
		fkm.constraints = append(fkm.constraints, c)
	}
}

// AddAllForeignKeys adds every constraint. A constraint that already exists
// is skipped; any other failure stops the run and is returned. SQLite cannot
// add constraints to existing tables, so nothing is executed there.
func (fkm *ForeignKeyManager) AddAllForeignKeys(ctx context.Context, db bun.IDB) (added int, err error) {
	if db.Dialect().Name() == dialect.SQLite {
		fkm.logger.Debug("Skipping foreign key constraints, dialect does not support ALTER TABLE ADD CONSTRAINT", "dialect", db.Dialect().Name().String())
		return 0, nil
	}
	for _, constraint := range fkm.constraints {
		name := constraint.GenerateConstraintName()
		if _, err := db.ExecContext(ctx, constraint.GenerateSQL()); err != nil {
			if constraintExists(err) {
				fkm.logger.Debug("Foreign key constraint already exists", "constraint", name)
				continue
			}
			return added, fmt.Errorf("failed to add foreign key %s: %w", name, err)
		}
		added++
		fkm.logger.Debug("Added foreign key constraint", "constraint", name)
	}
	return added, nil
}

func constraintExists(err error) bool {
	is, kind := IsSqlError(err)
	return is && (kind == ExistConstraintErr || kind == ExistIndexErr)
}

// RemoveAllForeignKeys drops every constraint, skipping ones that are
// already gone (SQLSTATE 42704, mysql 1091). Nothing is executed on SQLite, where constraints are part of
// the table definition.
func (fkm *ForeignKeyManager) RemoveAllForeignKeys(ctx context.Context, db bun.IDB) (removed int, err error) {
	if db.Dialect().Name() == dialect.SQLite {
		return 0, nil
	}
	for _, constraint := range fkm.constraints {
		name := constraint.GenerateConstraintName()
		if err := fkm.RemoveForeignKey(ctx, db, constraint.Table, name); err != nil {
			if is, kind := IsSqlError(err); is && kind == NoIndexErr {
				continue
			}
			return removed, fmt.Errorf("failed to drop foreign key %s: %w", name, err)
		}
		removed++
		fkm.logger.Debug("Dropped foreign key constraint", "constraint", name)
	}
	return removed, nil
}

// RemoveForeignKey drops a named foreign key from a table.
func (fkm *ForeignKeyManager) RemoveForeignKey(ctx context.Context, db bun.IDB, tableName, constraintName string) error {
	stmt := "ALTER TABLE %s DROP CONSTRAINT %s"
	if db.Dialect().Name() == dialect.MySQL {
		stmt = "ALTER TABLE %s DROP FOREIGN KEY %s"
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(stmt, tableName, constraintName))
	return err
}

// GetConstraintsByTable returns the constraints defined on a table.
func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if strings.EqualFold(constraint.Table, tableName) {
			result = append(result, constraint)
		}
	}
	return result
}

// ListAllConstraints returns all managed constraints.
func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	return fkm.constraints
}

// ValidateConstraints reports missing names and unknown referential actions.
func (fkm *ForeignKeyManager) ValidateConstraints() []error {
	var errs []error
	for _, c := range fkm.constraints {
		if c.Table == "" {
			errs = append(errs, fmt.Errorf("table name cannot be empty"))
		}
		if c.Column == "" {
			errs = append(errs, fmt.Errorf("column name cannot be empty: %s", c.Table))
		}
		if c.ReferenceTable == "" {
			errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", c.Table, c.Column))
		}
		if c.ReferenceColumn == "" {
			errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", c.Table, c.Column, c.ReferenceTable))
		}
		if c.OnDelete != "" && !validAction(c.OnDelete) {
			errs = append(errs, fmt.Errorf("invalid delete policy: %s, constraint: %s", c.OnDelete, c.GenerateConstraintName()))
		}
		if c.OnUpdate != "" && !validAction(c.OnUpdate) {
			errs = append(errs, fmt.Errorf("invalid update policy: %s, constraint: %s", c.OnUpdate, c.GenerateConstraintName()))
		}
	}
	return errs
}

func validAction(action string) bool {
	for _, a := range referentialActions {
		if strings.EqualFold(action, a) {
			return true
		}
	}
	return false
}
