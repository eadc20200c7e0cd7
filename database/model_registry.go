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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/uptrace/bun"
)

var (
	ErrUnknownModel      = errors.New("unknown model")
	ErrDuplicateModel    = errors.New("model already registered")
	ErrAlreadyAssociated = errors.New("associations already wired")
	ErrNotWiring         = errors.New("associations can only be declared while wiring")
)

// SQLModel is a model definition bound to a connection handle. Instance
// returns a bun struct pointer; lower Priority values are created first.
type SQLModel interface {
	Name() string
	Instance() interface{}
	Priority() int
	Table() string
	DB() *bun.DB
}

// Associator is implemented by model definitions that declare relationships
// to other models. Associate is called once, after every model is loaded.
type Associator interface {
	Associate(reg *Registry) error
}

// ModelLoader builds a model definition bound to db.
type ModelLoader func(db *bun.DB) SQLModel

// ModelSpec names a loader in the fixed bootstrap list.
type ModelSpec struct {
	Name string
	Load ModelLoader
}

// AssociationKind is the cardinality of an association.
type AssociationKind string

const (
	HasMany   AssociationKind = "has-many"
	HasOne    AssociationKind = "has-one"
	BelongsTo AssociationKind = "belongs-to"
)

// Association is a declared relationship between two registered models.
// ForeignKey always names the column holding the reference: on the target
// for HasMany/HasOne, on the source for BelongsTo.
type Association struct {
	Kind       AssociationKind `json:"kind"`
	Source     string          `json:"source"`
	Target     string          `json:"target"`
	ForeignKey string          `json:"foreign_key"`
	References string          `json:"references"`
	OnDelete   string          `json:"on_delete,omitempty"`
	OnUpdate   string          `json:"on_update,omitempty"`
}

func (a Association) String() string {
	return fmt.Sprintf("%s %s %s (%s)", a.Source, a.Kind, a.Target, a.ForeignKey)
}

// AssociationOption tunes a declared association.
type AssociationOption func(*Association)

// OnDelete sets the referential action applied when the referenced row is deleted.
func OnDelete(action string) AssociationOption {
	return func(a *Association) { a.OnDelete = strings.ToUpper(action) }
}

// OnUpdate sets the referential action applied when the referenced key changes.
func OnUpdate(action string) AssociationOption {
	return func(a *Association) { a.OnUpdate = strings.ToUpper(action) }
}

// References overrides the referenced column, "id" by default.
func References(column string) AssociationOption {
	return func(a *Association) { a.References = column }
}

// Registry maps model names to definitions bound to one shared handle.
// It is filled by Load, wired once by Associate, and read-only afterwards.
type Registry struct {
	db           *bun.DB
	names        []string
	models       map[string]SQLModel
	associations []Association
	wiring       bool
	wired        bool
	mutex        sync.RWMutex
}

// NewRegistry creates an empty registry for db.
func NewRegistry(db *bun.DB) *Registry {
	return &Registry{
		db:     db,
		models: make(map[string]SQLModel),
	}
}

// Load builds a definition with loader and stores it under name.
func (r *Registry) Load(name string, loader ModelLoader) error {
	if name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if loader == nil {
		return fmt.Errorf("model %s: loader cannot be nil", name)
	}
	model := loader(r.db)
	if isNil(model) || model.Instance() == nil {
		return fmt.Errorf("model %s: loader returned an empty definition", name)
	}
	if model.DB() != r.db {
		return fmt.Errorf("model %s: definition is bound to a different connection", name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.wired || r.wiring {
		return fmt.Errorf("model %s: %w", name, ErrAlreadyAssociated)
	}
	if _, ok := r.models[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, name)
	}
	r.models[name] = model
	r.names = append(r.names, name)
	return nil
}

// Associate invokes the Associator hook of every loaded model in load order.
// It runs at most once; the first hook error aborts the pass and leaves the
// registry unusable for another attempt.
func (r *Registry) Associate() error {
	r.mutex.Lock()
	if r.wired || r.wiring {
		r.mutex.Unlock()
		return ErrAlreadyAssociated
	}
	r.wiring = true
	names := append([]string(nil), r.names...)
	r.mutex.Unlock()

	defer func() {
		r.mutex.Lock()
		r.wiring = false
		r.wired = true
		r.mutex.Unlock()
	}()

	for _, name := range names {
		associator, ok := r.models[name].(Associator)
		if !ok {
			continue
		}
		if err := associator.Associate(r); err != nil {
			return fmt.Errorf("failed to associate model %s: %w", name, err)
		}
	}
	return nil
}

// Wired reports whether Associate has run.
func (r *Registry) Wired() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.wired
}

// HasMany declares that each owner row has many target rows referencing it
// through foreignKey on the target table.
func (r *Registry) HasMany(owner SQLModel, target, foreignKey string, opts ...AssociationOption) error {
	return r.declare(HasMany, owner, target, foreignKey, opts)
}

// HasOne declares a one-to-one link with foreignKey on the target table.
func (r *Registry) HasOne(owner SQLModel, target, foreignKey string, opts ...AssociationOption) error {
	return r.declare(HasOne, owner, target, foreignKey, opts)
}

// BelongsTo declares that owner references target through its own foreignKey.
func (r *Registry) BelongsTo(owner SQLModel, target, foreignKey string, opts ...AssociationOption) error {
	return r.declare(BelongsTo, owner, target, foreignKey, opts)
}

func (r *Registry) declare(kind AssociationKind, owner SQLModel, target, foreignKey string, opts []AssociationOption) error {
	if owner == nil {
		return fmt.Errorf("association owner cannot be nil")
	}
	if foreignKey == "" {
		return fmt.Errorf("%s %s %s: foreign key cannot be empty", owner.Name(), kind, target)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.wiring {
		return ErrNotWiring
	}
	if _, ok := r.models[owner.Name()]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, owner.Name())
	}
	if _, ok := r.models[target]; !ok {
		return fmt.Errorf("%s %s: %w: %s", owner.Name(), kind, ErrUnknownModel, target)
	}

	a := Association{
		Kind:       kind,
		Source:     owner.Name(),
		Target:     target,
		ForeignKey: foreignKey,
		References: "id",
	}
	for _, opt := range opts {
		opt(&a)
	}
	r.associations = append(r.associations, a)
	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (SQLModel, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// MustGet is Get that panics on unknown names.
func (r *Registry) MustGet(name string) SQLModel {
	m, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("%v: %s", ErrUnknownModel, name))
	}
	return m
}

// Names returns model names in load order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]string(nil), r.names...)
}

// Len returns the number of loaded models.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.names)
}

// Models returns definitions ordered by priority, ties kept in load order.
func (r *Registry) Models() []SQLModel {
	r.mutex.RLock()
	result := make([]SQLModel, 0, len(r.names))
	for _, name := range r.names {
		result = append(result, r.models[name])
	}
	r.mutex.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

// Instances returns the bun struct pointers of Models, in the same order.
func (r *Registry) Instances() []interface{} {
	models := r.Models()
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}

// DB returns the handle shared by every definition.
func (r *Registry) DB() *bun.DB {
	return r.db
}

// Associations returns the declared associations in declaration order.
func (r *Registry) Associations() []Association {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]Association(nil), r.associations...)
}

// AssociationsOf returns the associations declared by the named model.
func (r *Registry) AssociationsOf(name string) []Association {
	var result []Association
	for _, a := range r.Associations() {
		if a.Source == name {
			result = append(result, a)
		}
	}
	return result
}

// ForeignKeys derives one constraint per referencing column. A HasMany and
// the matching BelongsTo produce a single constraint; the BelongsTo side
// wins because it carries the referential actions of the child table.
func (r *Registry) ForeignKeys() []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	index := make(map[string]int)
	for _, a := range r.Associations() {
		child, parent := a.Target, a.Source
		if a.Kind == BelongsTo {
			child, parent = a.Source, a.Target
		}
		childModel, _ := r.Get(child)
		parentModel, _ := r.Get(parent)
		fk := ForeignKeyConstraint{
			Table:           childModel.Table(),
			Column:          a.ForeignKey,
			ReferenceTable:  parentModel.Table(),
			ReferenceColumn: a.References,
			OnDelete:        a.OnDelete,
			OnUpdate:        a.OnUpdate,
		}
		key := fk.GenerateConstraintName()
		if i, ok := index[key]; ok {
			if a.Kind == BelongsTo {
				result[i] = fk
			}
			continue
		}
		index[key] = len(result)
		result = append(result, fk)
	}
	return result
}

// ModelAdapter is the default SQLModel implementation.
type ModelAdapter struct {
	name     string
	instance interface{}
	priority int
	table    string
	db       *bun.DB
}

// NewModelAdapter binds a bun struct pointer to db under name. The table
// name is the one bun derives for the struct; without a handle it is read
// from the bun.BaseModel tag, falling back to the pluralized name.
func NewModelAdapter(db *bun.DB, name string, instance interface{}, priority int) *ModelAdapter {
	table, err := resolveTableName(db, instance)
	if err != nil {
		table = strings.ToLower(name) + "s"
	}
	return &ModelAdapter{
		name:     name,
		instance: instance,
		priority: priority,
		table:    table,
		db:       db,
	}
}

func (a *ModelAdapter) Name() string { return a.name }

// Instance returns the underlying struct used for table creation.
func (a *ModelAdapter) Instance() interface{} { return a.instance }

// Priority returns the model's ordering value; lower values run earlier.
func (a *ModelAdapter) Priority() int { return a.priority }

// Table returns the table name from the bun.BaseModel tag.
func (a *ModelAdapter) Table() string { return a.table }

func (a *ModelAdapter) DB() *bun.DB { return a.db }

func resolveTableName(db *bun.DB, model interface{}) (string, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return "", fmt.Errorf("model cannot be nil")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", fmt.Errorf("model %s is not a struct", t)
	}
	if db != nil {
		return db.Table(t).Name, nil
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Name() != "BaseModel" || !strings.Contains(f.Type.PkgPath(), "uptrace/bun") {
			continue
		}
		for _, part := range strings.Split(f.Tag.Get("bun"), ",") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, "table:") {
				return strings.TrimPrefix(part, "table:"), nil
			}
		}
	}
	return "", fmt.Errorf("missing table tag on bun.BaseModel")
}

// isNil also catches typed nil pointers stored in an interface.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
