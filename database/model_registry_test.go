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
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type testAuthor struct {
	bun.BaseModel `bun:"table:authors,alias:au"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

type testPost struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID       int64  `bun:"id,pk,autoincrement"`
	AuthorID int64  `bun:"author_id,notnull"`
	Title    string `bun:"title"`
}

type testTag struct {
	ID int64 `bun:"id,pk,autoincrement"`
}

// testDefinition counts its association calls and runs hook, if any.
type testDefinition struct {
	*ModelAdapter
	calls int
	hook  func(reg *Registry, self SQLModel) error
}

func (d *testDefinition) Associate(reg *Registry) error {
	d.calls++
	if d.hook == nil {
		return nil
	}
	return d.hook(reg, d)
}

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	// Each connection to an unnamed in-memory database is a new database.
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func define(def **testDefinition, name string, instance interface{}, priority int, hook func(*Registry, SQLModel) error) ModelLoader {
	return func(db *bun.DB) SQLModel {
		*def = &testDefinition{ModelAdapter: NewModelAdapter(db, name, instance, priority), hook: hook}
		return *def
	}
}

func TestRegistryLoadAndLookup(t *testing.T) {
	db := openTestDB(t)
	reg := NewRegistry(db)

	var author, post *testDefinition
	require.NoError(t, reg.Load("Post", define(&post, "Post", (*testPost)(nil), 20, nil)))
	require.NoError(t, reg.Load("Author", define(&author, "Author", (*testAuthor)(nil), 10, nil)))

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"Post", "Author"}, reg.Names())

	got, ok := reg.Get("Author")
	require.True(t, ok)
	assert.Same(t, author, got)
	assert.Equal(t, "authors", got.Table())
	assert.Same(t, db, got.DB())

	_, ok = reg.Get("Comment")
	assert.False(t, ok)
	assert.Panics(t, func() { reg.MustGet("Comment") })

	models := reg.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "Author", models[0].Name())
	assert.Equal(t, "Post", models[1].Name())
	assert.Equal(t, []interface{}{(*testAuthor)(nil), (*testPost)(nil)}, reg.Instances())
	assert.Same(t, db, reg.DB())
}

func TestRegistryLoadRejectsInvalidDefinitions(t *testing.T) {
	db := openTestDB(t)
	other := openTestDB(t)
	reg := NewRegistry(db)

	assert.Error(t, reg.Load("", func(db *bun.DB) SQLModel { return NewModelAdapter(db, "x", (*testAuthor)(nil), 0) }))
	assert.Error(t, reg.Load("Nil", nil))
	assert.Error(t, reg.Load("Empty", func(*bun.DB) SQLModel { return nil }))
	assert.Error(t, reg.Load("TypedNil", func(*bun.DB) SQLModel { return (*testDefinition)(nil) }))
	assert.Error(t, reg.Load("NoInstance", func(db *bun.DB) SQLModel { return NewModelAdapter(db, "NoInstance", nil, 0) }))

	err := reg.Load("Foreign", func(*bun.DB) SQLModel { return NewModelAdapter(other, "Foreign", (*testAuthor)(nil), 0) })
	assert.ErrorContains(t, err, "different connection")

	var author *testDefinition
	require.NoError(t, reg.Load("Author", define(&author, "Author", (*testAuthor)(nil), 10, nil)))
	err = reg.Load("Author", define(&author, "Author", (*testAuthor)(nil), 10, nil))
	assert.ErrorIs(t, err, ErrDuplicateModel)

	assert.Equal(t, []string{"Author"}, reg.Names())
}

func TestRegistryAssociateRunsOnce(t *testing.T) {
	reg := NewRegistry(openTestDB(t))

	var author, post *testDefinition
	require.NoError(t, reg.Load("Author", define(&author, "Author", (*testAuthor)(nil), 10, nil)))
	require.NoError(t, reg.Load("Post", define(&post, "Post", (*testPost)(nil), 20, nil)))
	require.NoError(t, reg.Load("Plain", func(db *bun.DB) SQLModel {
		return NewModelAdapter(db, "Plain", (*testTag)(nil), 30)
	}))

	require.NoError(t, reg.Associate())
	assert.True(t, reg.Wired())
	assert.ErrorIs(t, reg.Associate(), ErrAlreadyAssociated)

	assert.Equal(t, 1, author.calls)
	assert.Equal(t, 1, post.calls)

	err := reg.Load("Late", define(&post, "Late", (*testPost)(nil), 40, nil))
	assert.ErrorIs(t, err, ErrAlreadyAssociated)
	assert.Equal(t, 3, reg.Len())
}

func TestRegistryAssociateSeesEveryModel(t *testing.T) {
	reg := NewRegistry(openTestDB(t))

	// Author is loaded first but refers to Post, loaded after it.
	var author, post *testDefinition
	require.NoError(t, reg.Load("Author", define(&author, "Author", (*testAuthor)(nil), 10, func(reg *Registry, self SQLModel) error {
		return reg.HasMany(self, "Post", "author_id")
	})))
	require.NoError(t, reg.Load("Post", define(&post, "Post", (*testPost)(nil), 20, nil)))

	require.NoError(t, reg.Associate())
	require.Len(t, reg.Associations(), 1)
	a := reg.Associations()[0]
	assert.Equal(t, HasMany, a.Kind)
	assert.Equal(t, "Author", a.Source)
	assert.Equal(t, "Post", a.Target)
	assert.Equal(t, "id", a.References)
	assert.Equal(t, "Author has-many Post (author_id)", a.String())
	assert.Len(t, reg.AssociationsOf("Author"), 1)
	assert.Empty(t, reg.AssociationsOf("Post"))
}

func TestRegistryAssociateFailure(t *testing.T) {
	reg := NewRegistry(openTestDB(t))
	boom := errors.New("boom")

	var author, post *testDefinition
	require.NoError(t, reg.Load("Author", define(&author, "Author", (*testAuthor)(nil), 10, func(*Registry, SQLModel) error {
		return boom
	})))
	require.NoError(t, reg.Load("Post", define(&post, "Post", (*testPost)(nil), 20, nil)))

	err := reg.Associate()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "Author")
	assert.Equal(t, 0, post.calls)
	assert.ErrorIs(t, reg.Associate(), ErrAlreadyAssociated)
}

func TestRegistryUnknownTarget(t *testing.T) {
	reg := NewRegistry(openTestDB(t))

	var post *testDefinition
	require.NoError(t, reg.Load("Post", define(&post, "Post", (*testPost)(nil), 20, func(reg *Registry, self SQLModel) error {
		return reg.BelongsTo(self, "Author", "author_id")
	})))

	err := reg.Associate()
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.ErrorContains(t, err, "Post")
}

func TestRegistryDeclareOutsideWiring(t *testing.T) {
	reg := NewRegistry(openTestDB(t))

	var author, post *testDefinition
	require.NoError(t, reg.Load("Author", define(&author, "Author", (*testAuthor)(nil), 10, nil)))
	require.NoError(t, reg.Load("Post", define(&post, "Post", (*testPost)(nil), 20, nil)))

	assert.ErrorIs(t, reg.HasMany(author, "Post", "author_id"), ErrNotWiring)
	require.NoError(t, reg.Associate())
	assert.ErrorIs(t, reg.HasOne(author, "Post", "author_id"), ErrNotWiring)
	assert.Empty(t, reg.Associations())
}

func TestRegistryForeignKeys(t *testing.T) {
	reg := NewRegistry(openTestDB(t))

	var author, post *testDefinition
	require.NoError(t, reg.Load("Author", define(&author, "Author", (*testAuthor)(nil), 10, func(reg *Registry, self SQLModel) error {
		return reg.HasMany(self, "Post", "author_id")
	})))
	require.NoError(t, reg.Load("Post", define(&post, "Post", (*testPost)(nil), 20, func(reg *Registry, self SQLModel) error {
		if err := reg.BelongsTo(self, "Author", "author_id", OnDelete("cascade")); err != nil {
			return err
		}
		return reg.HasOne(self, "Author", "featured_post_id", OnDelete("set null"), OnUpdate("cascade"), References("id"))
	})))
	require.NoError(t, reg.Associate())

	fks := reg.ForeignKeys()
	require.Len(t, fks, 2)
	assert.Equal(t, ForeignKeyConstraint{
		Table:           "posts",
		Column:          "author_id",
		ReferenceTable:  "authors",
		ReferenceColumn: "id",
		OnDelete:        "CASCADE",
	}, fks[0])
	assert.Equal(t, "authors", fks[1].Table)
	assert.Equal(t, "featured_post_id", fks[1].Column)
	assert.Equal(t, "posts", fks[1].ReferenceTable)
	assert.Equal(t, "SET NULL", fks[1].OnDelete)
	assert.Equal(t, "CASCADE", fks[1].OnUpdate)
}

func TestModelAdapterTable(t *testing.T) {
	db := openTestDB(t)

	assert.Equal(t, "posts", NewModelAdapter(db, "Post", (*testPost)(nil), 0).Table())
	// Without a table tag bun derives the name from the struct.
	assert.Equal(t, db.Table(reflect.TypeOf(testTag{})).Name, NewModelAdapter(db, "Tag", (*testTag)(nil), 0).Table())
	assert.Equal(t, "widgets", NewModelAdapter(db, "Widget", nil, 0).Table())

	// Without a handle only the bun.BaseModel tag is read.
	assert.Equal(t, "posts", NewModelAdapter(nil, "Post", (*testPost)(nil), 0).Table())
	assert.Equal(t, "tags", NewModelAdapter(nil, "Tag", (*testTag)(nil), 0).Table())

	_, err := resolveTableName(db, "not a struct")
	assert.Error(t, err)
}
