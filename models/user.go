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

package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/agentdesk/database"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UUID      uuid.UUID `bun:"uuid,type:varchar(36),notnull,unique" json:"uuid"`
	Username  string    `bun:"username,notnull,unique" json:"username"`
	Email     string    `bun:"email,notnull,unique" json:"email"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Messages []*Message `bun:"rel:has-many,join:id=user_id" json:"messages,omitempty"`
	Agents   []*Agent   `bun:"rel:has-many,join:id=owner_id" json:"agents,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

func (u *User) BeforeAppendModel(_ context.Context, query bun.Query) error {
	now := time.Now()
	switch query.(type) {
	case *bun.InsertQuery:
		if u.UUID == uuid.Nil {
			u.UUID = uuid.New()
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		u.UpdatedAt = now
	case *bun.UpdateQuery:
		u.UpdatedAt = now
	}
	return nil
}

type userDefinition struct {
	*database.ModelAdapter
}

// DefineUser binds the users table to db.
func DefineUser(db *bun.DB) database.SQLModel {
	return &userDefinition{database.NewModelAdapter(db, UserModel, (*User)(nil), 10)}
}

// Associate declares that a user owns messages and agents.
func (d *userDefinition) Associate(reg *database.Registry) error {
	if err := reg.HasMany(d, MessageModel, "user_id"); err != nil {
		return err
	}
	return reg.HasMany(d, AgentModel, "owner_id")
}
