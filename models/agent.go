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
	"github.com/tomoncle/agentdesk/types"
	"github.com/uptrace/bun"
)

// Agent is an assistant configured and owned by a user.
type Agent struct {
	bun.BaseModel `bun:"table:agents,alias:a"`

	ID          int64            `bun:"id,pk,autoincrement" json:"id"`
	UUID        uuid.UUID        `bun:"uuid,type:varchar(36),notnull,unique" json:"uuid"`
	OwnerID     int64            `bun:"owner_id,notnull" json:"owner_id"`
	Name        string           `bun:"name,notnull" json:"name"`
	Description string           `bun:"description" json:"description"`
	Settings    types.JsonObject `bun:"settings,type:text" json:"settings,omitempty"`
	CreatedAt   time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Owner    *User      `bun:"rel:belongs-to,join:owner_id=id" json:"owner,omitempty"`
	Messages []*Message `bun:"rel:has-many,join:id=agent_id" json:"messages,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*Agent)(nil)

func (a *Agent) BeforeAppendModel(_ context.Context, query bun.Query) error {
	now := time.Now()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.UUID == uuid.Nil {
			a.UUID = uuid.New()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

type agentDefinition struct {
	*database.ModelAdapter
}

// DefineAgent binds the agents table to db.
func DefineAgent(db *bun.DB) database.SQLModel {
	return &agentDefinition{database.NewModelAdapter(db, AgentModel, (*Agent)(nil), 20)}
}

// Associate declares the owner link, removed with its user, and the agent's messages.
func (d *agentDefinition) Associate(reg *database.Registry) error {
	if err := reg.BelongsTo(d, UserModel, "owner_id", database.OnDelete("CASCADE")); err != nil {
		return err
	}
	return reg.HasMany(d, MessageModel, "agent_id")
}
