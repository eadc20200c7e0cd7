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

// Message is one entry of a conversation between a user and an agent.
// AgentID is nil for messages not addressed to an agent.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID        int64       `bun:"id,pk,autoincrement" json:"id"`
	UUID      uuid.UUID   `bun:"uuid,type:varchar(36),notnull,unique" json:"uuid"`
	UserID    int64       `bun:"user_id,notnull" json:"user_id"`
	AgentID   *int64      `bun:"agent_id" json:"agent_id,omitempty"`
	Role      MessageRole `bun:"role,type:varchar(16),notnull" json:"role"`
	Content   string      `bun:"content,type:text,notnull" json:"content"`
	CreatedAt time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`

	User  *User  `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Agent *Agent `bun:"rel:belongs-to,join:agent_id=id" json:"agent,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*Message)(nil)

func (m *Message) BeforeAppendModel(_ context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if m.UUID == uuid.Nil {
			m.UUID = uuid.New()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		if !m.Role.IsValid() {
			m.Role = RoleUser
		}
	}
	return nil
}

type messageDefinition struct {
	*database.ModelAdapter
}

// DefineMessage binds the messages table to db.
func DefineMessage(db *bun.DB) database.SQLModel {
	return &messageDefinition{database.NewModelAdapter(db, MessageModel, (*Message)(nil), 30)}
}

// Associate links a message to its author and, optionally, to an agent.
func (d *messageDefinition) Associate(reg *database.Registry) error {
	if err := reg.BelongsTo(d, UserModel, "user_id", database.OnDelete("CASCADE")); err != nil {
		return err
	}
	return reg.BelongsTo(d, AgentModel, "agent_id", database.OnDelete("SET NULL"))
}
