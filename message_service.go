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

package agentdesk

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomoncle/agentdesk/database"
	"github.com/tomoncle/agentdesk/models"
	"github.com/tomoncle/agentdesk/types"
)

// MessageService adds conversation queries to the generic message service.
type MessageService struct {
	Service[models.Message]
}

func NewMessageService(store *database.DataStore) *MessageService {
	return &MessageService{Service: NewService[models.Message](store)}
}

// History pages the messages exchanged between a user and an agent, oldest
// first, with the User and Agent relations loaded. agentID 0 selects the
// messages not addressed to any agent.
func (s *MessageService) History(ctx context.Context, userID, agentID int64, page, pageSize int) (*types.Pagination[models.Message], error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id %d", userID)
	}
	where := []string{"?TableAlias.user_id = ?"}
	args := []interface{}{userID}
	if agentID > 0 {
		where = append(where, "?TableAlias.agent_id = ?")
		args = append(args, agentID)
	} else {
		where = append(where, "?TableAlias.agent_id IS NULL")
	}
	request := types.NewPageRequest(page, pageSize,
		types.NewQueryFilter(strings.Join(where, " AND "), args...),
		[]string{"m.created_at ASC", "m.id ASC"})
	return s.Repository().PageWithRelations(ctx, request, "User", "Agent")
}

// Post stores a message from role in the conversation between userID and
// agentID. agentID 0 leaves the message unaddressed.
func (s *MessageService) Post(ctx context.Context, userID, agentID int64, role models.MessageRole, content string) (*models.Message, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid message role %d", int(role))
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content cannot be empty")
	}
	msg := &models.Message{UserID: userID, Role: role, Content: content}
	if agentID > 0 {
		msg.AgentID = &agentID
	}
	if err := s.Save(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
