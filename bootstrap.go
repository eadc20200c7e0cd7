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

	"github.com/tomoncle/agentdesk/database"
	"github.com/tomoncle/agentdesk/models"
)

// Bootstrap connects with cfg and returns a store holding the User, Message
// and Agent definitions with their associations wired.
func Bootstrap(ctx context.Context, cfg *database.Config) (*database.DataStore, error) {
	return database.Bootstrap(ctx, cfg, models.Specs()...)
}

// Services groups the per-model services built over one store.
type Services struct {
	Users    Service[models.User]
	Agents   Service[models.Agent]
	Messages *MessageService
}

// NewServices builds every model service from store.
func NewServices(store *database.DataStore) *Services {
	return &Services{
		Users:    NewService[models.User](store),
		Agents:   NewService[models.Agent](store),
		Messages: NewMessageService(store),
	}
}
