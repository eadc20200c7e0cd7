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
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/tomoncle/agentdesk/types"
)

// MessageRole identifies who authored a message. It is stored by name.
type MessageRole int

const (
	RoleUser MessageRole = iota + 1
	RoleAgent
	RoleSystem
)

var _ types.BaseEnum = RoleUser

var roleNames = map[MessageRole][2]string{
	RoleUser:   {"user", "message written by the user"},
	RoleAgent:  {"agent", "reply produced by an agent"},
	RoleSystem: {"system", "instruction injected by the system"},
}

// Roles lists every valid role.
func Roles() []MessageRole {
	return []MessageRole{RoleUser, RoleAgent, RoleSystem}
}

// ParseMessageRole resolves a role by name.
func ParseMessageRole(name string) (MessageRole, error) {
	r, ok := types.LookupEnum(name, Roles()...)
	if !ok {
		return MessageRole(types.IllegalValue), fmt.Errorf("invalid message role %q", name)
	}
	return r, nil
}

func (r MessageRole) IsValid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r MessageRole) Number() int {
	if !r.IsValid() {
		return types.IllegalValue
	}
	return int(r)
}

func (r MessageRole) Name() string {
	if n, ok := roleNames[r]; ok {
		return n[0]
	}
	return types.IllegalName
}

func (r MessageRole) Desc() string {
	if n, ok := roleNames[r]; ok {
		return n[1]
	}
	return types.IllegalDesc
}

func (r MessageRole) String() string { return r.Name() }

// Value implements driver.Valuer.
func (r MessageRole) Value() (driver.Value, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid message role %d", int(r))
	}
	return r.Name(), nil
}

// Scan implements sql.Scanner.
func (r *MessageRole) Scan(value interface{}) error {
	var name string
	switch v := value.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		return fmt.Errorf("unsupported message role type %T", value)
	}
	parsed, err := ParseMessageRole(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r MessageRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Name())
}

func (r *MessageRole) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseMessageRole(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
