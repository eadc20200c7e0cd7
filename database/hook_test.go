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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
)

type recordingLogger struct {
	nopLogger
	warnings []string
}

func (l *recordingLogger) Warn(msg string, _ ...interface{}) {
	l.warnings = append(l.warnings, msg)
}

func TestSlowQueryHook(t *testing.T) {
	color.NoColor = true
	logger := &recordingLogger{}
	var out bytes.Buffer
	hook := NewSlowQueryHook(10*time.Millisecond, logger).WithWriter(&out)

	fast := &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()}
	hook.AfterQuery(hook.BeforeQuery(context.Background(), fast), fast)
	assert.Empty(t, logger.warnings)
	assert.Zero(t, out.Len())

	failed := &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now().Add(-time.Second), Err: errors.New("boom")}
	hook.AfterQuery(context.Background(), failed)
	assert.Empty(t, logger.warnings)

	slow := &bun.QueryEvent{Query: "SELECT * FROM messages", StartTime: time.Now().Add(-time.Second)}
	hook.AfterQuery(context.Background(), slow)
	assert.Equal(t, []string{"Database slow query detected"}, logger.warnings)
	assert.Contains(t, out.String(), "[BUN_SLOW]")
	assert.Contains(t, out.String(), "SELECT * FROM messages")
}

func TestSlowQueryHookDisabled(t *testing.T) {
	logger := &recordingLogger{}
	hook := NewSlowQueryHook(0, logger)
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Hour)})
	assert.Empty(t, logger.warnings)
}
