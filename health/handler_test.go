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

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/agentdesk/database"
	"github.com/uptrace/bun"
)

type fakeSource struct {
	status   *database.HealthStatus
	stats    *database.DBStats
	registry *database.Registry
}

func (f *fakeSource) Health(context.Context) *database.HealthStatus { return f.status }
func (f *fakeSource) Stats() *database.DBStats                      { return f.stats }
func (f *fakeSource) Models() *database.Registry                    { return f.registry }

func serve(t *testing.T, source Source, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(source, gin.TestMode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := serve(t, &fakeSource{status: &database.HealthStatus{Healthy: true, Connected: true}}, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	var status database.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Healthy)

	w = serve(t, &fakeSource{status: &database.HealthStatus{LastError: "database not connected"}}, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database not connected")
}

func TestStats(t *testing.T) {
	w := serve(t, &fakeSource{stats: &database.DBStats{MaxOpenConns: 5, InUse: 2}}, "/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"max_open_conns":5`)

	w = serve(t, &fakeSource{}, "/stats")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestModels(t *testing.T) {
	w := serve(t, &fakeSource{}, "/models")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	registry := database.NewRegistry(nil)
	require.NoError(t, registry.Load("Widget", func(db *bun.DB) database.SQLModel {
		return database.NewModelAdapter(db, "Widget", &struct{ ID int64 }{}, 1)
	}))
	require.NoError(t, registry.Associate())

	w = serve(t, &fakeSource{registry: registry}, "/models")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Models []ModelInfo `json:"models"`
		Wired  bool        `json:"wired"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Wired)
	require.Len(t, body.Models, 1)
	assert.Equal(t, "Widget", body.Models[0].Name)
	assert.Equal(t, "widgets", body.Models[0].Table)
	assert.Empty(t, body.Models[0].Associations)
}
