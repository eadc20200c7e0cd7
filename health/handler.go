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

// Package health exposes the database status and the model registry over HTTP.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tomoncle/agentdesk/database"
	"github.com/tomoncle/agentdesk/utils"
)

var log = utils.NewLogger("HEALTH")

// Source is the part of a database.DataStore the handlers read.
type Source interface {
	Health(ctx context.Context) *database.HealthStatus
	Stats() *database.DBStats
	Models() *database.Registry
}

type Handler struct {
	source  Source
	timeout time.Duration
}

func NewHandler(source Source) *Handler {
	return &Handler{source: source, timeout: 5 * time.Second}
}

// ModelInfo describes one registered model.
type ModelInfo struct {
	Name         string                 `json:"name"`
	Table        string                 `json:"table"`
	Priority     int                    `json:"priority"`
	Associations []database.Association `json:"associations"`
}

// Healthz answers 200 with the health status, or 503 when the database is unhealthy.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := h.source.Health(ctx)
	if status == nil || !status.Healthy {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) Stats(c *gin.Context) {
	stats := h.source.Stats()
	if stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not connected"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Models lists the registry in creation order with each model's associations.
func (h *Handler) Models(c *gin.Context) {
	registry := h.source.Models()
	if registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model registry not ready"})
		return
	}
	models := registry.Models()
	result := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		associations := registry.AssociationsOf(m.Name())
		if associations == nil {
			associations = []database.Association{}
		}
		result = append(result, ModelInfo{
			Name:         m.Name(),
			Table:        m.Table(),
			Priority:     m.Priority(),
			Associations: associations,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": result, "wired": registry.Wired()})
}

// RegisterRoutes mounts the handlers on router.
func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/healthz", h.Healthz)
	router.GET("/stats", h.Stats)
	router.GET("/models", h.Models)
}

// NewRouter builds a gin engine serving the health routes.
func NewRouter(source Source, mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), accessLog())
	NewHandler(source).RegisterRoutes(router)
	return router
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithField("status", c.Writer.Status()).
			WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("latency", time.Since(start)).
			Debug("request served")
	}
}
