// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api is the presentation layer: the upload and question page plus
// the JSON endpoints it calls.
package api

import (
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

//go:embed templates/*.html
var templateFS embed.FS

// Analyzer is the part of the orchestrator the handlers need.
type Analyzer interface {
	Receive(ctx context.Context, fileName string, r io.Reader) (*model.UploadedVideo, error)
	Analyze(ctx context.Context, videoID string, query string) (*model.AnalysisResult, error)
	Discard(videoID string) error
	Stats() model.AnalysisStats
}

// Page is the data rendered into index.html.
type Page struct {
	Title       string
	Header      string
	AgentName   string
	Accept      string
	MaxUploadMB int64
}

// NewPage describes the page for the configured agent.
func NewPage(config *cloud.Config, agent services.AgentConfig) Page {
	accept := make([]string, 0)
	for _, ext := range model.AcceptedExtensions() {
		accept = append(accept, "."+ext)
	}
	return Page{
		Title:       "Phidata AI Video Summarizer Agent",
		Header:      "Powered by " + agent.Model,
		AgentName:   agent.Name,
		Accept:      strings.Join(accept, ","),
		MaxUploadMB: config.Storage.MaxUploadMB,
	}
}

// NewRouter builds the gin engine with tracing, CORS, the page and the
// /api/v1 routes.
func NewRouter(config *cloud.Config, analyzer Analyzer, agent services.AgentConfig) *gin.Engine {
	if config.Server.GinMode != "" {
		gin.SetMode(config.Server.GinMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(config.Application.Name))
	r.Use(requestLogger())
	r.Use(corsMiddleware(config.Server.AllowedOrigins))
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	page := NewPage(config, agent)
	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", page)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		VideoRouter(apiV1, config, analyzer)
		Dashboard(apiV1, analyzer)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	})
}

// requestLogger writes one structured line per request through slog, so the
// span context handler can attach trace ids.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" {
			return
		}
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds())
	}
}
