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

package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

const (
	// NoVideoMessage is shown when there is no upload to analyze.
	NoVideoMessage = "Upload a video file to analyze."
	// AnalysisErrorPrefix precedes the cause of a failed analysis.
	AnalysisErrorPrefix = "An error occurred during analysis: "

	videoFormField = "video"
	// Room for the multipart boundaries and headers around the file.
	multipartOverhead = 1 << 20
)

type analysisRequest struct {
	Query string `json:"query"`
}

// VideoRouter sets up the upload, analysis and discard routes.
func VideoRouter(r *gin.RouterGroup, config *cloud.Config, analyzer Analyzer) {
	videos := r.Group("/videos")
	{
		videos.POST("", func(c *gin.Context) {
			if config.Storage.MaxUploadMB > 0 {
				c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body,
					config.Storage.MaxUploadMB<<20+multipartOverhead)
			}
			header, err := c.FormFile(videoFormField)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					c.JSON(http.StatusRequestEntityTooLarge, gin.H{
						"status":  "warning",
						"message": fmt.Sprintf("The uploaded video exceeds the %d MB limit.", config.Storage.MaxUploadMB),
					})
					return
				}
				c.JSON(http.StatusBadRequest, gin.H{"status": "warning", "message": NoVideoMessage})
				return
			}
			file, err := header.Open()
			if err != nil {
				slog.ErrorContext(c.Request.Context(), "failed to open uploaded file", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Could not read the uploaded video."})
				return
			}
			defer file.Close()

			video, err := analyzer.Receive(c.Request.Context(), header.Filename, file)
			if err != nil {
				var ae *model.AnalysisError
				if errors.As(err, &ae) && ae.IsWarning() {
					c.JSON(http.StatusBadRequest, gin.H{"status": "warning", "message": ae.Message})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{
					"status":  "error",
					"kind":    model.KindOf(err),
					"message": err.Error(),
				})
				return
			}
			c.JSON(http.StatusCreated, video)
		})

		videos.POST("/:id/analysis", func(c *gin.Context) {
			var req analysisRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"status": "warning", "message": "The request body must be JSON with a query field."})
				return
			}

			result, err := analyzer.Analyze(c.Request.Context(), c.Param("id"), req.Query)
			if err != nil {
				writeAnalysisError(c, err)
				return
			}

			html, err := RenderResult(result.Response.Text)
			if err != nil {
				slog.ErrorContext(c.Request.Context(), "failed to render analysis", "request_id", result.RequestID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": AnalysisErrorPrefix + err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"status":     "ok",
				"heading":    ResultHeading,
				"markdown":   result.Response.Text,
				"html":       html,
				"request_id": result.RequestID,
				"model":      result.Response.Model,
				"poll_count": result.PollCount,
			})
		})

		videos.DELETE("/:id", func(c *gin.Context) {
			if err := analyzer.Discard(c.Param("id")); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": NoVideoMessage})
				return
			}
			c.Status(http.StatusNoContent)
		})
	}
}

// writeAnalysisError maps an analysis failure to a status and the message the
// page displays.
func writeAnalysisError(c *gin.Context, err error) {
	if errors.Is(err, model.ErrVideoNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "warning", "message": NoVideoMessage})
		return
	}
	var ae *model.AnalysisError
	if errors.As(err, &ae) && ae.IsWarning() {
		c.JSON(http.StatusBadRequest, gin.H{"status": "warning", "message": ae.Message})
		return
	}

	kind := model.KindOf(err)
	status := http.StatusBadGateway
	if kind == model.PollTimeout {
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{
		"status":  "error",
		"kind":    kind,
		"message": AnalysisErrorPrefix + err.Error(),
	})
}
