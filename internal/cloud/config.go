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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files, and the clients used to talk to Google services.
//
// Structs:
//   - PromptTemplates: Holds the text template for the analysis prompt.
//   - AgentModel: Configuration for the generative model behind the agent.
//   - Storage: Scratch directory and staging bucket settings.
//   - Polling: Bounds for waiting on remote media processing.
//   - Server, Events, Telemetry: Process level settings.
//   - Config: The top-level struct that aggregates all other configuration structs.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// Backends understood by application.backend.
const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// DefaultSafetySettings leaves every harm category unblocked; the agent only
// describes user supplied videos.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// PromptTemplates holds the text/template sources for generated prompts.
type PromptTemplates struct {
	AnalysisPrompt string `toml:"analysis"` // Rendered with {{ .Query }}.
}

// AgentModel represents the configuration for the generative model that answers questions.
type AgentModel struct {
	Name               string   `toml:"name"`                // Display name of the agent.
	Model              string   `toml:"model"`               // The model id, e.g. gemini-2.0-flash-exp.
	Description        string   `toml:"description"`         // Optional description added to the system instruction.
	SystemInstructions string   `toml:"system_instructions"` // Optional extra instructions.
	Tools              []string `toml:"tools"`               // Tool names; "google_search" enables search grounding.
	Markdown           bool     `toml:"markdown"`            // Ask the model to answer in markdown.
	Temperature        float32  `toml:"temperature"`
	TopP               float32  `toml:"top_p"`
	TopK               float32  `toml:"top_k"`
	MaxTokens          int32    `toml:"max_tokens"`
	OutputFormat       string   `toml:"output_format"`
	RateLimit          int      `toml:"rate_limit"`  // Requests per second.
	MaxRetries         int      `toml:"max_retries"` // Retries after a failed generation.
}

// Storage represents the local scratch area and the optional staging bucket.
type Storage struct {
	ScratchDir           string `toml:"scratch_dir"`             // Directory for uploaded files; empty means os.TempDir().
	FileSuffix           string `toml:"file_suffix"`             // Suffix for scratch files.
	MaxUploadMB          int64  `toml:"max_upload_mb"`           // Largest accepted upload.
	StagingBucket        string `toml:"staging_bucket"`          // GCS bucket used by the vertex backend.
	StagingPrefix        string `toml:"staging_prefix"`          // Object name prefix inside the staging bucket.
	Endpoint             string `toml:"endpoint"`                // Optional storage endpoint override.
	DeleteRemoteAfterUse bool   `toml:"delete_remote_after_use"` // Delete the remote copy once a request ends.
}

// Polling bounds the wait for remote media processing.
type Polling struct {
	IntervalMs       int `toml:"interval_ms"`
	MaxAttempts      int `toml:"max_attempts"`
	TimeoutInSeconds int `toml:"timeout_in_seconds"`
}

// Interval returns the poll delay as a duration.
func (p Polling) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// Timeout returns the overall poll deadline as a duration.
func (p Polling) Timeout() time.Duration {
	return time.Duration(p.TimeoutInSeconds) * time.Second
}

// Server holds HTTP listener settings.
type Server struct {
	Port                     int      `toml:"port"`
	AllowedOrigins           []string `toml:"allowed_origins"`
	ShutdownTimeoutInSeconds int      `toml:"shutdown_timeout_in_seconds"`
	GinMode                  string   `toml:"gin_mode"`
}

// Events configures where analysis outcome events are published.
type Events struct {
	Topic string `toml:"topic"` // Pub/Sub topic id; empty disables publishing.
}

// Telemetry configures logging and exporters.
type Telemetry struct {
	Exporter  string `toml:"exporter"`   // "gcp" or "none".
	LogFile   string `toml:"log_file"`   // Rotated log file; empty disables file logging.
	LogFormat string `toml:"log_format"` // "json" or "text".
	LogLevel  string `toml:"log_level"`  // debug, info, warn or error.
}

// Config represents the overall configuration for the application, loaded from TOML files.
type Config struct {
	Application struct {
		Name            string `toml:"name"`
		GoogleProjectId string `toml:"google_project_id"`
		GoogleLocation  string `toml:"location"`
		Backend         string `toml:"backend"`     // "gemini" (Files API) or "vertex" (GCS staging).
		APIKeyEnv       string `toml:"api_key_env"` // Environment variable holding the API key.
		AgentModel      string `toml:"agent_model"` // Key into AgentModels used by the agent.
	} `toml:"application"`
	Server          Server                `toml:"server"`
	Storage         Storage               `toml:"storage"`
	Polling         Polling               `toml:"polling"`
	PromptTemplates PromptTemplates       `toml:"prompt_templates"`
	AgentModels     map[string]AgentModel `toml:"agent_models"`
	Events          Events                `toml:"events"`
	Telemetry       Telemetry             `toml:"telemetry"`
}

// NewConfig creates a Config holding the defaults. Values decoded from the
// TOML files overwrite them.
func NewConfig() *Config {
	c := &Config{
		Server: Server{
			Port:                     8080,
			ShutdownTimeoutInSeconds: 30,
			GinMode:                  "release",
		},
		Storage: Storage{
			FileSuffix:           ".mp4",
			MaxUploadMB:          200,
			StagingPrefix:        "uploads/",
			DeleteRemoteAfterUse: true,
		},
		Polling: Polling{
			IntervalMs:       1000,
			MaxAttempts:      600,
			TimeoutInSeconds: 900,
		},
		AgentModels: make(map[string]AgentModel),
		Telemetry: Telemetry{
			Exporter:  "gcp",
			LogFormat: "json",
			LogLevel:  "info",
		},
	}
	c.Application.Name = "video-insights"
	c.Application.Backend = BackendGemini
	c.Application.APIKeyEnv = "GOOGLE_API_KEY"
	c.Application.AgentModel = "video-analyst"
	return c
}

// ActiveAgentModel returns the agent model selected by application.agent_model,
// falling back to a default Gemini configuration.
func (c *Config) ActiveAgentModel() AgentModel {
	if m, ok := c.AgentModels[c.Application.AgentModel]; ok {
		if m.Model == "" {
			m.Model = DefaultAgentModel
		}
		return m
	}
	return AgentModel{
		Name:      "Video AI Summarizer",
		Model:     DefaultAgentModel,
		Tools:     []string{ToolGoogleSearch},
		Markdown:  true,
		RateLimit: 1,
	}
}
