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

// This file contains general-purpose helpers for the cloud package:
// hierarchical configuration loading and a retrying, instrumented call to the
// generative model.
//
// Functions:
//   - LoadConfig: Reads a base configuration file and then overwrites values
//     with an environment-specific file (e.g., .env.local.toml, .env.test.toml).
//   - GenerateMultiModalResponse: Calls the model with bounded retries and
//     records token and retry metrics.
//   - NewTextPart, NewFileData: Factories for genai parts.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
	DefaultRuntime      = "test"
	MaxRetries          = 0 // Retries after a failed generation unless max_retries is set.

	DefaultAgentModel = "gemini-2.0-flash-exp"
	ToolGoogleSearch  = "google_search"
)

// ErrEmptyResponse is returned when the model answers without any candidate text.
var ErrEmptyResponse = errors.New("model returned no candidates")

// GeneratedText is the text of a model response and its token usage.
type GeneratedText struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFileNames returns the base and runtime specific configuration file
// names derived from GCP_CONFIG_PREFIX and GCP_RUNTIME.
func ConfigFileNames() (base string, env string) {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = DefaultRuntime
	}

	base = configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	env = configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	return base, env
}

// LoadConfig decodes the base configuration file and then the runtime specific
// file into baseConfig. Missing files are skipped; malformed files are errors.
func LoadConfig(baseConfig interface{}) error {
	baseConfigFileName, envConfigFileName := ConfigFileNames()

	for _, fileName := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(fileName) {
			slog.Debug("configuration file not found, skipping", "file", fileName)
			continue
		}
		if _, err := toml.DecodeFile(fileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", fileName, err)
		}
		slog.Debug("loaded configuration file", "file", fileName)
	}
	return nil
}

// GenerateMultiModalResponse executes a multi-modal request against the model,
// retrying failed calls up to model.MaxRetries times. Token usage and retries
// are recorded on the given counters, any of which may be nil.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	tryCount int,
	model *QuotaAwareGenerativeAIModel,
	content []*genai.Content) (*GeneratedText, error) {
	resp, err := model.GenerateContent(ctx, content)
	if err != nil {
		if tryCount < model.MaxRetries && ctx.Err() == nil && !errors.Is(err, ErrGenAIUnavailable) {
			if retryCounter != nil {
				retryCounter.Add(ctx, 1)
			}
			slog.Warn("generation failed, retrying", "model", model.ModelName, "attempt", tryCount+1, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(model.RetryDelay):
			}
			return GenerateMultiModalResponse(ctx, inputTokenCounter, outputTokenCounter, retryCounter, tryCount+1, model, content)
		}
		return nil, err
	}

	out := &GeneratedText{}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
		if inputTokenCounter != nil {
			inputTokenCounter.Add(ctx, out.InputTokens)
		}
		if outputTokenCounter != nil {
			outputTokenCounter.Add(ctx, out.OutputTokens)
		}
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	if len(resp.Candidates) == 0 || sb.Len() == 0 {
		return nil, ErrEmptyResponse
	}
	out.Text = sb.String()
	return out, nil
}

// NewTextPart creates a text part.
func NewTextPart(in string) *genai.Part {
	return genai.NewPartFromText(in)
}

// NewFileData creates a part referencing an uploaded file or GCS object.
func NewFileData(in string, mimeType string) *genai.Part {
	return genai.NewPartFromURI(in, mimeType)
}
