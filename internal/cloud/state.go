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

// This file initializes and holds the clients used to communicate with Google
// services. `ServiceClients` acts as a dependency injection container that is
// created once at startup and passed to the components that need it.
//
// Logic Flow:
//  1. `NewCloudServiceClients` is called at application startup.
//  2. The GenAI client is created for the configured backend. A missing API key
//     does not stop startup; calls fail later with ErrGenAIUnavailable.
//  3. Storage is created for the vertex backend, Pub/Sub when an events topic
//     is configured.
//  4. Each configured agent model is wrapped in a QuotaAwareGenerativeAIModel.

package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"google.golang.org/genai"
)

// FileService is the subset of *genai.Files used to manage uploaded media.
type FileService interface {
	UploadFromPath(ctx context.Context, path string, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// ServiceClients is the central container for clients that reach external services.
type ServiceClients struct {
	StorageClient *storage.Client                         // Set for the vertex backend.
	PubsubClient  *pubsub.Client                          // Set when events.topic is configured.
	GenAIClient   *genai.Client                           // Nil when the client could not be created.
	AgentModels   map[string]*QuotaAwareGenerativeAIModel // Keyed by the agent_models table name.
}

// Files returns the Files API of the GenAI client, or nil when there is none.
func (c *ServiceClients) Files() FileService {
	if c.GenAIClient == nil || c.GenAIClient.Files == nil {
		return nil
	}
	return c.GenAIClient.Files
}

// Close releases the client connections.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
}

// NewGenAIClient creates the GenAI client for the configured backend.
func NewGenAIClient(ctx context.Context, config *Config) (*genai.Client, error) {
	switch config.Application.Backend {
	case BackendVertex:
		return genai.NewClient(ctx, &genai.ClientConfig{
			Project:  config.Application.GoogleProjectId,
			Location: config.Application.GoogleLocation,
			Backend:  genai.BackendVertexAI,
		})
	case BackendGemini, "":
		return genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  os.Getenv(config.Application.APIKeyEnv),
			Backend: genai.BackendGeminiAPI,
		})
	default:
		return nil, fmt.Errorf("unknown application.backend %q", config.Application.Backend)
	}
}

// NewGenerateContentConfig maps the sampling settings of an agent model onto a
// genai generation config.
func NewGenerateContentConfig(values AgentModel) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
	}
	if values.Temperature > 0 {
		cfg.Temperature = genai.Ptr[float32](values.Temperature)
	}
	if values.TopP > 0 {
		cfg.TopP = genai.Ptr[float32](values.TopP)
	}
	if values.TopK > 0 {
		cfg.TopK = genai.Ptr[float32](values.TopK)
	}
	if values.MaxTokens > 0 {
		cfg.MaxOutputTokens = values.MaxTokens
	}
	return cfg
}

// NewCloudServiceClients initializes the clients required by the configuration.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	if config.Application.Backend != BackendGemini && config.Application.Backend != BackendVertex {
		return nil, fmt.Errorf("unknown application.backend %q", config.Application.Backend)
	}
	clients := &ServiceClients{AgentModels: make(map[string]*QuotaAwareGenerativeAIModel)}

	gc, err := NewGenAIClient(ctx, config)
	if err != nil {
		slog.Warn("generative AI client unavailable; analysis requests will fail",
			"backend", config.Application.Backend, "error", err)
	} else {
		clients.GenAIClient = gc
	}

	if config.Application.Backend == BackendVertex {
		var opts []option.ClientOption
		if config.Storage.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(config.Storage.Endpoint))
		}
		sc, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		clients.StorageClient = sc
	}

	if config.Events.Topic != "" {
		pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			clients.Close()
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		clients.PubsubClient = pc
	}

	for amKey, values := range config.AgentModels {
		var handle ContentGenerator
		if clients.GenAIClient != nil && clients.GenAIClient.Models != nil {
			handle = clients.GenAIClient.Models
		}
		model := values.Model
		if model == "" {
			model = DefaultAgentModel
		}
		wrapped := NewQuotaAwareModel(NewGenerateContentConfig(values), model, handle, values.RateLimit)
		if values.MaxRetries > 0 {
			wrapped.MaxRetries = values.MaxRetries
		}
		clients.AgentModels[amKey] = wrapped
	}

	return clients, nil
}

// AgentModel returns the wrapped model for name, creating an unconfigured one
// from the defaults when the table has no such entry.
func (c *ServiceClients) AgentModel(config *Config) *QuotaAwareGenerativeAIModel {
	if m, ok := c.AgentModels[config.Application.AgentModel]; ok {
		return m
	}
	values := config.ActiveAgentModel()
	var handle ContentGenerator
	if c.GenAIClient != nil && c.GenAIClient.Models != nil {
		handle = c.GenAIClient.Models
	}
	m := NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, handle, values.RateLimit)
	c.AgentModels[config.Application.AgentModel] = m
	return m
}
