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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
)

// StateManager holds the components built once at startup.
type StateManager struct {
	config       *cloud.Config
	cloud        *cloud.ServiceClients
	agentConfig  services.AgentConfig
	publisher    *cloud.PubSubPublisher
	orchestrator *workflow.AnalysisOrchestrator
}

// SetupOS defaults the configuration directory and runtime when the
// environment does not set them.
func SetupOS() error {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig loads the defaults and layers the TOML files over them.
func GetConfig() (*cloud.Config, error) {
	if err := SetupOS(); err != nil {
		return nil, fmt.Errorf("failed to setup environment: %w", err)
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// InitState creates the cloud clients, the agent and the orchestrator. The
// agent configuration is built here once and injected everywhere it is used.
func InitState(ctx context.Context, config *cloud.Config) (*StateManager, error) {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, err
	}
	state := &StateManager{config: config, cloud: cloudClients}

	state.agentConfig = services.NewAgentConfig(config.ActiveAgentModel())
	agent, err := services.NewVideoAgent(cloudClients.AgentModel(config), state.agentConfig)
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	ingestion, err := newIngestion(config, cloudClients)
	if err != nil {
		state.Close()
		return nil, err
	}

	var publisher services.EventPublisher = services.NopPublisher{}
	if cloudClients.PubsubClient != nil {
		state.publisher, err = cloud.NewPubSubPublisher(cloudClients.PubsubClient, config.Events.Topic)
		if err != nil {
			state.Close()
			return nil, err
		}
		publisher = state.publisher
	}

	store := services.NewTempFileStore(config.Storage.ScratchDir, config.Storage.FileSuffix, config.Storage.MaxUploadMB<<20)
	state.orchestrator, err = workflow.NewAnalysisOrchestrator(config, store, ingestion, agent, publisher)
	if err != nil {
		state.Close()
		return nil, err
	}

	slog.Info("state initialized",
		"backend", config.Application.Backend,
		"agent", state.agentConfig.Name,
		"model", state.agentConfig.Model,
		"events", config.Events.Topic != "")
	return state, nil
}

// newIngestion picks the remote media service for the backend: the Files API
// for Gemini, a GCS staging bucket for Vertex AI.
func newIngestion(config *cloud.Config, clients *cloud.ServiceClients) (services.MediaIngestion, error) {
	if config.Application.Backend == cloud.BackendVertex {
		ingestion, err := services.NewGCSIngestion(clients.StorageClient, config.Storage.StagingBucket, config.Storage.StagingPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create staging ingestion: %w", err)
		}
		return ingestion, nil
	}
	return services.NewFileServiceIngestion(clients.Files()), nil
}

// Close releases a pending upload and the client connections.
func (s *StateManager) Close() {
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
	s.cloud.Close()
}
