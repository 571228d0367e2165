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
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigLayersRuntimeFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"),
		[]byte("[application]\nname = \"insights\"\n\n[server]\nport = 8081\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local.toml"),
		[]byte("[server]\nport = 9090\n"), 0o600))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "local")

	config, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "insights", config.Application.Name)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, int64(200), config.Storage.MaxUploadMB)
}

func TestNewIngestionByBackend(t *testing.T) {
	config := cloud.NewConfig()

	ingestion, err := newIngestion(config, &cloud.ServiceClients{})
	require.NoError(t, err)
	assert.IsType(t, &services.FileServiceIngestion{}, ingestion)

	config.Application.Backend = cloud.BackendVertex
	config.Storage.StagingBucket = "staging"
	_, err = newIngestion(config, &cloud.ServiceClients{})
	assert.Error(t, err)
}
