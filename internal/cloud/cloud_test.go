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

package cloud_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type scriptedGenerator struct {
	errs  []error
	resp  *genai.GenerateContentResponse
	calls int
}

func (g *scriptedGenerator) GenerateContent(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return nil, err
	}
	return g.resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 3,
		},
	}
}

func TestLoadConfigLayersRuntimeFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(`
[application]
name = "base"
backend = "gemini"

[polling]
interval_ms = 250

[agent_models.video-analyst]
model = "gemini-2.0-flash-exp"
tools = ["google_search"]
markdown = true
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.unit.toml"), []byte(`
[application]
name = "override"

[storage]
delete_remote_after_use = false
`), 0o600))

	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, "override", config.Application.Name)
	assert.Equal(t, 250, config.Polling.IntervalMs)
	assert.Equal(t, 600, config.Polling.MaxAttempts)
	assert.False(t, config.Storage.DeleteRemoteAfterUse)
	assert.Equal(t, ".mp4", config.Storage.FileSuffix)

	agent := config.ActiveAgentModel()
	assert.Equal(t, "gemini-2.0-flash-exp", agent.Model)
	assert.Equal(t, []string{cloud.ToolGoogleSearch}, agent.Tools)
	assert.True(t, agent.Markdown)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte("[application\nname="), 0o600))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "")

	err := cloud.LoadConfig(cloud.NewConfig())
	assert.Error(t, err)
}

func TestActiveAgentModelDefaults(t *testing.T) {
	config := cloud.NewConfig()
	agent := config.ActiveAgentModel()
	assert.Equal(t, cloud.DefaultAgentModel, agent.Model)
	assert.True(t, agent.Markdown)
	assert.Contains(t, agent.Tools, cloud.ToolGoogleSearch)
}

func TestParseGCSURI(t *testing.T) {
	obj, err := cloud.ParseGCSURI("gs://bucket/uploads/abc.mp4")
	require.NoError(t, err)
	assert.Equal(t, "bucket", obj.Bucket)
	assert.Equal(t, "uploads/abc.mp4", obj.Name)
	assert.Equal(t, "gs://bucket/uploads/abc.mp4", obj.URI())

	for _, bad := range []string{"", "https://x/y", "gs://bucket", "gs:///name"} {
		_, err := cloud.ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "uploads/abc.mov", cloud.StagingObjectName("uploads/", "abc", ".mov"))
}

func TestGenerateMultiModalResponse(t *testing.T) {
	ctx := context.Background()
	content := []*genai.Content{genai.NewContentFromText("hi", genai.RoleUser)}

	t.Run("success", func(t *testing.T) {
		gen := &scriptedGenerator{resp: textResponse("Nothing notable.")}
		model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "m", gen, 10)
		out, err := cloud.GenerateMultiModalResponse(ctx, nil, nil, nil, 0, model, content)
		require.NoError(t, err)
		assert.Equal(t, "Nothing notable.", out.Text)
		assert.Equal(t, int64(12), out.InputTokens)
		assert.Equal(t, int64(3), out.OutputTokens)
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		gen := &scriptedGenerator{errs: []error{errors.New("429")}, resp: textResponse("ok")}
		model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "m", gen, 10)
		model.MaxRetries = 1
		model.RetryDelay = 0
		out, err := cloud.GenerateMultiModalResponse(ctx, nil, nil, nil, 0, model, content)
		require.NoError(t, err)
		assert.Equal(t, "ok", out.Text)
		assert.Equal(t, 2, gen.calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		boom := errors.New("quota")
		gen := &scriptedGenerator{errs: []error{boom, boom, boom}}
		model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "m", gen, 10)
		model.MaxRetries = 2
		model.RetryDelay = 0
		_, err := cloud.GenerateMultiModalResponse(ctx, nil, nil, nil, 0, model, content)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, gen.calls)
	})

	t.Run("no retry by default", func(t *testing.T) {
		boom := errors.New("quota")
		gen := &scriptedGenerator{errs: []error{boom}, resp: textResponse("unused")}
		model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "m", gen, 10)
		_, err := cloud.GenerateMultiModalResponse(ctx, nil, nil, nil, 0, model, content)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, gen.calls)
	})

	t.Run("empty candidates", func(t *testing.T) {
		gen := &scriptedGenerator{resp: &genai.GenerateContentResponse{}}
		model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "m", gen, 10)
		_, err := cloud.GenerateMultiModalResponse(ctx, nil, nil, nil, 0, model, content)
		assert.ErrorIs(t, err, cloud.ErrEmptyResponse)
	})

	t.Run("no client", func(t *testing.T) {
		model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "m", nil, 10)
		_, err := cloud.GenerateMultiModalResponse(ctx, nil, nil, nil, 0, model, content)
		assert.ErrorIs(t, err, cloud.ErrGenAIUnavailable)
	})
}

func TestQuotaAwareModelHonoursContext(t *testing.T) {
	gen := &scriptedGenerator{resp: textResponse("ok")}
	model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "m", gen, 1)

	_, err := model.GenerateContent(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = model.GenerateContent(ctx, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestNewGenerateContentConfig(t *testing.T) {
	cfg := cloud.NewGenerateContentConfig(cloud.AgentModel{Temperature: 0.4, MaxTokens: 1024})
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.4, *cfg.Temperature, 0.0001)
	assert.Nil(t, cfg.TopP)
	assert.Equal(t, int32(1024), cfg.MaxOutputTokens)
	assert.Equal(t, cloud.DefaultSafetySettings, cfg.SafetySettings)
}
