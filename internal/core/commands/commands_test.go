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

package commands_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChainContext(ctx context.Context, input interface{}) cor.Context {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, input)
	return chCtx
}

func processingHandle() *model.MediaHandle {
	return &model.MediaHandle{Name: "files/fake", URI: "https://fake/files/fake", MIMEType: "video/mp4", State: model.MediaStateProcessing}
}

func TestPollerRefreshesUntilReady(t *testing.T) {
	ingestion := &test.FakeIngestion{States: []model.MediaState{
		model.MediaStateProcessing, model.MediaStateProcessing, model.MediaStateReady,
	}}
	poller := commands.NewMediaStatePoller("poll", ingestion, time.Millisecond, 10, time.Second)

	chCtx := newChainContext(context.Background(), processingHandle())
	poller.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, 3, ingestion.Refreshes)
	assert.Equal(t, 3, chCtx.Get(commands.GetPollCountParameterName()))
	ready := chCtx.Get(cor.CtxOut).(*model.MediaHandle)
	assert.Equal(t, model.MediaStateReady, ready.State)
}

func TestPollerSkipsReadyMedia(t *testing.T) {
	ingestion := &test.FakeIngestion{}
	poller := commands.NewMediaStatePoller("poll", ingestion, time.Millisecond, 10, time.Second)

	ready := processingHandle()
	ready.State = model.MediaStateReady
	chCtx := newChainContext(context.Background(), ready)
	poller.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, 0, ingestion.Refreshes)
}

func TestPollerFailedState(t *testing.T) {
	ingestion := &test.FakeIngestion{States: []model.MediaState{model.MediaStateProcessing, model.MediaStateFailed}}
	poller := commands.NewMediaStatePoller("poll", ingestion, time.Millisecond, 10, time.Second)

	chCtx := newChainContext(context.Background(), processingHandle())
	poller.Execute(chCtx)

	err := chCtx.GetErrors()["poll"]
	require.Error(t, err)
	assert.Equal(t, model.UploadFailure, model.KindOf(err))
	assert.ErrorIs(t, err, model.ErrMediaProcessingFailed)
	assert.Nil(t, chCtx.Get(cor.CtxOut))
}

func TestPollerAttemptBound(t *testing.T) {
	ingestion := &test.FakeIngestion{States: []model.MediaState{model.MediaStateProcessing}}
	poller := commands.NewMediaStatePoller("poll", ingestion, time.Millisecond, 4, time.Minute)

	chCtx := newChainContext(context.Background(), processingHandle())
	poller.Execute(chCtx)

	err := chCtx.GetErrors()["poll"]
	assert.Equal(t, model.PollTimeout, model.KindOf(err))
	assert.ErrorIs(t, err, model.ErrPollTimeout)
	assert.Equal(t, 4, ingestion.Refreshes)
}

func TestPollerDeadline(t *testing.T) {
	ingestion := &test.FakeIngestion{States: []model.MediaState{model.MediaStateProcessing}}
	poller := commands.NewMediaStatePoller("poll", ingestion, 5*time.Millisecond, 0, 30*time.Millisecond)

	chCtx := newChainContext(context.Background(), processingHandle())
	poller.Execute(chCtx)

	assert.Equal(t, model.PollTimeout, model.KindOf(chCtx.GetErrors()["poll"]))
}

func TestPollerCallerCancellation(t *testing.T) {
	ingestion := &test.FakeIngestion{States: []model.MediaState{model.MediaStateProcessing}}
	poller := commands.NewMediaStatePoller("poll", ingestion, time.Hour, 0, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chCtx := newChainContext(ctx, processingHandle())
	poller.Execute(chCtx)

	err := chCtx.GetErrors()["poll"]
	assert.Equal(t, model.UploadFailure, model.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ingestion.Refreshes)
}

func TestPollerRefreshError(t *testing.T) {
	ingestion := &test.FakeIngestion{RefreshErr: errors.New("503")}
	poller := commands.NewMediaStatePoller("poll", ingestion, time.Millisecond, 10, time.Second)

	chCtx := newChainContext(context.Background(), processingHandle())
	poller.Execute(chCtx)

	assert.Equal(t, model.UploadFailure, model.KindOf(chCtx.GetErrors()["poll"]))
	assert.Equal(t, 1, ingestion.Refreshes)
}

func TestMediaUpload(t *testing.T) {
	ingestion := &test.FakeIngestion{}
	upload := commands.NewMediaUpload("upload", ingestion)
	video := model.NewUploadedVideo("clip.mov", model.AcceptedVideoTypes["mov"], "/tmp/clip.mp4", 10)

	chCtx := newChainContext(context.Background(), video)
	upload.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, "video/quicktime", ingestion.UploadedMIME)
	assert.Same(t, chCtx.Get(cor.CtxOut), chCtx.Get(commands.GetMediaHandleParameterName()))

	failing := commands.NewMediaUpload("upload", &test.FakeIngestion{UploadErr: errors.New("network down")})
	chCtx = newChainContext(context.Background(), video)
	failing.Execute(chCtx)
	err := chCtx.GetErrors()["upload"]
	assert.Equal(t, model.UploadFailure, model.KindOf(err))
	assert.Contains(t, err.Error(), "network down")
}

func TestAnalysisPromptBuilder(t *testing.T) {
	tmpl, err := commands.NewAnalysisTemplate("")
	require.NoError(t, err)
	builder := commands.NewAnalysisPromptBuilder("prompt", tmpl)

	chCtx := newChainContext(context.Background(), processingHandle())
	assert.False(t, builder.IsExecutable(chCtx))

	chCtx.Add(commands.GetQueryParameterName(), "What happens in this video?")
	require.True(t, builder.IsExecutable(chCtx))
	builder.Execute(chCtx)

	prompt := chCtx.Get(cor.CtxOut).(string)
	assert.Contains(t, prompt, "Analyze the uploaded video for content and context.")
	assert.Contains(t, prompt, "supplementary web research,\nWhat happens in this video?\n")
	assert.Contains(t, prompt, "Provide a detailed, user-friendly, and actionable response.")
}

func TestAgentQuery(t *testing.T) {
	agent := &test.FakeAgent{Text: "Nothing notable."}
	query := commands.NewAgentQuery("query", agent)

	chCtx := newChainContext(context.Background(), "prompt text")
	assert.False(t, query.IsExecutable(chCtx))

	handle := processingHandle()
	handle.State = model.MediaStateReady
	chCtx.Add(commands.GetMediaHandleParameterName(), handle)
	query.Execute(chCtx)

	resp := chCtx.Get(cor.CtxOut).(*model.AgentResponse)
	assert.Equal(t, "Nothing notable.", resp.Text)
	assert.Equal(t, []string{"prompt text"}, agent.Prompts)

	agent.Err = errors.New("quota")
	chCtx = newChainContext(context.Background(), "prompt text")
	chCtx.Add(commands.GetMediaHandleParameterName(), handle)
	query.Execute(chCtx)
	assert.Equal(t, model.QueryFailure, model.KindOf(chCtx.GetErrors()["query"]))
}
