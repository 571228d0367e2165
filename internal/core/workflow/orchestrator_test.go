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

package workflow_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	orchestrator *workflow.AnalysisOrchestrator
	store        *test.CountingStore
	ingestion    *test.FakeIngestion
	agent        *test.FakeAgent
	events       *test.RecordingPublisher
	scratchDir   string
}

func newFixture(t *testing.T, ingestion *test.FakeIngestion, agent *test.FakeAgent) *fixture {
	t.Helper()
	config := test.NewTestConfig(t)
	store := test.NewCountingStore(config.Storage.ScratchDir)
	events := &test.RecordingPublisher{}

	orchestrator, err := workflow.NewAnalysisOrchestrator(config, store, ingestion, agent, events)
	require.NoError(t, err)
	return &fixture{
		orchestrator: orchestrator,
		store:        store,
		ingestion:    ingestion,
		agent:        agent,
		events:       events,
		scratchDir:   config.Storage.ScratchDir,
	}
}

func (f *fixture) receive(t *testing.T) *model.UploadedVideo {
	t.Helper()
	video, err := f.orchestrator.Receive(context.Background(), "clip.mp4", bytes.NewReader(test.FakeVideo))
	require.NoError(t, err)
	return video
}

func TestAnalyzeEndToEnd(t *testing.T) {
	f := newFixture(t,
		&test.FakeIngestion{States: []model.MediaState{model.MediaStateProcessing, model.MediaStateProcessing, model.MediaStateReady}},
		&test.FakeAgent{Text: "Nothing notable."})

	video := f.receive(t)
	assert.Equal(t, "video/mp4", video.MIMEType)
	assert.Equal(t, int64(len(test.FakeVideo)), video.Size)
	_, err := os.Stat(video.Path)
	require.NoError(t, err)

	result, err := f.orchestrator.Analyze(context.Background(), video.ID, "What happens in this video?")
	require.NoError(t, err)

	assert.Equal(t, "Nothing notable.", result.Response.Text)
	assert.Equal(t, 3, result.PollCount)
	assert.Equal(t, "files/fake", result.MediaName)

	uploads, refreshes := f.ingestion.Calls()
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 3, refreshes)
	require.Equal(t, 1, f.agent.Calls())
	assert.Contains(t, f.agent.Prompts[0], "What happens in this video?")
	assert.Equal(t, model.MediaStateReady, f.agent.Handles[0][0].State)

	assert.Equal(t, 1, f.store.Released(video.Path))
	assert.Empty(t, test.ScratchFiles(t, f.scratchDir))
	assert.Equal(t, 1, f.ingestion.Deletes)
	assert.Nil(t, f.orchestrator.Current())

	event := f.events.Last()
	require.NotNil(t, event)
	assert.Equal(t, model.OutcomeSucceeded, event.Outcome)
	assert.Equal(t, 3, event.PollCount)
}

func TestAnalyzeEmptyQueryMakesNoRemoteCalls(t *testing.T) {
	f := newFixture(t, &test.FakeIngestion{}, &test.FakeAgent{Text: "ok"})
	video := f.receive(t)

	for _, query := range []string{"", "   ", "\n\t"} {
		_, err := f.orchestrator.Analyze(context.Background(), video.ID, query)
		require.Error(t, err)
		assert.Equal(t, model.ValidationFailure, model.KindOf(err))
		assert.Equal(t, workflow.EmptyQueryMessage, err.Error())
	}

	uploads, refreshes := f.ingestion.Calls()
	assert.Zero(t, uploads)
	assert.Zero(t, refreshes)
	assert.Zero(t, f.agent.Calls())

	// The upload is kept so the user can ask again.
	assert.Equal(t, video.ID, f.orchestrator.Current().ID)
	assert.Zero(t, f.store.Released(video.Path))
	assert.Equal(t, int64(3), f.orchestrator.Stats().Warnings)

	_, err := f.orchestrator.Analyze(context.Background(), video.ID, "Summarize it")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Released(video.Path))
}

func TestAnalyzeFailedProcessing(t *testing.T) {
	f := newFixture(t,
		&test.FakeIngestion{States: []model.MediaState{model.MediaStateProcessing, model.MediaStateFailed}},
		&test.FakeAgent{Text: "unused"})
	video := f.receive(t)

	_, err := f.orchestrator.Analyze(context.Background(), video.ID, "What happens?")
	require.Error(t, err)
	assert.Equal(t, model.UploadFailure, model.KindOf(err))
	assert.ErrorIs(t, err, model.ErrMediaProcessingFailed)

	assert.Zero(t, f.agent.Calls())
	assert.Equal(t, 1, f.store.Released(video.Path))
	assert.Empty(t, test.ScratchFiles(t, f.scratchDir))
	assert.Equal(t, 1, f.ingestion.Deletes)

	stats := f.orchestrator.Stats()
	assert.Equal(t, int64(1), stats.Failures[model.UploadFailure])
	assert.Equal(t, model.OutcomeFailed, f.events.Last().Outcome)
}

func TestAnalyzePollTimeout(t *testing.T) {
	f := newFixture(t,
		&test.FakeIngestion{States: []model.MediaState{model.MediaStateProcessing}},
		&test.FakeAgent{Text: "unused"})
	video := f.receive(t)

	_, err := f.orchestrator.Analyze(context.Background(), video.ID, "What happens?")
	assert.Equal(t, model.PollTimeout, model.KindOf(err))
	assert.Equal(t, 1, f.store.Released(video.Path))
	assert.Zero(t, f.agent.Calls())
}

func TestAnalyzeUploadAndQueryFailures(t *testing.T) {
	t.Run("upload", func(t *testing.T) {
		f := newFixture(t, &test.FakeIngestion{UploadErr: errors.New("connection reset")}, &test.FakeAgent{})
		video := f.receive(t)

		_, err := f.orchestrator.Analyze(context.Background(), video.ID, "q")
		assert.Equal(t, model.UploadFailure, model.KindOf(err))
		assert.Contains(t, err.Error(), "connection reset")
		assert.Equal(t, 1, f.store.Released(video.Path))
		// Nothing reached the remote service, so there is nothing to delete.
		assert.Zero(t, f.ingestion.Deletes)
	})

	t.Run("query", func(t *testing.T) {
		f := newFixture(t, &test.FakeIngestion{UploadState: model.MediaStateReady}, &test.FakeAgent{Err: errors.New("quota exceeded")})
		video := f.receive(t)

		_, err := f.orchestrator.Analyze(context.Background(), video.ID, "q")
		assert.Equal(t, model.QueryFailure, model.KindOf(err))
		assert.Contains(t, err.Error(), "quota exceeded")
		assert.Equal(t, 1, f.store.Released(video.Path))
		assert.Equal(t, 1, f.ingestion.Deletes)
	})
}

func TestNoTwoUploadsLiveAtOnce(t *testing.T) {
	f := newFixture(t, &test.FakeIngestion{UploadState: model.MediaStateReady}, &test.FakeAgent{Text: "ok"})

	first := f.receive(t)
	second := f.receive(t)
	assert.Equal(t, 1, f.store.Released(first.Path))
	assert.Len(t, test.ScratchFiles(t, f.scratchDir), 1)

	_, err := f.orchestrator.Analyze(context.Background(), first.ID, "q")
	assert.ErrorIs(t, err, model.ErrVideoNotFound)

	_, err = f.orchestrator.Analyze(context.Background(), second.ID, "q")
	require.NoError(t, err)

	third := f.receive(t)
	_, err = f.orchestrator.Analyze(context.Background(), third.ID, "q")
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.MaxLive)
	assert.Empty(t, test.ScratchFiles(t, f.scratchDir))
	for _, path := range f.store.ReleasedPaths() {
		assert.Equal(t, 1, f.store.Released(path), path)
	}
}

func TestReceiveRejectsInvalidUploads(t *testing.T) {
	f := newFixture(t, &test.FakeIngestion{}, &test.FakeAgent{})

	_, err := f.orchestrator.Receive(context.Background(), "clip.mkv", bytes.NewReader(test.FakeVideo))
	assert.Equal(t, model.ValidationFailure, model.KindOf(err))

	_, err = f.orchestrator.Receive(context.Background(), "clip.mp4", bytes.NewReader(nil))
	assert.Equal(t, model.ValidationFailure, model.KindOf(err))

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err = f.orchestrator.Receive(context.Background(), "clip.mp4", bytes.NewReader(png))
	assert.Equal(t, model.ValidationFailure, model.KindOf(err))

	assert.Empty(t, test.ScratchFiles(t, f.scratchDir))
	assert.Nil(t, f.orchestrator.Current())
}

func TestDiscardAndClose(t *testing.T) {
	f := newFixture(t, &test.FakeIngestion{}, &test.FakeAgent{})

	video := f.receive(t)
	assert.ErrorIs(t, f.orchestrator.Discard("other"), model.ErrVideoNotFound)
	require.NoError(t, f.orchestrator.Discard(video.ID))
	assert.Equal(t, 1, f.store.Released(video.Path))
	assert.ErrorIs(t, f.orchestrator.Discard(video.ID), model.ErrVideoNotFound)

	pending := f.receive(t)
	assert.True(t, f.orchestrator.Stats().Pending)
	f.orchestrator.Close()
	assert.Equal(t, 1, f.store.Released(pending.Path))
	assert.Empty(t, test.ScratchFiles(t, f.scratchDir))
	assert.False(t, f.orchestrator.Stats().Pending)
}

func TestAnalyzeHonoursCancelledContext(t *testing.T) {
	f := newFixture(t, &test.FakeIngestion{States: []model.MediaState{model.MediaStateProcessing}}, &test.FakeAgent{})
	video := f.receive(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.orchestrator.Analyze(ctx, video.ID, "q")
	require.Error(t, err)
	assert.NotEqual(t, model.PollTimeout, model.KindOf(err))
}
