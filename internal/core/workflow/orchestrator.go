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

// This file defines the `AnalysisOrchestrator`, which owns the lifecycle of
// a single analysis request:
//
//	IDLE -> FILE_RECEIVED -> UPLOADING -> POLLING -> QUERYING -> DONE
//
// with cleanup reachable from every state after FILE_RECEIVED. At most one
// upload is alive at a time: Receive and Analyze share a one slot semaphore,
// and a received file that was never analysed is released when the next one
// arrives.

package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"golang.org/x/sync/semaphore"
)

// EmptyQueryMessage is the warning shown when the question is blank.
const EmptyQueryMessage = "Please provide a question or insights to analyze the video."

const publishTimeout = 10 * time.Second

// TempStore stores uploads in scratch files and releases them.
type TempStore interface {
	cor.Releaser
	Store(r io.Reader) (path string, size int64, err error)
}

// AnalysisOrchestrator runs analysis requests one at a time.
type AnalysisOrchestrator struct {
	config    *cloud.Config
	store     TempStore
	workflow  *VideoAnalysisWorkflow
	cleanup   *commands.MediaCleanup
	publisher services.EventPublisher
	gate      *semaphore.Weighted

	mu      sync.Mutex
	current *model.UploadedVideo
	busy    bool
	stats   model.AnalysisStats
}

// NewAnalysisOrchestrator wires the workflow and its collaborators. A nil
// publisher publishes nothing.
func NewAnalysisOrchestrator(
	config *cloud.Config,
	store TempStore,
	ingestion services.MediaIngestion,
	agent services.Agent,
	publisher services.EventPublisher) (*AnalysisOrchestrator, error) {

	wf, err := NewVideoAnalysisWorkflow(config, ingestion, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis workflow: %w", err)
	}
	if publisher == nil {
		publisher = services.NopPublisher{}
	}
	return &AnalysisOrchestrator{
		config:    config,
		store:     store,
		workflow:  wf,
		cleanup:   commands.NewMediaCleanup(MediaCleanupCommand, ingestion, 30*time.Second),
		publisher: publisher,
		gate:      semaphore.NewWeighted(1),
		stats:     model.AnalysisStats{Failures: make(map[model.ErrorKind]int64)},
	}, nil
}

// Receive validates and stores an uploaded video and makes it the current
// upload, releasing any earlier upload that was never analysed.
func (o *AnalysisOrchestrator) Receive(ctx context.Context, fileName string, r io.Reader) (*model.UploadedVideo, error) {
	const op = "workflow.Receive"

	head := make([]byte, model.SniffLength)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, o.countFailure(model.Upload(op, err, "could not read the uploaded video"))
	}
	head = head[:n]
	if n == 0 {
		return nil, o.countFailure(model.Validation(op, nil, "The uploaded file is empty."))
	}

	videoType, err := model.DetectVideoType(fileName, head)
	if err != nil {
		return nil, o.countFailure(err)
	}

	if err := o.gate.Acquire(ctx, 1); err != nil {
		return nil, model.Upload(op, err, "upload cancelled while waiting for the previous analysis")
	}
	defer o.gate.Release(1)

	o.releaseCurrent("replaced by a new upload")

	path, size, err := o.store.Store(io.MultiReader(bytes.NewReader(head), r))
	if errors.Is(err, services.ErrUploadTooLarge) {
		return nil, o.countFailure(model.Validation(op, err,
			fmt.Sprintf("The uploaded video exceeds the %d MB limit.", o.config.Storage.MaxUploadMB)))
	}
	if err != nil {
		return nil, o.countFailure(model.Upload(op, err, "could not store the uploaded video"))
	}

	video := model.NewUploadedVideo(fileName, videoType, path, size)
	o.mu.Lock()
	o.current = video
	o.stats.Received++
	o.mu.Unlock()

	slog.InfoContext(ctx, "video received", "video_id", video.ID, "file_name", fileName,
		"mime_type", video.MIMEType, "size", size)
	return video, nil
}

// Analyze runs the analysis chain for the current upload. A blank query is a
// warning that leaves the upload in place for another try; any other outcome
// consumes the upload and releases its scratch file exactly once.
func (o *AnalysisOrchestrator) Analyze(ctx context.Context, videoID string, query string) (*model.AnalysisResult, error) {
	const op = "workflow.Analyze"
	requestID := uuid.NewString()

	if strings.TrimSpace(query) == "" {
		warning := model.Validation(op, nil, EmptyQueryMessage)
		o.countFailure(warning)
		o.publish(ctx, &model.AnalysisEvent{
			RequestID: requestID,
			VideoID:   videoID,
			Outcome:   model.OutcomeRejected,
			ErrorKind: warning.Kind,
			Timestamp: time.Now(),
		})
		return nil, warning
	}

	if err := o.gate.Acquire(ctx, 1); err != nil {
		return nil, model.Upload(op, err, "analysis cancelled while waiting for the previous request")
	}
	defer o.gate.Release(1)

	video, err := o.take(videoID)
	if err != nil {
		return nil, err
	}
	defer o.setBusy(false)

	start := time.Now()
	chCtx := cor.NewBaseContext(cor.WithReleaser(o.store))
	chCtx.SetContext(ctx)
	chCtx.AddTempFile(video.Path)
	defer chCtx.Close()

	chCtx.Add(cor.CtxIn, video)
	chCtx.Add(commands.GetQueryParameterName(), query)

	slog.InfoContext(ctx, "analysis started", "request_id", requestID, "video_id", video.ID)
	o.workflow.Execute(chCtx)

	if o.config.Storage.DeleteRemoteAfterUse && o.cleanup.IsExecutable(chCtx) {
		o.cleanup.Execute(chCtx)
	}

	result := o.newResult(requestID, chCtx)
	err = cor.FirstError(chCtx, o.workflow.CommandNames())
	if err == nil && result.Response == nil {
		err = model.Query(op, errors.New("no response"), "agent returned no answer")
	}
	if err != nil && model.KindOf(err) == "" {
		err = model.Query(op, err, "analysis failed")
	}

	event := &model.AnalysisEvent{
		RequestID:  requestID,
		VideoID:    video.ID,
		MIMEType:   video.MIMEType,
		SizeBytes:  video.Size,
		PollCount:  result.PollCount,
		DurationMs: time.Since(start).Milliseconds(),
		Timestamp:  time.Now(),
	}
	if err != nil {
		o.countFailure(err)
		event.Outcome = model.OutcomeFailed
		event.ErrorKind = model.KindOf(err)
		slog.ErrorContext(ctx, "analysis failed", "request_id", requestID, "video_id", video.ID,
			"kind", event.ErrorKind, "error", err)
		o.publish(ctx, event)
		return nil, err
	}

	o.mu.Lock()
	o.stats.Succeeded++
	o.mu.Unlock()
	event.Outcome = model.OutcomeSucceeded
	event.Model = result.Response.Model
	slog.InfoContext(ctx, "analysis finished", "request_id", requestID, "video_id", video.ID,
		"poll_count", result.PollCount, "duration_ms", event.DurationMs)
	o.publish(ctx, event)
	return result, nil
}

// Discard releases the current upload if it is videoID.
func (o *AnalysisOrchestrator) Discard(videoID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || o.current.ID != videoID {
		return model.ErrVideoNotFound
	}
	if err := o.store.Release(o.current.Path); err != nil {
		slog.Warn("failed to release discarded upload", "video_id", videoID, "error", err)
	}
	o.current = nil
	return nil
}

// Current returns the upload waiting for analysis, or nil.
func (o *AnalysisOrchestrator) Current() *model.UploadedVideo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Stats returns a snapshot of the request counters.
func (o *AnalysisOrchestrator) Stats() model.AnalysisStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.stats
	out.Failures = make(map[model.ErrorKind]int64, len(o.stats.Failures))
	for k, v := range o.stats.Failures {
		out.Failures[k] = v
	}
	out.Busy = o.busy
	out.Pending = o.current != nil
	return out
}

// Close releases an upload that was received but never analysed.
func (o *AnalysisOrchestrator) Close() {
	o.releaseCurrent("shutting down")
}

func (o *AnalysisOrchestrator) take(videoID string) (*model.UploadedVideo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || o.current.ID != videoID {
		return nil, model.ErrVideoNotFound
	}
	video := o.current
	o.current = nil
	o.busy = true
	return video, nil
}

func (o *AnalysisOrchestrator) setBusy(busy bool) {
	o.mu.Lock()
	o.busy = busy
	o.mu.Unlock()
}

func (o *AnalysisOrchestrator) releaseCurrent(reason string) {
	o.mu.Lock()
	stale := o.current
	o.current = nil
	o.mu.Unlock()
	if stale == nil {
		return
	}
	if err := o.store.Release(stale.Path); err != nil {
		slog.Warn("failed to release upload", "video_id", stale.ID, "reason", reason, "error", err)
		return
	}
	slog.Info("released upload", "video_id", stale.ID, "reason", reason)
}

// countFailure records err in the stats and returns it unchanged.
func (o *AnalysisOrchestrator) countFailure(err error) error {
	var ae *model.AnalysisError
	o.mu.Lock()
	defer o.mu.Unlock()
	if errors.As(err, &ae) && ae.IsWarning() {
		o.stats.Warnings++
		return err
	}
	o.stats.Failures[model.KindOf(err)]++
	return err
}

func (o *AnalysisOrchestrator) newResult(requestID string, chCtx cor.Context) *model.AnalysisResult {
	result := &model.AnalysisResult{RequestID: requestID}
	if resp, ok := chCtx.Get(cor.CtxIn).(*model.AgentResponse); ok {
		result.Response = resp
	}
	if handle, ok := chCtx.Get(commands.GetMediaHandleParameterName()).(*model.MediaHandle); ok {
		result.MediaName = handle.Name
	}
	if count, ok := chCtx.Get(commands.GetPollCountParameterName()).(int); ok {
		result.PollCount = count
	}
	result.UploadElapsed = elapsed(chCtx, MediaUploadCommand)
	result.PollElapsed = elapsed(chCtx, MediaPollCommand)
	result.QueryElapsed = elapsed(chCtx, AgentQueryCommand)
	return result
}

func elapsed(chCtx cor.Context, command string) time.Duration {
	d, _ := chCtx.Get(commands.GetElapsedParameterName(command)).(time.Duration)
	return d
}

func (o *AnalysisOrchestrator) publish(ctx context.Context, event *model.AnalysisEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := o.publisher.Publish(pubCtx, event); err != nil {
		slog.Warn("failed to publish analysis event", "request_id", event.RequestID, "error", err)
	}
}
