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

// This file defines the `MediaStatePoller` command. The remote service
// converts an uploaded video before a model can reference it, so the command
// re-reads the handle at a fixed interval until it leaves PROCESSING.
//
// The wait is bounded twice: by a number of refreshes and by a deadline.
// Crossing either bound is a PollTimeout; a FAILED state or a refresh error
// is an UploadFailure.
//
// Input:  *model.MediaHandle
// Output: *model.MediaHandle in the READY state.

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MediaStatePoller waits for an uploaded file to become usable.
type MediaStatePoller struct {
	cor.BaseCommand
	ingestion   services.MediaIngestion
	interval    time.Duration
	maxAttempts int
	timeout     time.Duration
}

// NewMediaStatePoller creates the poller. A zero maxAttempts or timeout leaves
// that bound off.
func NewMediaStatePoller(name string, ingestion services.MediaIngestion, interval time.Duration, maxAttempts int, timeout time.Duration) *MediaStatePoller {
	return &MediaStatePoller{
		BaseCommand: *cor.NewBaseCommand(name),
		ingestion:   ingestion,
		interval:    interval,
		maxAttempts: maxAttempts,
		timeout:     timeout,
	}
}

// GetPollCountParameterName is the context key holding the number of refreshes.
func GetPollCountParameterName() string {
	return "__POLL_COUNT__"
}

func (p *MediaStatePoller) Execute(chCtx cor.Context) {
	handle, ok := chCtx.Get(p.GetInputParam()).(*model.MediaHandle)
	if !ok {
		p.fail(chCtx, model.Upload("commands.MediaStatePoller", fmt.Errorf("unexpected input %T", chCtx.Get(p.GetInputParam())), "invalid media handle"))
		return
	}

	start := time.Now()
	ready, attempts, err := p.poll(chCtx.GetContext(), handle)
	chCtx.Add(GetPollCountParameterName(), attempts)
	chCtx.Add(GetElapsedParameterName(p.GetName()), time.Since(start))
	trace.SpanFromContext(chCtx.GetContext()).SetAttributes(attribute.Int("poll.attempts", attempts))
	if ready != nil {
		chCtx.Add(GetMediaHandleParameterName(), ready)
	}
	if err != nil {
		p.fail(chCtx, err)
		return
	}

	slog.Info("media ready", "media", ready.Name, "attempts", attempts, "elapsed", time.Since(start))
	p.GetSuccessCounter().Add(chCtx.GetContext(), 1)
	chCtx.Add(p.GetOutputParam(), ready)
}

func (p *MediaStatePoller) fail(chCtx cor.Context, err error) {
	p.GetErrorCounter().Add(chCtx.GetContext(), 1)
	chCtx.AddError(p.GetName(), err)
}

func (p *MediaStatePoller) poll(parent context.Context, handle *model.MediaHandle) (*model.MediaHandle, int, error) {
	const op = "commands.MediaStatePoller"

	ctx := parent
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, p.timeout)
		defer cancel()
	}

	// The deadline is ours only when the caller's context is still alive.
	timedOut := func() bool {
		return errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil
	}

	attempts := 0
	for handle.State.IsProcessing() {
		if p.maxAttempts > 0 && attempts >= p.maxAttempts {
			return handle, attempts, model.Timeout(op, model.ErrPollTimeout,
				fmt.Sprintf("video still processing after %d checks", attempts))
		}

		select {
		case <-ctx.Done():
			if timedOut() {
				return handle, attempts, model.Timeout(op, model.ErrPollTimeout,
					fmt.Sprintf("video still processing after %s", p.timeout))
			}
			return handle, attempts, model.Upload(op, ctx.Err(), "video processing interrupted")
		case <-time.After(p.interval):
		}

		attempts++
		slog.Debug("checking media state", "media", handle.Name, "attempt", attempts)
		refreshed, err := p.ingestion.Refresh(ctx, handle)
		if err != nil {
			if timedOut() {
				return handle, attempts, model.Timeout(op, model.ErrPollTimeout,
					fmt.Sprintf("video still processing after %s", p.timeout))
			}
			return handle, attempts, model.Upload(op, err, "failed to check video processing state")
		}
		handle = refreshed
	}

	if handle.State == model.MediaStateFailed {
		return handle, attempts, model.Upload(op, model.ErrMediaProcessingFailed, "video processing failed")
	}
	return handle, attempts, nil
}
