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

package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// MediaCleanup deletes the remote copy of an upload. It is not part of the
// analysis chain: the orchestrator runs it after the chain on every path, so a
// failed poll still cleans up. Failures are logged and never recorded as
// chain errors.
type MediaCleanup struct {
	cor.BaseCommand
	ingestion services.MediaIngestion
	timeout   time.Duration
}

func NewMediaCleanup(name string, ingestion services.MediaIngestion, timeout time.Duration) *MediaCleanup {
	return &MediaCleanup{BaseCommand: *cor.NewBaseCommand(name), ingestion: ingestion, timeout: timeout}
}

func (v *MediaCleanup) IsExecutable(context cor.Context) bool {
	if context == nil || context.GetContext() == nil {
		return false
	}
	handle, ok := context.Get(GetMediaHandleParameterName()).(*model.MediaHandle)
	return ok && handle != nil
}

func (v *MediaCleanup) Execute(chCtx cor.Context) {
	handle := chCtx.Get(GetMediaHandleParameterName()).(*model.MediaHandle)

	// The request context may already be cancelled; cleanup gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(chCtx.GetContext()), v.timeout)
	defer cancel()

	if err := v.ingestion.Delete(ctx, handle); err != nil {
		v.GetErrorCounter().Add(ctx, 1)
		slog.Warn("failed to delete remote media", "media", handle.Name, "error", err)
		return
	}
	slog.Debug("deleted remote media", "media", handle.Name)
	v.GetSuccessCounter().Add(ctx, 1)
}
