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

package services

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// EventPublisher receives one AnalysisEvent per finished request.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.AnalysisEvent) error
}

// NopPublisher logs events at debug level and publishes nothing.
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, event *model.AnalysisEvent) error {
	slog.Debug("analysis event", "request_id", event.RequestID, "outcome", event.Outcome, "error_kind", event.ErrorKind)
	return nil
}
