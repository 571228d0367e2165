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

// This file publishes analysis outcome events to a Pub/Sub topic so that
// downstream consumers can track usage without the server persisting anything.

package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubPublisher publishes AnalysisEvents as JSON messages.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher creates a publisher for topicID.
func NewPubSubPublisher(pubsubClient *pubsub.Client, topicID string) (*PubSubPublisher, error) {
	if pubsubClient == nil {
		return nil, fmt.Errorf("pubsub client is required for topic %q", topicID)
	}
	return &PubSubPublisher{
		client: pubsubClient,
		topic:  pubsubClient.Topic(topicID),
	}, nil
}

// Publish sends the event and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, event *model.AnalysisEvent) error {
	tracer := otel.Tracer("event-publisher")
	spanCtx, span := tracer.Start(ctx, "publish-analysis-event")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", event.RequestID),
		attribute.String("outcome", event.Outcome),
	)

	data, err := json.Marshal(event)
	if err != nil {
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("failed to marshal analysis event: %w", err)
	}

	result := p.topic.Publish(spanCtx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"outcome":    event.Outcome,
			"error_kind": string(event.ErrorKind),
		},
	})
	id, err := result.Get(spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("failed to publish analysis event: %w", err)
	}
	span.SetStatus(codes.Ok, "published")
	slog.Debug("published analysis event", "message_id", id, "request_id", event.RequestID)
	return nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() {
	p.topic.Stop()
}
