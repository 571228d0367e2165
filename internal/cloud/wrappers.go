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

// This file implements a decorator around the Generative AI models service
// that adds rate limiting. Gemini and Vertex AI both enforce per-minute
// quotas, so every generation waits for a token before it is sent.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: Pairs a model name and generation config
//     with a rate limiter.
//
// Functions:
//   - NewQuotaAwareModel: A constructor to create a new instance of the wrapped model.
//   - GenerateContent: Waits on the limiter and forwards the call.

package cloud

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrGenAIUnavailable is returned when no generative client could be created,
// typically because no credentials were configured.
var ErrGenAIUnavailable = errors.New("generative AI client is not available")

// ContentGenerator is the subset of *genai.Models used by the application.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel wraps a ContentGenerator with a model name, a
// generation config and a token bucket rate limiter.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             ContentGenerator
	RateLimit               *rate.Limiter
	MaxRetries              int
	RetryDelay              time.Duration
}

// NewQuotaAwareModel creates a model allowing requestsPerSecond calls per
// second with an equal burst. Values below one are treated as one.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle ContentGenerator, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		MaxRetries:              MaxRetries,
		RetryDelay:              5 * time.Second,
	}
}

// GenerateContent blocks until the limiter admits the call or ctx ends, then
// forwards the request.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if q.ModelHandle == nil {
		return nil, ErrGenAIUnavailable
	}
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}
