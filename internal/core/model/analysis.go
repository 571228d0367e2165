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

package model

import "time"

// AgentResponse is the text returned by the query agent. It is displayed
// once and never cached.
type AgentResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens,omitempty"`
	OutputTokens int64  `json:"output_tokens,omitempty"`
}

// AnalysisResult is what a successful analysis hands to the presentation layer.
type AnalysisResult struct {
	RequestID     string         `json:"request_id"`
	Response      *AgentResponse `json:"response"`
	MediaName     string         `json:"media_name"`
	PollCount     int            `json:"poll_count"`
	UploadElapsed time.Duration  `json:"upload_elapsed"`
	PollElapsed   time.Duration  `json:"poll_elapsed"`
	QueryElapsed  time.Duration  `json:"query_elapsed"`
}

// Outcome values used in AnalysisEvent.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// AnalysisEvent is published after every analysis attempt. It describes what
// happened without carrying the question, the answer or the video.
type AnalysisEvent struct {
	RequestID  string    `json:"request_id"`
	VideoID    string    `json:"video_id"`
	Outcome    string    `json:"outcome"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Model      string    `json:"model,omitempty"`
	MIMEType   string    `json:"mime_type,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	PollCount  int       `json:"poll_count"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// AnalysisStats is a snapshot of the in-memory request counters.
type AnalysisStats struct {
	Received  int64               `json:"received"`
	Succeeded int64               `json:"succeeded"`
	Warnings  int64               `json:"warnings"`
	Failures  map[ErrorKind]int64 `json:"failures"`
	Busy      bool                `json:"busy"`
	Pending   bool                `json:"pending"`
}
