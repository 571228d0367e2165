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

// Package model defines the core data structures for the application.
// This file, `media.go`, contains the structures describing a video while it
// moves through a single analysis request: the local upload that the user
// handed to the server, and the remote handle returned by the media service
// once the bytes have been ingested.
//
// None of these objects are persisted. They live for exactly one request and
// are dropped (and their backing files released) when it finishes.
package model

import (
	"time"

	"github.com/google/uuid"
)

// MediaState is the processing state reported by the remote media service
// for an uploaded file.
type MediaState string

const (
	// MediaStateProcessing means the remote service is still converting the
	// file and it cannot be referenced by a model yet.
	MediaStateProcessing MediaState = "PROCESSING"
	// MediaStateReady means the file can be passed to the model.
	MediaStateReady MediaState = "READY"
	// MediaStateFailed is a terminal state; the file will never become ready.
	MediaStateFailed MediaState = "FAILED"
)

// IsProcessing reports whether the state still requires polling.
func (s MediaState) IsProcessing() bool {
	return s == MediaStateProcessing
}

// MediaHandle is an opaque reference to a remotely stored, possibly
// still-processing media file. The orchestrator only keeps it long enough to
// hand it to the query agent.
type MediaHandle struct {
	Name     string     `json:"name"`      // Remote resource identifier (e.g. "files/abc123" or a GCS object name).
	URI      string     `json:"uri"`       // URI the model uses to reference the file.
	MIMEType string     `json:"mime_type"` // MIME type declared at upload time.
	State    MediaState `json:"state"`     // Current processing state.
}

// UploadedVideo is the local copy of the video a user submitted. It is owned
// by the orchestrator and its file is released at the end of the request,
// whatever the outcome.
type UploadedVideo struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Extension  string    `json:"extension"`
	MIMEType   string    `json:"mime_type"`
	Path       string    `json:"-"`
	Size       int64     `json:"size"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewUploadedVideo creates an UploadedVideo with a fresh random ID and the
// current time as its receive timestamp.
func NewUploadedVideo(fileName string, videoType VideoType, path string, size int64) *UploadedVideo {
	return &UploadedVideo{
		ID:         uuid.NewString(),
		FileName:   fileName,
		Extension:  videoType.Extension,
		MIMEType:   videoType.MIMEType,
		Path:       path,
		Size:       size,
		ReceivedAt: time.Now(),
	}
}
