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
	"fmt"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"google.golang.org/genai"
)

// MediaIngestion hands local files to a remote media service and reports
// their processing state.
type MediaIngestion interface {
	// Upload sends the file at path and returns its remote handle.
	Upload(ctx context.Context, path string, mimeType string) (*model.MediaHandle, error)
	// Refresh returns the current state of handle.
	Refresh(ctx context.Context, handle *model.MediaHandle) (*model.MediaHandle, error)
	// Delete removes the remote copy.
	Delete(ctx context.Context, handle *model.MediaHandle) error
}

// FileServiceIngestion uploads media through the Gemini Files API.
type FileServiceIngestion struct {
	Files cloud.FileService
}

// NewFileServiceIngestion creates an ingestion client over files, which may be
// nil when no GenAI client could be created.
func NewFileServiceIngestion(files cloud.FileService) *FileServiceIngestion {
	return &FileServiceIngestion{Files: files}
}

func (s *FileServiceIngestion) Upload(ctx context.Context, path string, mimeType string) (*model.MediaHandle, error) {
	if s.Files == nil {
		return nil, cloud.ErrGenAIUnavailable
	}
	file, err := s.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return toMediaHandle(file), nil
}

func (s *FileServiceIngestion) Refresh(ctx context.Context, handle *model.MediaHandle) (*model.MediaHandle, error) {
	if s.Files == nil {
		return nil, cloud.ErrGenAIUnavailable
	}
	file, err := s.Files.Get(ctx, handle.Name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", handle.Name, err)
	}
	return toMediaHandle(file), nil
}

func (s *FileServiceIngestion) Delete(ctx context.Context, handle *model.MediaHandle) error {
	if s.Files == nil {
		return cloud.ErrGenAIUnavailable
	}
	if _, err := s.Files.Delete(ctx, handle.Name, nil); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", handle.Name, err)
	}
	return nil
}

func toMediaHandle(file *genai.File) *model.MediaHandle {
	return &model.MediaHandle{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: file.MIMEType,
		State:    toMediaState(file.State),
	}
}

// toMediaState maps the Files API lifecycle onto MediaState. An unspecified
// state is treated as still processing.
func toMediaState(state genai.FileState) model.MediaState {
	switch state {
	case genai.FileStateActive:
		return model.MediaStateReady
	case genai.FileStateFailed:
		return model.MediaStateFailed
	default:
		return model.MediaStateProcessing
	}
}
