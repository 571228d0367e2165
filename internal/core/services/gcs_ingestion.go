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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// GCSIngestion stages media in a Cloud Storage bucket for the Vertex AI
// backend, which reads gs:// URIs directly and has no Files API. A staged
// object is usable as soon as the write completes.
type GCSIngestion struct {
	StorageClient *storage.Client
	Bucket        string
	Prefix        string
}

// NewGCSIngestion creates a staging client writing to bucket under prefix.
func NewGCSIngestion(client *storage.Client, bucket string, prefix string) (*GCSIngestion, error) {
	if client == nil {
		return nil, errors.New("gcs ingestion needs a storage client")
	}
	if bucket == "" {
		return nil, errors.New("gcs ingestion needs storage.staging_bucket")
	}
	return &GCSIngestion{StorageClient: client, Bucket: bucket, Prefix: prefix}, nil
}

func (s *GCSIngestion) Upload(ctx context.Context, path string, mimeType string) (*model.MediaHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	target := cloud.GCSObject{
		Bucket:   s.Bucket,
		Name:     cloud.StagingObjectName(s.Prefix, uuid.NewString(), filepath.Ext(path)),
		MIMEType: mimeType,
	}
	w := s.StorageClient.Bucket(target.Bucket).Object(target.Name).NewWriter(ctx)
	w.ContentType = mimeType
	if _, err = io.Copy(w, f); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to stage %s: %w", target.URI(), err)
	}
	if err = w.Close(); err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", target.URI(), err)
	}

	return &model.MediaHandle{
		Name:     target.Name,
		URI:      target.URI(),
		MIMEType: mimeType,
		State:    model.MediaStateReady,
	}, nil
}

func (s *GCSIngestion) Refresh(ctx context.Context, handle *model.MediaHandle) (*model.MediaHandle, error) {
	refreshed := *handle
	attrs, err := s.StorageClient.Bucket(s.Bucket).Object(handle.Name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		refreshed.State = model.MediaStateFailed
		return &refreshed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", handle.URI, err)
	}
	refreshed.State = model.MediaStateReady
	if attrs.ContentType != "" {
		refreshed.MIMEType = attrs.ContentType
	}
	return &refreshed, nil
}

func (s *GCSIngestion) Delete(ctx context.Context, handle *model.MediaHandle) error {
	err := s.StorageClient.Bucket(s.Bucket).Object(handle.Name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", handle.URI, err)
	}
	return nil
}
