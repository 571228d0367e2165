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

// Package commands holds the units of work that make up a video analysis
// chain. This file defines the `MediaUpload` command, which hands the scratch
// file of an upload to the remote media service.
//
// Input:  *model.UploadedVideo
// Output: *model.MediaHandle (also stored under GetMediaHandleParameterName()
// so the remote copy can be deleted whatever happens later in the chain).
package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// MediaUpload uploads the scratch file of an UploadedVideo.
type MediaUpload struct {
	cor.BaseCommand
	ingestion services.MediaIngestion
}

// NewMediaUpload creates the upload command.
func NewMediaUpload(name string, ingestion services.MediaIngestion) *MediaUpload {
	return &MediaUpload{BaseCommand: *cor.NewBaseCommand(name), ingestion: ingestion}
}

// GetMediaHandleParameterName is the context key holding the latest MediaHandle.
func GetMediaHandleParameterName() string {
	return "__MEDIA_HANDLE__"
}

// GetElapsedParameterName is the context key holding the time.Duration spent
// in the named command.
func GetElapsedParameterName(commandName string) string {
	return "__ELAPSED__" + commandName
}

func (v *MediaUpload) Execute(context cor.Context) {
	const op = "commands.MediaUpload"
	video, ok := context.Get(v.GetInputParam()).(*model.UploadedVideo)
	if !ok {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.Upload(op, fmt.Errorf("unexpected input %T", context.Get(v.GetInputParam())), "invalid upload"))
		return
	}

	start := time.Now()
	handle, err := v.ingestion.Upload(context.GetContext(), video.Path, video.MIMEType)
	context.Add(GetElapsedParameterName(v.GetName()), time.Since(start))
	if err != nil {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), model.Upload(op, err, "video upload failed"))
		return
	}
	slog.Info("video uploaded", "video_id", video.ID, "media", handle.Name, "state", handle.State)

	v.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(GetMediaHandleParameterName(), handle)
	context.Add(v.GetOutputParam(), handle)
}
