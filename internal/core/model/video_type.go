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

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// SniffLength is the number of leading bytes needed to recognise a container.
const SniffLength = 262

// VideoType describes one of the accepted video containers.
type VideoType struct {
	Extension string `json:"extension"`
	MIMEType  string `json:"mime_type"`
}

// AcceptedVideoTypes lists the containers the uploader accepts, keyed by
// lower-case extension without the dot.
var AcceptedVideoTypes = map[string]VideoType{
	"mp4": {Extension: "mp4", MIMEType: "video/mp4"},
	"mov": {Extension: "mov", MIMEType: "video/quicktime"},
	"avi": {Extension: "avi", MIMEType: "video/x-msvideo"},
}

// AcceptedExtensions returns the accepted extensions in display order.
func AcceptedExtensions() []string {
	return []string{"mp4", "mov", "avi"}
}

// DetectVideoType validates a file name's extension and, when the leading
// bytes are recognisable, the content itself. Content that is identified as
// something other than a video is rejected; unrecognised content falls back
// to the MIME type implied by the extension.
func DetectVideoType(fileName string, head []byte) (VideoType, error) {
	const op = "model.DetectVideoType"

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	vt, ok := AcceptedVideoTypes[ext]
	if !ok {
		return VideoType{}, Validation(op, nil,
			fmt.Sprintf("Unsupported file type %q. Accepted types: %s.", ext, strings.Join(AcceptedExtensions(), ", ")))
	}

	if len(head) == 0 {
		return vt, nil
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return vt, nil
	}
	if !filetype.IsVideo(head) {
		return VideoType{}, Validation(op, nil,
			fmt.Sprintf("The uploaded file looks like %s, not a video.", kind.MIME.Value))
	}
	// Trust the sniffed container over the declared extension when it is one
	// of ours, so a mislabelled .mov still reaches the model with the right type.
	if sniffed, ok := AcceptedVideoTypes[kind.Extension]; ok {
		return VideoType{Extension: vt.Extension, MIMEType: sniffed.MIMEType}, nil
	}
	return vt, nil
}
