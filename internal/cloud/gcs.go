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

package cloud

import (
	"fmt"
	"path"
	"strings"
)

const gcsScheme = "gs://"

// GCSObject identifies an object in Google Cloud Storage.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "video/mp4").
}

// URI returns the gs:// form of the object reference.
func (o GCSObject) URI() string {
	return gcsScheme + o.Bucket + "/" + o.Name
}

// ParseGCSURI splits a gs://bucket/name URI.
func ParseGCSURI(uri string) (GCSObject, error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		return GCSObject{}, fmt.Errorf("not a gcs uri: %q", uri)
	}
	bucket, name, ok := strings.Cut(strings.TrimPrefix(uri, gcsScheme), "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("gcs uri needs a bucket and an object: %q", uri)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}

// StagingObjectName builds the object name for an upload: prefix/id.ext.
func StagingObjectName(prefix string, id string, extension string) string {
	name := id
	if extension != "" {
		name += "." + strings.TrimPrefix(extension, ".")
	}
	return path.Join(prefix, name)
}
