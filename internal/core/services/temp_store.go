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

// Package services contains the components that talk to the outside world on
// behalf of an analysis request: the scratch file store, the remote media
// ingestion clients, the query agent and the event publisher.
package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// ErrUploadTooLarge is returned by Store when the input exceeds the size limit.
var ErrUploadTooLarge = errors.New("upload exceeds the maximum size")

// TempFileStore writes uploads to uniquely named scratch files.
type TempFileStore struct {
	Dir      string // Scratch directory; empty means os.TempDir().
	Suffix   string // Fixed suffix for every file, e.g. ".mp4".
	MaxBytes int64  // Largest accepted upload; zero means unlimited.
}

// NewTempFileStore creates a store in dir using suffix for every file.
func NewTempFileStore(dir string, suffix string, maxBytes int64) *TempFileStore {
	return &TempFileStore{Dir: dir, Suffix: suffix, MaxBytes: maxBytes}
}

// Store copies r into a new scratch file and returns its path and size. A
// partially written file is removed before an error is returned.
func (s *TempFileStore) Store(r io.Reader) (path string, size int64, err error) {
	if s.Dir != "" {
		if err = os.MkdirAll(s.Dir, 0o700); err != nil {
			return "", 0, fmt.Errorf("failed to create scratch directory: %w", err)
		}
	}
	f, err := os.CreateTemp(s.Dir, "video-*"+s.Suffix)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create scratch file: %w", err)
	}
	path = f.Name()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close scratch file: %w", cerr)
		}
		if err != nil {
			_ = s.Release(path)
			path, size = "", 0
		}
	}()

	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	size, err = io.Copy(f, src)
	if err != nil {
		return path, size, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if s.MaxBytes > 0 && size > s.MaxBytes {
		return path, size, ErrUploadTooLarge
	}
	return path, size, nil
}

// Release deletes the file at path. An empty path or a missing file is not an
// error.
func (s *TempFileStore) Release(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove scratch file: %w", err)
	}
	return nil
}
