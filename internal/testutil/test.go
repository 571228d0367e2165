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

// Package test provides configuration helpers and in-memory fakes for the
// remote collaborators, so workflows and handlers can be tested without
// credentials or network access.
package test

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// FakeVideo is a ten byte stand-in for an mp4 upload. Its bytes match no
// known signature, so it is accepted on its extension.
var FakeVideo = []byte("0123456789")

// SetupOS points the configuration loader at dir for the "test" runtime.
func SetupOS(t testing.TB, dir string) {
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "test")
}

// NewTestConfig returns the defaults tuned for fast tests: a private scratch
// directory, millisecond polling and no exporters.
func NewTestConfig(t testing.TB) *cloud.Config {
	config := cloud.NewConfig()
	config.Storage.ScratchDir = t.TempDir()
	config.Polling.IntervalMs = 1
	config.Polling.MaxAttempts = 50
	config.Polling.TimeoutInSeconds = 5
	config.Telemetry.Exporter = "none"
	config.Server.GinMode = "test"
	return config
}

// ScratchFiles lists the files currently in dir.
func ScratchFiles(t testing.TB, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read scratch dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// FakeIngestion returns UploadState from Upload and then walks States on each
// Refresh, repeating the last state once the sequence is exhausted.
type FakeIngestion struct {
	mu           sync.Mutex
	UploadState  model.MediaState
	States       []model.MediaState
	UploadErr    error
	RefreshErr   error
	Uploads      int
	Refreshes    int
	Deletes      int
	UploadedMIME string
}

func (f *FakeIngestion) Upload(_ context.Context, _ string, mimeType string) (*model.MediaHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Uploads++
	f.UploadedMIME = mimeType
	if f.UploadErr != nil {
		return nil, f.UploadErr
	}
	state := f.UploadState
	if state == "" {
		state = model.MediaStateProcessing
	}
	return &model.MediaHandle{Name: "files/fake", URI: "https://fake/files/fake", MIMEType: mimeType, State: state}, nil
}

func (f *FakeIngestion) Refresh(_ context.Context, handle *model.MediaHandle) (*model.MediaHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Refreshes++
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	refreshed := *handle
	switch {
	case len(f.States) == 0:
		refreshed.State = model.MediaStateReady
	case f.Refreshes <= len(f.States):
		refreshed.State = f.States[f.Refreshes-1]
	default:
		refreshed.State = f.States[len(f.States)-1]
	}
	return &refreshed, nil
}

func (f *FakeIngestion) Delete(_ context.Context, _ *model.MediaHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes++
	return nil
}

// Calls returns the upload and refresh counts.
func (f *FakeIngestion) Calls() (uploads int, refreshes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Uploads, f.Refreshes
}

// FakeAgent answers every prompt with Text, or fails with Err.
type FakeAgent struct {
	mu      sync.Mutex
	Text    string
	Err     error
	Prompts []string
	Handles [][]*model.MediaHandle
}

func (a *FakeAgent) Run(_ context.Context, prompt string, handles []*model.MediaHandle) (*model.AgentResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Prompts = append(a.Prompts, prompt)
	a.Handles = append(a.Handles, handles)
	if a.Err != nil {
		return nil, a.Err
	}
	return &model.AgentResponse{Text: a.Text, Model: "fake-model"}, nil
}

// Calls returns the number of Run invocations.
func (a *FakeAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Prompts)
}

// CountingStore wraps a TempFileStore and records every Store and Release.
type CountingStore struct {
	*services.TempFileStore
	mu       sync.Mutex
	released map[string]int
	live     map[string]bool
	MaxLive  int
}

// NewCountingStore creates a counting store writing to dir.
func NewCountingStore(dir string) *CountingStore {
	return &CountingStore{
		TempFileStore: services.NewTempFileStore(dir, ".mp4", 0),
		released:      make(map[string]int),
		live:          make(map[string]bool),
	}
}

func (s *CountingStore) Store(r io.Reader) (string, int64, error) {
	path, size, err := s.TempFileStore.Store(r)
	if err != nil {
		return path, size, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[path] = true
	if len(s.live) > s.MaxLive {
		s.MaxLive = len(s.live)
	}
	return path, size, nil
}

func (s *CountingStore) Release(path string) error {
	s.mu.Lock()
	s.released[path]++
	delete(s.live, path)
	s.mu.Unlock()
	return s.TempFileStore.Release(path)
}

// Released returns how often path was released.
func (s *CountingStore) Released(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[path]
}

// ReleasedPaths returns every path released at least once, sorted.
func (s *CountingStore) ReleasedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.released))
	for p := range s.released {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []*model.AnalysisEvent
}

func (p *RecordingPublisher) Publish(_ context.Context, event *model.AnalysisEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
	return nil
}

// Last returns the most recent event or nil.
func (p *RecordingPublisher) Last() *model.AnalysisEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Events) == 0 {
		return nil
	}
	return p.Events[len(p.Events)-1]
}
