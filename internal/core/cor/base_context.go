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

package cor

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
)

// removeFile is the default Releaser. A missing file counts as released.
type removeFile struct{}

func (removeFile) Release(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ContextOption configures a BaseContext.
type ContextOption func(*BaseContext)

// WithReleaser makes Close hand tracked files to r instead of removing them
// directly.
func WithReleaser(r Releaser) ContextOption {
	return func(c *BaseContext) {
		if r != nil {
			c.releaser = r
		}
	}
}

// BaseContext is the default Context implementation.
type BaseContext struct {
	data      map[string]interface{}
	errors    map[string]error
	tempFiles []string
	releaser  Releaser
	context   context.Context
}

// NewBaseContext creates an empty Context.
func NewBaseContext(opts ...ContextOption) Context {
	c := &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
		releaser:  removeFile{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close releases every tracked temporary file and forgets it, so a second
// Close does nothing. Release failures are logged, not returned.
func (c *BaseContext) Close() {
	files := c.tempFiles
	c.tempFiles = make([]string, 0)
	for _, file := range files {
		if err := c.releaser.Release(file); err != nil {
			slog.Warn("failed to release temporary file", "file", file, "error", err)
		}
	}
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

func (c *BaseContext) AddError(key string, err error) {
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

// FirstError returns the error recorded by the earliest command in order,
// or nil. With ContinueOnFailure(false) a chain records at most one error.
func FirstError(c Context, order []string) error {
	errs := c.GetErrors()
	for _, name := range order {
		if err, ok := errs[name]; ok {
			return err
		}
	}
	for _, err := range errs {
		return err
	}
	return nil
}
