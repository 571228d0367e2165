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
	"errors"
	"fmt"
)

// ErrorKind classifies why an analysis request did not produce a response.
type ErrorKind string

const (
	ValidationFailure ErrorKind = "validation_failure"
	UploadFailure     ErrorKind = "upload_failure"
	PollTimeout       ErrorKind = "poll_timeout"
	QueryFailure      ErrorKind = "query_failure"
)

var (
	// ErrVideoNotFound is returned when a request references an upload that is
	// not (or no longer) the current one.
	ErrVideoNotFound = errors.New("video not found")
	// ErrMediaProcessingFailed is the cause recorded when the remote service
	// reports a terminal failure state.
	ErrMediaProcessingFailed = errors.New("media processing failed")
	// ErrPollTimeout is the cause recorded when polling exceeds its bounds.
	ErrPollTimeout = errors.New("media processing did not complete in time")
)

// AnalysisError is the single error type surfaced at the orchestration
// boundary. Message is safe to show to a user.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Op      string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// IsWarning reports whether the error should be displayed as a warning rather
// than a failure.
func (e *AnalysisError) IsWarning() bool {
	return e.Kind == ValidationFailure
}

func Validation(op string, err error, message string) *AnalysisError {
	return &AnalysisError{Kind: ValidationFailure, Message: message, Op: op, Err: err}
}

func Upload(op string, err error, message string) *AnalysisError {
	return &AnalysisError{Kind: UploadFailure, Message: message, Op: op, Err: err}
}

func Timeout(op string, err error, message string) *AnalysisError {
	return &AnalysisError{Kind: PollTimeout, Message: message, Op: op, Err: err}
}

func Query(op string, err error, message string) *AnalysisError {
	return &AnalysisError{Kind: QueryFailure, Message: message, Op: op, Err: err}
}

// KindOf returns the kind of the first AnalysisError in err's chain, or an
// empty kind when there is none.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
