// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the standard outcomes of a dispatch.
// Use [errors.Is] to check for them.
var (
	// ErrPermissionDenied is reported when the current user lacks the
	// permission a view declares.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned by a [Resolver] when no object matches the
	// requested identifier.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError describes an invalid view declaration or resource
// configuration. It is returned from [NewResource], [NewRegistry] and
// [NewSite] and is never produced while serving requests.
type ConfigurationError struct {
	// Resource is the "<app>.<model>" label of the resource, if known.
	Resource string
	// View is the name of the offending view declaration, if any.
	View string
	// Field names the configuration field that failed validation.
	Field string
	// Message explains the failure.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("admin: configuration error")
	if e.Resource != "" {
		fmt.Fprintf(&b, " in %s", e.Resource)
	}
	if e.View != "" {
		fmt.Fprintf(&b, " view %q", e.View)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)

	return b.String()
}

func configErrorf(view, field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{View: view, Field: field, Message: fmt.Sprintf(format, args...)}
}

// StatusError carries a standard outcome together with its HTTP status.
// It implements the rivaas.dev/errors ErrorType and ErrorCode interfaces so
// any formatter renders it with the right status and without extra detail.
type StatusError struct {
	Status int
	Err    error
}

// Error returns the message of the wrapped sentinel.
func (e *StatusError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped sentinel.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// HTTPStatus implements rivaas.dev/errors.ErrorType.
func (e *StatusError) HTTPStatus() int {
	return e.Status
}

// Code implements rivaas.dev/errors.ErrorCode.
func (e *StatusError) Code() string {
	switch {
	case errors.Is(e.Err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(e.Err, ErrNotFound):
		return "not_found"
	default:
		return strings.ReplaceAll(strings.ToLower(http.StatusText(e.Status)), " ", "_")
	}
}

var (
	errDenied   = &StatusError{Status: http.StatusForbidden, Err: ErrPermissionDenied}
	errNotFound = &StatusError{Status: http.StatusNotFound, Err: ErrNotFound}
)
