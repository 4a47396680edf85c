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
	"context"
	"net/http"
)

// Request is the context of one view invocation. It is created when dispatch
// starts and discarded with the response; it must not be retained.
type Request[T any] struct {
	// HTTP is the incoming request. Its context carries the dispatch span.
	HTTP *http.Request
	// User is the current user, nil when anonymous.
	User User

	// Object is the resolved object when the view requires one.
	Object T
	// ObjectID is the raw identifier taken from the path.
	ObjectID string

	// Form is the form of a form view, nil otherwise.
	Form *Form

	resource  *Resource[T]
	view      *entry[T]
	hasObject bool
	confirmed bool
}

// Context returns the request context.
func (r *Request[T]) Context() context.Context {
	return r.HTTP.Context()
}

// HasObject reports whether Object was resolved.
func (r *Request[T]) HasObject() bool {
	return r.hasObject
}

// Confirmed reports whether a confirm view's confirmation was posted.
func (r *Request[T]) Confirmed() bool {
	return r.confirmed
}

// ViewName returns the name of the dispatched view.
func (r *Request[T]) ViewName() string {
	return r.view.Name
}

// Resource returns the resource the view belongs to.
func (r *Request[T]) Resource() *Resource[T] {
	return r.resource
}

// HasPermission evaluates a permission of the resource for the current user.
// The name follows the rules of [View.Permission].
func (r *Request[T]) HasPermission(permission string) bool {
	return r.resource.allowed(r.Context(), r.User, permission)
}
