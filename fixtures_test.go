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
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"rivaas.dev/router"
)

type article struct {
	ID       string
	Title    string `form:"title" json:"title" validate:"required"`
	Note     string `form:"note" json:"note"`
	Approved bool   `form:"approved" json:"approved"`
}

type approveForm struct {
	Note string `form:"note" json:"note" validate:"required" label:"Review note"`
}

// memStore is an in-memory article store counting lookups.
type memStore struct {
	mu      sync.Mutex
	objects map[string]article
	gets    atomic.Int32
}

func newMemStore(articles ...article) *memStore {
	s := &memStore{objects: make(map[string]article)}
	for _, a := range articles {
		s.objects[a.ID] = a
	}

	return s
}

func (s *memStore) Get(_ context.Context, id string) (article, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.objects[id]
	if !ok {
		return article{}, fmt.Errorf("article %q: %w", id, ErrNotFound)
	}

	return a, nil
}

func (s *memStore) List(_ context.Context) ([]article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Sorted(maps.Keys(s.objects))
	out := make([]article, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.objects[id])
	}

	return out, nil
}

func (s *memStore) save(a article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[a.ID] = a
}

func (s *memStore) get(id string) article {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.objects[id]
}

type testUser string

func (u testUser) Username() string { return string(u) }

// headerUser reads the current user from the X-User header.
func headerUser(r *http.Request) User {
	if name := r.Header.Get("X-User"); name != "" {
		return testUser(name)
	}

	return nil
}

// grants is a static permission table keyed by username.
type grants map[string][]string

func (g grants) HasPermission(_ context.Context, user User, codename string) bool {
	if user == nil {
		return false
	}

	return slices.Contains(g[user.Username()], codename)
}

// captureRenderer records the last render instead of executing templates.
type captureRenderer struct {
	mu   sync.Mutex
	name string
	data map[string]any
	err  error
}

func (c *captureRenderer) Render(w io.Writer, name string, data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.name, c.data = name, data
	_, err := fmt.Fprintf(w, "rendered %s", name)

	return err
}

func (c *captureRenderer) last() (string, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.name, c.data
}

func newTestSite(t *testing.T, g grants, opts ...Option) *Site {
	t.Helper()

	base := []Option{WithAuthorizer(g), WithUserFunc(headerUser)}
	site, err := NewSite(append(base, opts...)...)
	require.NoError(t, err)

	return site
}

func mountResource[T any](t *testing.T, res *Resource[T]) *router.Router {
	t.Helper()

	r := router.MustNew()
	res.Mount(r)

	return r
}

// serve sends a request to h as user. A non-nil form is posted url-encoded.
func serve(h http.Handler, method, target, user string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}

	return nil
}

func noop[T any](*Request[T]) (Result, error) {
	return Result{}, nil
}
