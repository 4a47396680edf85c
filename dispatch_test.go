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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/router"
	"rivaas.dev/validation"

	"rivaas.dev/admin/messages"
)

// fixture is one mounted article resource with a single view.
type fixture struct {
	store    *memStore
	renderer *captureRenderer
	router   *router.Router
	res      *Resource[article]
	calls    *atomic.Int32
}

func newFixture(t *testing.T, g grants, view View[article], opts ...Option) *fixture {
	t.Helper()

	calls := &atomic.Int32{}
	inner := view.Handler
	view.Handler = func(req *Request[article]) (Result, error) {
		calls.Add(1)
		return inner(req)
	}

	renderer := &captureRenderer{}
	site := newTestSite(t, g, append([]Option{WithRenderer(renderer)}, opts...)...)
	store := newMemStore(article{ID: "1", Title: "Hello", Note: "draft"})
	res, err := NewResource(site, ResourceConfig[article]{
		AppLabel:    "blog",
		ModelName:   "article",
		Objects:     store,
		Views:       NewViewSet(view),
		ListDisplay: []string{"title"},
	})
	require.NoError(t, err)

	return &fixture{
		store:    store,
		renderer: renderer,
		router:   mountResource(t, res),
		res:      res,
		calls:    calls,
	}
}

func pendingMessages(t *testing.T, w *httptest.ResponseRecorder) []messages.Message {
	t.Helper()

	c := responseCookie(w, messages.DefaultCookieName)
	require.NotNil(t, c, "no message cookie set")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)

	return messages.NewCookieQueue().Peek(r)
}

func approveView(store func() *memStore) View[article] {
	return View[article]{
		Name:           "approve",
		Kind:           KindForm,
		Path:           "approve/:id",
		Permission:     "can_approve",
		RequiresObject: true,
		Form:           FormOf(func(a article) approveForm { return approveForm{Note: a.Note} }),
		Handler: func(req *Request[article]) (Result, error) {
			form, ok := FormValue[approveForm](req)
			if !ok {
				return Result{}, errors.New("missing form")
			}
			a := req.Object
			a.Note, a.Approved = form.Note, true
			store().save(a)
			return Done("Article approved."), nil
		},
	}
}

func TestDispatch_ApproveScenario(t *testing.T) {
	t.Parallel()

	var f *fixture
	f = newFixture(t, grants{"reviewer": {"blog.can_approve"}}, approveView(func() *memStore { return f.store }))

	t.Run("GET renders the pre-populated form", func(t *testing.T) {
		w := serve(f.router, http.MethodGet, "/admin/blog/article/approve/1", "reviewer", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

		name, data := f.renderer.last()
		assert.Equal(t, "admin/form.html", name)
		form, ok := data["form"].(*Form)
		require.True(t, ok)
		assert.False(t, form.Bound())
		assert.Equal(t, "draft", form.Field("note").Value)
		assert.Equal(t, "1", data["object_id"])
		assert.Equal(t, "/admin/blog/article/1/change", data["original_url"])
	})

	t.Run("valid POST saves and redirects with a message", func(t *testing.T) {
		w := serve(f.router, http.MethodPost, "/admin/blog/article/approve/1", "reviewer", url.Values{"note": {"ok"}})
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/admin/blog/article/1/change", w.Header().Get("Location"))
		assert.Equal(t, []messages.Message{{Level: messages.LevelSuccess, Text: "Article approved."}}, pendingMessages(t, w))

		saved := f.store.get("1")
		assert.True(t, saved.Approved)
		assert.Equal(t, "ok", saved.Note)
	})
}

func TestDispatch_InvalidFormHasNoSideEffect(t *testing.T) {
	t.Parallel()

	var f *fixture
	f = newFixture(t, grants{"reviewer": {"blog.can_approve"}}, approveView(func() *memStore { return f.store }))

	w := serve(f.router, http.MethodPost, "/admin/blog/article/approve/1", "reviewer", url.Values{"note": {""}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, article{ID: "1", Title: "Hello", Note: "draft"}, f.store.get("1"))
	assert.Nil(t, responseCookie(w, messages.DefaultCookieName))

	_, data := f.renderer.last()
	form, ok := data["form"].(*Form)
	require.True(t, ok)
	require.Len(t, form.Errors(), 1)
	assert.Equal(t, "note", form.Errors()[0].Path)
	assert.Equal(t, []string{"is required"}, form.Field("note").Errors)
}

func TestDispatch_MissingFieldIsNotTakenFromObject(t *testing.T) {
	t.Parallel()

	var f *fixture
	f = newFixture(t, grants{"reviewer": {"blog.can_approve"}}, approveView(func() *memStore { return f.store }))

	w := serve(f.router, http.MethodPost, "/admin/blog/article/approve/1", "reviewer", url.Values{"other": {"x"}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, article{ID: "1", Title: "Hello", Note: "draft"}, f.store.get("1"))

	_, data := f.renderer.last()
	form := data["form"].(*Form)
	assert.Equal(t, []string{"is required"}, form.Field("note").Errors)
	assert.Empty(t, form.Field("note").Value)
}

func TestDispatch_MalformedFormBody(t *testing.T) {
	t.Parallel()

	var f *fixture
	f = newFixture(t, grants{"reviewer": {"blog.can_approve"}}, approveView(func() *memStore { return f.store }))

	req := httptest.NewRequest(http.MethodPost, "/admin/blog/article/approve/1", strings.NewReader("note=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-User", "reviewer")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestDispatch_SavePathValidationError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, grants{"editor": {"blog.change_article"}}, View[article]{
		Name:           "retitle",
		Kind:           KindForm,
		Permission:     PermissionChange,
		RequiresObject: true,
		Form:           ModelForm[article]("title"),
		Handler: func(*Request[article]) (Result, error) {
			return Result{}, &validation.Error{Fields: []validation.FieldError{{Path: "title", Code: "taken", Message: "already used"}}}
		},
	})

	w := serve(f.router, http.MethodPost, "/admin/blog/article/1/retitle", "editor", url.Values{"title": {"Dup"}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int32(1), f.calls.Load())

	_, data := f.renderer.last()
	form := data["form"].(*Form)
	assert.Equal(t, []string{"already used"}, form.Field("title").Errors)
	assert.Equal(t, "Dup", form.Field("title").Value)
}

func TestDispatch_PermissionCheckedBeforeLookup(t *testing.T) {
	t.Parallel()

	var f *fixture
	f = newFixture(t, grants{"viewer": {"blog.view_article"}}, approveView(func() *memStore { return f.store }))

	for _, id := range []string{"1", "missing"} {
		for _, user := range []string{"viewer", ""} {
			w := serve(f.router, http.MethodPost, "/admin/blog/article/approve/"+id, user, url.Values{"note": {"ok"}})
			require.Equal(t, http.StatusForbidden, w.Code, "id %s user %q", id, user)

			var problem map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
			assert.Equal(t, "permission_denied", problem["code"])
			assert.Equal(t, "permission denied", problem["detail"])
		}
	}
	assert.Equal(t, int32(0), f.store.gets.Load(), "the object is never looked up")
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestDispatch_NotFoundNeverInvokesHandler(t *testing.T) {
	t.Parallel()

	var f *fixture
	f = newFixture(t, grants{"reviewer": {"blog.can_approve"}}, approveView(func() *memStore { return f.store }))

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := serve(f.router, method, "/admin/blog/article/approve/404", "reviewer", url.Values{"note": {"ok"}})
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
	assert.Equal(t, int32(2), f.store.gets.Load())
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestDispatch_ResolverErrorGoesToErrorHandler(t *testing.T) {
	t.Parallel()

	boom := errors.New("store offline")
	var got error
	site := newTestSite(t, grants{"u": {"blog.view_article"}}, WithErrorHandler(func(c *router.Context, err error) {
		got = err
		c.Response.WriteHeader(http.StatusServiceUnavailable)
	}))
	res := MustNewResource(site, ResourceConfig[article]{
		AppLabel:  "blog",
		ModelName: "article",
		Objects: ResolverFunc[article](func(context.Context, string) (article, error) {
			return article{}, boom
		}),
		Views: NewViewSet(objectView("ping", "")),
	})

	w := serve(mountResource(t, res), http.MethodGet, "/admin/blog/article/1/ping", "u", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Same(t, boom, got)
}

func TestDispatch_HandlerErrorPassedUnchanged(t *testing.T) {
	t.Parallel()

	boom := &StatusError{Status: http.StatusConflict, Err: errors.New("locked")}
	tests := []struct {
		name string
		view View[article]
		path string
	}{
		{"message", View[article]{Name: "lock", Kind: KindMessage, Handler: func(*Request[article]) (Result, error) { return Result{}, boom }}, "/admin/blog/article/lock"},
		{"json", View[article]{Name: "stats", Kind: KindJSON, Handler: func(*Request[article]) (Result, error) { return Result{}, boom }}, "/admin/blog/article/stats"},
		{"list", View[article]{Name: "report", Kind: KindList, Handler: func(*Request[article]) (Result, error) { return Result{}, boom }}, "/admin/blog/article/report"},
		{"redirect", View[article]{Name: "jump", Kind: KindRedirect, Handler: func(*Request[article]) (Result, error) { return Result{}, boom }}, "/admin/blog/article/jump"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got error
			f := newFixture(t, grants{"u": {"blog.view_article"}}, tt.view, WithErrorHandler(func(c *router.Context, err error) {
				got = err
				c.Response.WriteHeader(http.StatusTeapot)
			}))

			w := serve(f.router, http.MethodGet, tt.path, "u", nil)
			assert.Equal(t, http.StatusTeapot, w.Code)
			assert.Same(t, boom, got)
		})
	}
}

func TestDispatch_DefaultErrorHandlerFormats(t *testing.T) {
	t.Parallel()

	f := newFixture(t, grants{"u": {"blog.view_article"}}, View[article]{
		Name: "stats",
		Kind: KindJSON,
		Handler: func(*Request[article]) (Result, error) {
			return Result{}, &StatusError{Status: http.StatusConflict, Err: errors.New("locked")}
		},
	})

	w := serve(f.router, http.MethodGet, "/admin/blog/article/stats", "u", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/problem+json; charset=utf-8", w.Header().Get("Content-Type"))

	var problem map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, "conflict", problem["code"])
	assert.Equal(t, "/admin/blog/article/stats", problem["instance"])
}

func TestDispatch_Message(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		handler  Handler[article]
		wantMsgs []messages.Message
	}{
		{
			name:     "default success text",
			handler:  noop[article],
			wantMsgs: []messages.Message{{Level: messages.LevelSuccess, Text: "Publish completed."}},
		},
		{
			name:     "explicit failure",
			handler:  func(*Request[article]) (Result, error) { return Failed("Already published."), nil },
			wantMsgs: []messages.Message{{Level: messages.LevelError, Text: "Already published."}},
		},
		{
			name: "validation failure",
			handler: func(*Request[article]) (Result, error) {
				return Result{}, validation.Error{Fields: []validation.FieldError{{Path: "title", Message: "is required"}}}
			},
			wantMsgs: []messages.Message{{Level: messages.LevelError, Text: "title: is required"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, grants{"editor": {"blog.change_article"}}, View[article]{
				Name: "publish", Kind: KindMessage, RequiresObject: true, Permission: PermissionChange, Handler: tt.handler,
			})

			w := serve(f.router, http.MethodPost, "/admin/blog/article/1/publish", "editor", url.Values{})
			require.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "/admin/blog/article/1/change", w.Header().Get("Location"))
			assert.Equal(t, tt.wantMsgs, pendingMessages(t, w))
		})
	}
}

func TestDispatch_JSON(t *testing.T) {
	t.Parallel()

	f := newFixture(t, grants{"u": {"blog.view_article"}}, View[article]{
		Name:           "summary",
		Kind:           KindJSON,
		RequiresObject: true,
		Handler: func(req *Request[article]) (Result, error) {
			if req.Object.Note == "" {
				return Result{}, &validation.Error{Fields: []validation.FieldError{{Path: "note", Message: "is required"}}}
			}
			return Payload(map[string]string{"title": req.Object.Title}), nil
		},
	})

	w := serve(f.router, http.MethodGet, "/admin/blog/article/1/summary", "u", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"data":{"title":"Hello"},"errors":null}`, w.Body.String())

	f.store.save(article{ID: "2", Title: "Blank"})
	w = serve(f.router, http.MethodGet, "/admin/blog/article/2/summary", "u", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":false,"data":null,"errors":{"note":["is required"]}}`, w.Body.String())
}

func TestDispatch_UndeclaredMethodNeverReachesView(t *testing.T) {
	t.Parallel()

	f := newFixture(t, grants{"u": {"blog.view_article"}}, View[article]{Name: "stats", Kind: KindJSON, Handler: noop[article]})

	w := serve(f.router, http.MethodPost, "/admin/blog/article/stats", "u", url.Values{})
	assert.NotEqual(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestDispatch_Confirm(t *testing.T) {
	t.Parallel()

	var confirmed atomic.Bool
	view := View[article]{
		Name:           "purge",
		Kind:           KindConfirm,
		RequiresObject: true,
		Permission:     PermissionDelete,
		Extra: func(req *Request[article]) (map[string]any, error) {
			return map[string]any{"question": "Purge " + req.Object.Title + "?"}, nil
		},
		Handler: func(req *Request[article]) (Result, error) {
			confirmed.Store(req.Confirmed())
			return Done("Purged."), nil
		},
	}
	f := newFixture(t, grants{"admin": {"blog.delete_article"}}, view)
	target := "/admin/blog/article/1/purge"

	w := serve(f.router, http.MethodGet, target, "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	name, data := f.renderer.last()
	assert.Equal(t, "admin/confirm.html", name)
	assert.Equal(t, "Purge Hello?", data["question"])
	assert.Equal(t, target, data["action_url"])

	cancel := httptest.NewRequest(http.MethodPost, target, nil)
	cancel.PostForm = url.Values{"action": {"cancel"}}
	cancel.Header.Set("X-User", "admin")
	cancel.Header.Set("Referer", "http://example.com/admin/blog/article?q=x")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, cancel)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/blog/article?q=x", w.Header().Get("Location"))
	assert.Equal(t, int32(0), f.calls.Load())

	w = serve(f.router, http.MethodPost, target, "admin", url.Values{"action": {"confirm"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/blog/article/1/change", w.Header().Get("Location"))
	assert.Equal(t, int32(1), f.calls.Load())
	assert.True(t, confirmed.Load())
	assert.Equal(t, []messages.Message{{Level: messages.LevelSuccess, Text: "Purged."}}, pendingMessages(t, w))
}

func TestSafeReferer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		referer string
		want    string
	}{
		{"", ""},
		{"http://example.com/admin/blog/article/1/change", "/admin/blog/article/1/change"},
		{"/admin/blog/article", "/admin/blog/article"},
		{"https://evil.test/admin", ""},
		{"javascript:alert(1)", ""},
		{"//evil.test/x", ""},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "http://example.com/admin", nil)
		if tt.referer != "" {
			r.Header.Set("Referer", tt.referer)
		}
		assert.Equal(t, tt.want, safeReferer(r), tt.referer)
	}
}

func TestDispatch_Redirect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, grants{"u": {"blog.view_article"}}, View[article]{
		Name:           "preview",
		Kind:           KindRedirect,
		RequiresObject: true,
		Handler: func(req *Request[article]) (Result, error) {
			return RedirectTo("/blog/" + req.ObjectID + "/preview"), nil
		},
	})

	w := serve(f.router, http.MethodGet, "/admin/blog/article/1/preview", "u", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/blog/1/preview", w.Header().Get("Location"))
	assert.Nil(t, responseCookie(w, messages.DefaultCookieName), "redirects without a message queue nothing")
}

func TestDispatch_RedirectWithoutLocationFails(t *testing.T) {
	t.Parallel()

	var got error
	f := newFixture(t, grants{"u": {"blog.view_article"}}, View[article]{Name: "jump", Kind: KindRedirect, Handler: noop[article]},
		WithErrorHandler(func(c *router.Context, err error) {
			got = err
			c.Response.WriteHeader(http.StatusInternalServerError)
		}))

	w := serve(f.router, http.MethodGet, "/admin/blog/article/jump", "u", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "returned no location")
}

func TestDispatch_ListContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, grants{"u": {"blog.view_article", "blog.add_article"}}, View[article]{
		Name: "report",
		Kind: KindList,
		Handler: func(*Request[article]) (Result, error) {
			return Extra(map[string]any{"total": 1, "title": "Monthly report"}), nil
		},
	})

	w := serve(f.router, http.MethodGet, "/admin/blog/article/report?q=hel", "u", nil)
	require.Equal(t, http.StatusOK, w.Code)

	name, data := f.renderer.last()
	assert.Equal(t, "admin/change_list.html", name)
	assert.Equal(t, []article{{ID: "1", Title: "Hello", Note: "draft"}}, data["results"])
	assert.Equal(t, []string{"title"}, data["list_display"])
	assert.Equal(t, "hel", data["query"])
	assert.Equal(t, 1, data["total"])
	assert.Equal(t, "Monthly report", data["title"], "handler context overrides the base context")
	assert.Equal(t, "/admin/blog/article", data["changelist_url"])
	assert.Equal(t, "report", data["view_name"])
	assert.Equal(t, true, data["has_view_permission"])
	assert.Equal(t, true, data["has_add_permission"])
	assert.Equal(t, false, data["has_delete_permission"])
	assert.Equal(t, testUser("u"), data["user"])
	assert.NotContains(t, data, "object")

	tools, ok := data["list_tools"].([]Tool)
	require.True(t, ok)
	require.Len(t, tools, 1)
	assert.Equal(t, "blog_article_report", tools[0].Name)
}

func TestDispatch_RenderPopsMessages(t *testing.T) {
	t.Parallel()

	var f *fixture
	f = newFixture(t, grants{"reviewer": {"blog.can_approve"}}, approveView(func() *memStore { return f.store }))

	queued := httptest.NewRecorder()
	messages.NewCookieQueue().Add(queued, httptest.NewRequest(http.MethodPost, "/", nil), messages.LevelInfo, "Welcome back.")
	cookie := responseCookie(queued, messages.DefaultCookieName)
	require.NotNil(t, cookie)

	w := serve(f.router, http.MethodGet, "/admin/blog/article/approve/1", "reviewer", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	_, data := f.renderer.last()
	assert.Equal(t, []messages.Message{{Level: messages.LevelInfo, Text: "Welcome back."}}, data["messages"])
	cleared := responseCookie(w, messages.DefaultCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestDispatch_RenderFailureGoesToErrorHandler(t *testing.T) {
	t.Parallel()

	var got error
	f := newFixture(t, grants{"u": {"blog.view_article"}}, View[article]{Name: "report", Kind: KindList, Handler: noop[article]},
		WithErrorHandler(func(c *router.Context, err error) {
			got = err
			c.Response.WriteHeader(http.StatusInternalServerError)
		}))
	f.renderer.err = errors.New("template exploded")

	w := serve(f.router, http.MethodGet, "/admin/blog/article/report", "u", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Same(t, f.renderer.err, got)
	assert.Empty(t, w.Body.String())
}

func TestDispatch_DefaultTemplates(t *testing.T) {
	t.Parallel()

	site, err := NewSite(WithAuthorizer(grants{"u": {"blog.change_article"}}), WithUserFunc(headerUser))
	require.NoError(t, err)

	res := MustNewResource(site, ResourceConfig[article]{
		AppLabel:  "blog",
		ModelName: "article",
		Objects:   newMemStore(article{ID: "1", Title: "Hello"}),
		Views: NewViewSet(
			View[article]{Name: "retitle", Kind: KindForm, RequiresObject: true, Form: ModelForm[article]("title"), Handler: noop[article]},
			View[article]{Name: "approve", Kind: KindMessage, RequiresObject: true, Permission: "can_approve", Handler: noop[article]},
		),
	})

	w := serve(mountResource(t, res), http.MethodGet, "/admin/blog/article/1/retitle", "u", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `name="title" value="Hello"`)
	assert.Contains(t, body, `<a href="/admin/blog/article/1/retitle">Retitle</a>`)
	assert.Contains(t, body, `<span class="disabled" aria-disabled="true">Approve</span>`)
}
