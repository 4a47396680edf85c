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
	"maps"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"rivaas.dev/router"

	"rivaas.dev/admin/messages"
)

// handler generates the dispatchable view of e.
func (res *Resource[T]) handler(e *entry[T]) router.HandlerFunc {
	attrs := []attribute.KeyValue{
		AttrResource.String(res.Label()),
		AttrView.String(e.Name),
		AttrKind.String(e.Kind.String()),
	}

	return func(c *router.Context) {
		start := time.Now()
		ctx, span := res.site.telemetry.start(c.Request.Context(), attrs...)
		d := &dispatch[T]{res: res, e: e, c: c, r: c.Request.WithContext(ctx)}

		o := d.serve()

		res.site.telemetry.finish(ctx, span, o, d.err, time.Since(start), attrs...)
		res.site.logger.DebugContext(ctx, "admin view dispatched",
			"resource", res.Label(),
			"view", e.Name,
			"method", d.r.Method,
			"path", d.r.URL.Path,
			"outcome", string(o),
		)
	}
}

// dispatch is the state of one request through one view.
type dispatch[T any] struct {
	res *Resource[T]
	e   *entry[T]
	c   *router.Context
	r   *http.Request
	req *Request[T]
	err error
}

func (d *dispatch[T]) serve() outcome {
	ctx := d.r.Context()
	user := d.res.site.user(d.r)

	// Permission comes first, so an unauthorized caller learns nothing about
	// the object.
	if !d.res.allowed(ctx, user, d.e.Permission) {
		d.res.site.logger.InfoContext(ctx, "admin view denied",
			"resource", d.res.Label(), "view", d.e.Name, "user", username(user))
		d.standard(errDenied)
		return outcomeDenied
	}

	d.req = &Request[T]{HTTP: d.r, User: user, resource: d.res, view: d.e}

	if d.e.RequiresObject {
		id := d.c.Param(d.e.param)
		obj, err := d.res.cfg.Objects.Get(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			d.standard(errNotFound)
			return outcomeNotFound
		case err != nil:
			return d.fail(err)
		}
		d.req.Object, d.req.ObjectID, d.req.hasObject = obj, id, true
	}

	switch d.e.Kind {
	case KindList:
		return d.list()
	case KindForm:
		return d.form()
	case KindMessage:
		return d.message()
	case KindJSON:
		return d.json()
	case KindConfirm:
		return d.confirm()
	case KindRedirect:
		return d.redirect()
	default:
		return d.fail(fmt.Errorf("admin: view %q has unknown kind %d", d.e.Name, d.e.Kind))
	}
}

func (d *dispatch[T]) list() outcome {
	data := d.context()
	data["list_display"] = d.res.cfg.ListDisplay
	data["list_filter"] = d.res.cfg.ListFilter
	data["search_fields"] = d.res.cfg.SearchFields
	data["query"] = d.r.URL.Query().Get("q")
	data["list_tools"] = d.res.ListTools(d.r)
	if lister, ok := d.res.cfg.Objects.(Lister[T]); ok {
		results, err := lister.List(d.r.Context())
		if err != nil {
			return d.fail(err)
		}
		data["results"] = results
	}

	result, err := d.e.Handler(d.req)
	if err != nil {
		return d.fail(err)
	}
	maps.Copy(data, result.Context)

	return d.render(http.StatusOK, data)
}

func (d *dispatch[T]) form() outcome {
	form := d.e.Form.build(d.req.Object, d.rawIDFields(), d.autocompleteFields())
	d.req.Form = form
	status := http.StatusOK

	if d.r.Method == http.MethodPost {
		if err := form.bind(d.r.Context(), d.r); err != nil {
			return d.fail(err)
		}
		if form.Valid() {
			result, err := d.e.Handler(d.req)
			if err == nil {
				d.queue(result, messages.LevelSuccess)
				return d.redirectTo(d.firstLocation(result.Redirect, d.e.SuccessURL, d.home()))
			}
			verr, ok := asValidation(err)
			if !ok {
				return d.fail(err)
			}
			form.absorb(verr)
		}
		status = http.StatusUnprocessableEntity
	}

	data := d.context()
	data["form"] = form
	if o, ok := d.extra(data); !ok {
		return o
	}
	if d.render(status, data) == outcomeError {
		return outcomeError
	}
	if status != http.StatusOK {
		return outcomeInvalid
	}

	return outcomeRendered
}

func (d *dispatch[T]) message() outcome {
	result, err := d.e.Handler(d.req)
	if err != nil {
		verr, ok := asValidation(err)
		if !ok {
			return d.fail(err)
		}
		d.res.site.messages.Add(d.c.Response, d.r, messages.LevelError, verr.Error())
		return d.redirectTo(d.home())
	}
	d.queue(result, messages.LevelSuccess)

	return d.redirectTo(d.firstLocation(result.Redirect, d.home()))
}

func (d *dispatch[T]) json() outcome {
	result, err := d.e.Handler(d.req)
	if err != nil {
		if _, ok := asValidation(err); !ok {
			return d.fail(err)
		}
		d.write(EnvelopeFormatter{}.Format(d.r, err))
		return outcomeInvalid
	}
	if err := d.c.JSON(http.StatusOK, Success(result.Data)); err != nil {
		d.res.site.logger.ErrorContext(d.r.Context(), "failed to write JSON response", "error", err)
	}

	return outcomeJSON
}

func (d *dispatch[T]) confirm() outcome {
	if d.r.Method != http.MethodPost {
		data := d.context()
		if o, ok := d.extra(data); !ok {
			return o
		}
		return d.render(http.StatusOK, data)
	}

	back := d.firstLocation(safeReferer(d.r), d.home())
	if d.r.PostFormValue("action") != "confirm" {
		return d.redirectTo(back)
	}

	d.req.confirmed = true
	result, err := d.e.Handler(d.req)
	if err != nil {
		verr, ok := asValidation(err)
		if !ok {
			return d.fail(err)
		}
		d.res.site.messages.Add(d.c.Response, d.r, messages.LevelError, verr.Error())
		return d.redirectTo(back)
	}
	d.queue(result, messages.LevelSuccess)

	return d.redirectTo(d.firstLocation(result.Redirect, back))
}

func (d *dispatch[T]) redirect() outcome {
	result, err := d.e.Handler(d.req)
	if err != nil {
		return d.fail(err)
	}
	if result.Redirect == "" {
		return d.fail(fmt.Errorf("admin: redirect view %q returned no location", d.e.Name))
	}
	d.queue(result, messages.LevelInfo)

	return d.redirectTo(result.Redirect)
}

// context builds the base template context of the request.
func (d *dispatch[T]) context() map[string]any {
	res, req := d.res, d.req
	ctx := d.r.Context()

	data := map[string]any{
		"site_title":            res.site.title,
		"site_url":              res.site.prefix + "/",
		"title":                 d.e.Label,
		"view_name":             d.e.Name,
		"app_label":             res.cfg.AppLabel,
		"model_name":            res.cfg.ModelName,
		"verbose_name":          res.cfg.VerboseName,
		"user":                  req.User,
		"action_url":            d.r.URL.RequestURI(),
		"changelist_url":        res.ChangelistURL(),
		"has_view_permission":   res.allowed(ctx, req.User, PermissionView),
		"has_change_permission": res.allowed(ctx, req.User, PermissionChange),
		"has_add_permission":    res.allowed(ctx, req.User, PermissionAdd),
		"has_delete_permission": res.allowed(ctx, req.User, PermissionDelete),
	}
	if req.hasObject {
		data["object"] = req.Object
		data["original"] = req.Object
		data["object_id"] = req.ObjectID
		data["original_url"] = res.DetailURL(req.ObjectID)
		data["object_tools"] = res.ObjectTools(d.r, req.ObjectID)
	}
	if reader, ok := res.site.messages.(MessageReader); ok {
		data["messages"] = reader.Pop(d.c.Response, d.r)
	}

	return data
}

// extra merges the view's extra context into data. It reports false, with
// the outcome to return, when the context function failed.
func (d *dispatch[T]) extra(data map[string]any) (outcome, bool) {
	if d.e.Extra == nil {
		return "", true
	}
	more, err := d.e.Extra(d.req)
	if err != nil {
		return d.fail(err), false
	}
	maps.Copy(data, more)

	return "", true
}

// home is the object detail page, or the change list without an object.
func (d *dispatch[T]) home() string {
	if d.req != nil && d.req.hasObject {
		return d.res.DetailURL(d.req.ObjectID)
	}

	return d.res.ChangelistURL()
}

func (d *dispatch[T]) firstLocation(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}

	return d.home()
}

// queue adds the message of result, defaulting the text for successful
// side effects.
func (d *dispatch[T]) queue(result Result, fallback messages.Level) {
	level := result.Level
	if !level.Valid() {
		level = fallback
	}
	text := result.Message
	if text == "" {
		if level != messages.LevelSuccess {
			return
		}
		text = d.e.Label + " completed."
	}
	d.res.site.messages.Add(d.c.Response, d.r, level, text)
}

func (d *dispatch[T]) rawIDFields() []string {
	if d.e.RawIDFields != nil {
		return d.e.RawIDFields
	}

	return d.res.cfg.RawIDFields
}

func (d *dispatch[T]) autocompleteFields() []string {
	if d.e.AutocompleteFields != nil {
		return d.e.AutocompleteFields
	}

	return d.res.cfg.AutocompleteFields
}

func username(u User) string {
	if u == nil {
		return ""
	}

	return u.Username()
}
