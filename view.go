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
	"net/http"
	"regexp"
	"slices"
	"strings"

	"rivaas.dev/admin/messages"
)

// Kind is the shape of the outcome a view produces.
type Kind uint8

const (
	// KindList renders the list template with the base list context plus
	// the context returned by the handler.
	KindList Kind = iota + 1
	// KindForm renders a form on GET and on invalid POST. A valid POST runs
	// the handler as the save path and redirects with a success message.
	KindForm
	// KindMessage runs the handler for its side effect, queues a message and
	// redirects to the object detail page.
	KindMessage
	// KindJSON writes the handler's data in the {ok, data, errors} envelope.
	KindJSON
	// KindConfirm asks for confirmation on GET and runs the handler when the
	// confirmation is posted.
	KindConfirm
	// KindRedirect runs the handler and redirects to the location it returns.
	KindRedirect
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindForm:
		return "form"
	case KindMessage:
		return "message"
	case KindJSON:
		return "json"
	case KindConfirm:
		return "confirm"
	case KindRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Standard permission levels. Any other name is treated as a custom
// permission codename of the resource's app.
const (
	PermissionView   = "view"
	PermissionChange = "change"
	PermissionDelete = "delete"
	PermissionAdd    = "add"
)

// Handler is the method behind a view. It is an ordinary function value:
// declaring it in a [View] does not change what it does when called directly.
type Handler[T any] func(req *Request[T]) (Result, error)

// ContextFunc contributes extra template context to a render.
type ContextFunc[T any] func(req *Request[T]) (map[string]any, error)

// View declares one custom admin view on a resource.
//
// Only Name, Kind and Handler are mandatory. Everything else has a default
// derived from them when the registry is built.
type View[T any] struct {
	// Name identifies the view. It must be lower snake case ("mark_paid").
	// The URL name is "<app>_<model>_<name>".
	Name string

	// Path is the URL suffix under the resource, using router placeholders:
	// ":id/approve" or "approve/:id". It defaults to Name with "_" replaced
	// by "-", prefixed with ":id/" when RequiresObject is set.
	Path string

	// Methods is the set of accepted HTTP methods, GET and POST only.
	// Defaults to GET, plus POST for KindForm, KindMessage and KindConfirm.
	Methods []string

	// Permission is a level (view, change, delete, add), a custom codename
	// of the resource's app, or a dotted codename. Defaults to view.
	Permission string

	Kind Kind

	// RequiresObject resolves the object named by the path placeholder
	// before the handler runs.
	RequiresObject bool

	// Label is the tool button text and page title. Defaults to the
	// humanized Name.
	Label string
	Icon  string

	// HideFromTools keeps the view out of the object and list tools.
	HideFromTools bool

	// Template overrides the default template of the kind.
	Template string

	// Form is required for KindForm and rejected on every other kind.
	Form *FormFactory[T]

	// RawIDFields and AutocompleteFields override the resource-level
	// widget sets when non-nil.
	RawIDFields        []string
	AutocompleteFields []string

	// SuccessURL is where a valid form submission redirects when the handler
	// does not return a location. Defaults to the object detail page.
	SuccessURL string

	// Extra contributes context to every render of a form or confirm view.
	Extra ContextFunc[T]

	Handler Handler[T]
}

// Result is the logical outcome of a handler.
type Result struct {
	// Context is merged over the base template context.
	Context map[string]any
	// Data is the payload of a JSON view.
	Data any
	// Message is queued for the user; Level defaults to success.
	Message string
	Level   messages.Level
	// Redirect overrides the location the view redirects to.
	Redirect string
}

// Extra returns a Result carrying template context.
func Extra(ctx map[string]any) Result {
	return Result{Context: ctx}
}

// Done returns a Result with a success message.
func Done(message string) Result {
	return Result{Message: message, Level: messages.LevelSuccess}
}

// Failed returns a Result with an error message.
func Failed(message string) Result {
	return Result{Message: message, Level: messages.LevelError}
}

// Payload returns a Result for a JSON view.
func Payload(data any) Result {
	return Result{Data: data}
}

// RedirectTo returns a Result redirecting to location.
func RedirectTo(location string) Result {
	return Result{Redirect: location}
}

var (
	viewNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	segmentPattern  = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)
)

// reservedSegments are path segments owned by the host's default screens.
var reservedSegments = []string{"add", "change", "delete", "history"}

// entry is a normalized declaration.
type entry[T any] struct {
	View[T]

	// param is the placeholder name without the leading colon.
	param string
	// key identifies the path independent of the placeholder name.
	key string
}

func defaultTemplate(k Kind) string {
	switch k {
	case KindList:
		return "admin/change_list.html"
	case KindForm:
		return "admin/form.html"
	case KindConfirm:
		return "admin/confirm.html"
	default:
		return ""
	}
}

// normalize applies defaults to v and checks its invariants.
func normalize[T any](v View[T]) (*entry[T], error) {
	if !viewNamePattern.MatchString(v.Name) {
		return nil, configErrorf(v.Name, "Name", "must be lower snake case, got %q", v.Name)
	}
	if v.Kind < KindList || v.Kind > KindRedirect {
		return nil, configErrorf(v.Name, "Kind", "unknown kind %d", v.Kind)
	}
	if v.Handler == nil {
		return nil, configErrorf(v.Name, "Handler", "is required")
	}
	if v.Kind == KindForm && v.Form == nil {
		return nil, configErrorf(v.Name, "Form", "is required for form views")
	}
	if v.Kind != KindForm && v.Form != nil {
		return nil, configErrorf(v.Name, "Form", "is only valid on form views, got %s", v.Kind)
	}
	if v.Form != nil {
		if err := v.Form.check(); err != nil {
			return nil, configErrorf(v.Name, "Form", "%v", err)
		}
	}

	methods, err := normalizeMethods(v)
	if err != nil {
		return nil, err
	}
	v.Methods = methods

	if v.Path == "" {
		v.Path = strings.ReplaceAll(v.Name, "_", "-")
		if v.RequiresObject {
			v.Path = ":id/" + v.Path
		}
	}
	e := &entry[T]{}
	if err := e.parsePath(v.Name, v.Path, v.RequiresObject); err != nil {
		return nil, err
	}
	v.Path = strings.Trim(v.Path, "/")

	if v.Permission == "" {
		v.Permission = PermissionView
	}
	if v.Label == "" {
		v.Label = Humanize(v.Name)
	}
	if v.Template == "" {
		v.Template = defaultTemplate(v.Kind)
	}
	e.View = v

	return e, nil
}

func normalizeMethods[T any](v View[T]) ([]string, error) {
	if len(v.Methods) == 0 {
		switch v.Kind {
		case KindForm, KindMessage, KindConfirm:
			return []string{http.MethodGet, http.MethodPost}, nil
		default:
			return []string{http.MethodGet}, nil
		}
	}

	methods := make([]string, 0, len(v.Methods))
	for _, m := range v.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != http.MethodGet && m != http.MethodPost {
			return nil, configErrorf(v.Name, "Methods", "only GET and POST are supported, got %q", m)
		}
		if !slices.Contains(methods, m) {
			methods = append(methods, m)
		}
	}
	if (v.Kind == KindForm || v.Kind == KindConfirm) && !slices.Contains(methods, http.MethodPost) {
		return nil, configErrorf(v.Name, "Methods", "%s views must accept POST", v.Kind)
	}

	return methods, nil
}

func (e *entry[T]) parsePath(name, path string, requiresObject bool) error {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return configErrorf(name, "Path", "must not be empty")
	}

	segments := strings.Split(trimmed, "/")
	keys := make([]string, 0, len(segments))
	placeholders := 0
	for _, seg := range segments {
		switch {
		case seg == "":
			return configErrorf(name, "Path", "empty segment in %q", path)
		case strings.HasPrefix(seg, "*"):
			return configErrorf(name, "Path", "wildcard segments are not supported in %q", path)
		case strings.HasPrefix(seg, ":"):
			placeholders++
			e.param = seg[1:]
			if !viewNamePattern.MatchString(e.param) {
				return configErrorf(name, "Path", "invalid placeholder %q", seg)
			}
			keys = append(keys, ":")
		default:
			if !segmentPattern.MatchString(seg) {
				return configErrorf(name, "Path", "invalid segment %q", seg)
			}
			if slices.Contains(reservedSegments, seg) {
				return configErrorf(name, "Path", "segment %q is reserved by the host", seg)
			}
			keys = append(keys, seg)
		}
	}

	switch {
	case requiresObject && placeholders != 1:
		return configErrorf(name, "Path", "object views need exactly one identifier placeholder, %q has %d", path, placeholders)
	case !requiresObject && placeholders != 0:
		return configErrorf(name, "Path", "%q has a placeholder but the view does not require an object", path)
	}
	e.key = strings.Join(keys, "/")

	return nil
}

// Humanize turns a snake case name into a label: "mark_paid" becomes
// "Mark paid".
func Humanize(name string) string {
	s := strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if s == "" {
		return ""
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
