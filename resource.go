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
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"rivaas.dev/router"
)

// Resolver is the host's object lookup. Get returns an error wrapping
// [ErrNotFound] when no object has the identifier.
type Resolver[T any] interface {
	Get(ctx context.Context, id string) (T, error)
}

// ResolverFunc adapts a function to [Resolver].
type ResolverFunc[T any] func(ctx context.Context, id string) (T, error)

// Get calls f.
func (f ResolverFunc[T]) Get(ctx context.Context, id string) (T, error) {
	return f(ctx, id)
}

// Lister is optionally implemented by a [Resolver] to feed list views.
type Lister[T any] interface {
	List(ctx context.Context) ([]T, error)
}

// ResourceConfig configures one managed resource type.
type ResourceConfig[T any] struct {
	// AppLabel and ModelName form the admin namespace "<app>/<model>" and
	// the permission codenames. Both must be lower snake case.
	AppLabel  string
	ModelName string
	// VerboseName is shown in breadcrumbs. Defaults to the humanized model.
	VerboseName string

	// Views holds the custom view declarations.
	Views *ViewSet[T]
	// Objects resolves path identifiers. Required when a view needs an object.
	Objects Resolver[T]

	// RawIDFields and AutocompleteFields select form widgets by field name.
	RawIDFields        []string
	AutocompleteFields []string

	// ListDisplay, ListFilter and SearchFields are passed to list templates.
	ListDisplay  []string
	ListFilter   []string
	SearchFields []string

	// DetailURL builds the host detail page of an object. Defaults to
	// "<prefix>/<app>/<model>/<id>/change".
	DetailURL func(id string) string
}

// URL is one route of a resource.
type URL struct {
	// Pattern is the full router pattern, e.g. "/admin/blog/article/:id/approve".
	Pattern string
	// Methods are the accepted HTTP methods.
	Methods []string
	// Name is "<app>_<model>_<view>".
	Name string
	// Handler is the dispatchable view.
	Handler router.HandlerFunc
}

// Tool is one button on the change form or the change list.
type Tool struct {
	Name                string
	URL                 string
	Label               string
	Icon                string
	PermissionSatisfied bool
}

var labelPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Resource is the admin handler of one resource type. It owns its registry
// and the dispatchable views generated from it. A Resource is immutable after
// [NewResource] and safe for concurrent use.
type Resource[T any] struct {
	site *Site
	cfg  ResourceConfig[T]
	reg  *Registry[T]
	base string

	urlsOnce sync.Once
	urls     []URL
}

// NewResource validates cfg and builds the resource's registry.
// Every declaration problem is reported here as a [*ConfigurationError].
//
// Example:
//
//	articles, err := admin.NewResource(site, admin.ResourceConfig[Article]{
//	    AppLabel:  "blog",
//	    ModelName: "article",
//	    Objects:   store,
//	    Views:     admin.NewViewSet(approveView, publishView),
//	})
func NewResource[T any](site *Site, cfg ResourceConfig[T]) (*Resource[T], error) {
	label := cfg.AppLabel + "." + cfg.ModelName
	if site == nil {
		return nil, &ConfigurationError{Resource: label, Field: "Site", Message: "is required"}
	}
	if !labelPattern.MatchString(cfg.AppLabel) {
		return nil, &ConfigurationError{Resource: label, Field: "AppLabel", Message: "must be lower snake case"}
	}
	if !labelPattern.MatchString(cfg.ModelName) {
		return nil, &ConfigurationError{Resource: label, Field: "ModelName", Message: "must be lower snake case"}
	}

	reg, err := NewRegistry(cfg.Views)
	if err != nil {
		var cerr *ConfigurationError
		if errors.As(err, &cerr) {
			cerr.Resource = label
		}
		return nil, err
	}
	if cfg.Objects == nil {
		for _, e := range reg.entries {
			if e.RequiresObject {
				return nil, &ConfigurationError{
					Resource: label, View: e.Name, Field: "Objects",
					Message: "a resolver is required by views that need an object",
				}
			}
		}
	}
	if cfg.VerboseName == "" {
		cfg.VerboseName = Humanize(cfg.ModelName)
	}

	return &Resource[T]{
		site: site,
		cfg:  cfg,
		reg:  reg,
		base: site.prefix + "/" + cfg.AppLabel + "/" + cfg.ModelName,
	}, nil
}

// MustNewResource is like [NewResource] but panics on error. It suits
// package-level resource definitions, where a bad declaration must stop
// the process at startup.
func MustNewResource[T any](site *Site, cfg ResourceConfig[T]) *Resource[T] {
	res, err := NewResource(site, cfg)
	if err != nil {
		panic(err)
	}

	return res
}

// Label returns "<app>.<model>".
func (res *Resource[T]) Label() string {
	return res.cfg.AppLabel + "." + res.cfg.ModelName
}

// Registry returns the resource's declaration registry.
func (res *Resource[T]) Registry() *Registry[T] {
	return res.reg
}

// Site returns the site the resource belongs to.
func (res *Resource[T]) Site() *Site {
	return res.site
}

// URLs returns one entry per declaration, in registry order. The list is
// built on first use and cached for the life of the resource.
func (res *Resource[T]) URLs() []URL {
	res.urlsOnce.Do(func() {
		res.urls = make([]URL, 0, len(res.reg.entries))
		for _, e := range res.reg.entries {
			res.urls = append(res.urls, URL{
				Pattern: res.base + "/" + e.Path,
				Methods: e.Methods,
				Name:    res.urlName(e.Name),
				Handler: res.handler(e),
			})
		}
	})

	return res.urls
}

// Mount registers every URL of the resource on r.
func (res *Resource[T]) Mount(r *router.Router) {
	mountURLs(r, res.URLs())
}

func (res *Resource[T]) urlName(view string) string {
	return res.cfg.AppLabel + "_" + res.cfg.ModelName + "_" + view
}

// Reverse returns the path of the view named name, accepting the short
// view name or the full URL name. objectID fills the identifier placeholder
// and is ignored by views without one.
func (res *Resource[T]) Reverse(name, objectID string) (string, bool) {
	name = strings.TrimPrefix(name, res.cfg.AppLabel+"_"+res.cfg.ModelName+"_")
	e, ok := res.reg.byName[name]
	if !ok {
		return "", false
	}

	return res.path(e, objectID), true
}

func (res *Resource[T]) path(e *entry[T], objectID string) string {
	if !e.RequiresObject {
		return res.base + "/" + e.Path
	}
	segments := strings.Split(e.Path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			segments[i] = url.PathEscape(objectID)
		}
	}

	return res.base + "/" + strings.Join(segments, "/")
}

// ChangelistURL returns the host list page of the resource.
func (res *Resource[T]) ChangelistURL() string {
	return res.base
}

// DetailURL returns the host detail page of the object objectID.
func (res *Resource[T]) DetailURL(objectID string) string {
	if res.cfg.DetailURL != nil {
		return res.cfg.DetailURL(objectID)
	}

	return res.base + "/" + url.PathEscape(objectID) + "/change"
}

// ObjectTools returns the tools of the change form of objectID: every object
// view not hidden from tools, in registry order. A tool the current user may
// not use is returned with PermissionSatisfied false so the page layout stays
// the same for every user.
func (res *Resource[T]) ObjectTools(r *http.Request, objectID string) []Tool {
	return res.tools(r, true, objectID)
}

// ListTools returns the tools of the change list: every view without an
// object not hidden from tools, in registry order, disabled like
// [Resource.ObjectTools].
func (res *Resource[T]) ListTools(r *http.Request) []Tool {
	return res.tools(r, false, "")
}

// ChangeFormContext returns the context the host change form of objectID
// merges into its own.
func (res *Resource[T]) ChangeFormContext(r *http.Request, objectID string) map[string]any {
	return map[string]any{"object_tools": res.ObjectTools(r, objectID)}
}

func (res *Resource[T]) tools(r *http.Request, object bool, objectID string) []Tool {
	user := res.site.user(r)
	var tools []Tool
	for _, e := range res.reg.entries {
		if e.HideFromTools || e.RequiresObject != object {
			continue
		}
		tools = append(tools, Tool{
			Name:                res.urlName(e.Name),
			URL:                 res.path(e, objectID),
			Label:               e.Label,
			Icon:                e.Icon,
			PermissionSatisfied: res.allowed(r.Context(), user, e.Permission),
		})
	}

	return tools
}

// Codename maps a permission name to the codename handed to the
// [Authorizer]: "change" becomes "<app>.change_<model>", a custom name
// becomes "<app>.<name>" and a dotted name is kept as is.
func (res *Resource[T]) Codename(permission string) string {
	switch permission {
	case PermissionView, PermissionChange, PermissionDelete, PermissionAdd:
		return res.cfg.AppLabel + "." + permission + "_" + res.cfg.ModelName
	}
	if strings.Contains(permission, ".") {
		return permission
	}

	return res.cfg.AppLabel + "." + permission
}

// allowed evaluates permission for user. The view level also admits users
// holding the change permission.
func (res *Resource[T]) allowed(ctx context.Context, user User, permission string) bool {
	if permission == "" {
		permission = PermissionView
	}
	if res.site.has(ctx, user, res.Codename(permission)) {
		return true
	}

	return permission == PermissionView && res.site.has(ctx, user, res.Codename(PermissionChange))
}
