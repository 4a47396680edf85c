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
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	riverrors "rivaas.dev/errors"
	"rivaas.dev/router"

	"rivaas.dev/admin/messages"
)

// User is the authenticated principal of a request.
type User interface {
	Username() string
}

// UserFunc extracts the current user from a request. It returns nil for an
// anonymous request.
type UserFunc func(r *http.Request) User

// Authorizer is the host's permission predicate. The core treats it as an
// opaque oracle and never caches its answers.
type Authorizer interface {
	HasPermission(ctx context.Context, user User, codename string) bool
}

// AuthorizerFunc adapts a function to [Authorizer].
type AuthorizerFunc func(ctx context.Context, user User, codename string) bool

// HasPermission calls f.
func (f AuthorizerFunc) HasPermission(ctx context.Context, user User, codename string) bool {
	return f(ctx, user, codename)
}

// Renderer renders a named template with a context. The core supplies the
// context only, never markup.
type Renderer interface {
	Render(w io.Writer, name string, data map[string]any) error
}

// MessageQueue receives user messages. Add is fire-and-forget.
type MessageQueue interface {
	Add(w http.ResponseWriter, r *http.Request, level messages.Level, text string)
}

// MessageReader is implemented by queues that can hand pending messages to
// the page being rendered. [messages.CookieQueue] implements it.
type MessageReader interface {
	Pop(w http.ResponseWriter, r *http.Request) []messages.Message
}

// ErrorHandler receives every error a view method returns that the core does
// not handle itself. The error is passed unchanged.
type ErrorHandler func(c *router.Context, err error)

// Mountable is implemented by every [Resource].
type Mountable interface {
	URLs() []URL
}

// Option configures a [Site].
type Option func(*Site)

// WithTitle sets the site title placed in every template context.
func WithTitle(title string) Option {
	return func(s *Site) {
		s.title = title
	}
}

// WithPrefix sets the URL prefix every resource is mounted under.
// Defaults to "/admin". Use "/" to mount at the root.
func WithPrefix(prefix string) Option {
	return func(s *Site) {
		s.prefix = prefix
	}
}

// WithUserFunc sets how the current user is read from a request.
func WithUserFunc(fn UserFunc) Option {
	return func(s *Site) {
		s.users = fn
	}
}

// WithAuthorizer sets the permission predicate. It is required.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Site) {
		s.authorizer = a
	}
}

// WithRenderer replaces the embedded default templates.
func WithRenderer(r Renderer) Option {
	return func(s *Site) {
		s.renderer = r
	}
}

// WithMessageQueue replaces the default cookie message queue.
func WithMessageQueue(q MessageQueue) Option {
	return func(s *Site) {
		s.messages = q
	}
}

// WithLogger sets the logger. Logging is disabled by default.
//
// Example:
//
//	logger := logging.MustNew(logging.WithJSONHandler())
//	site := admin.MustNewSite(admin.WithLogger(logger.Logger()), ...)
func WithLogger(l *slog.Logger) Option {
	return func(s *Site) {
		s.logger = l
	}
}

// WithErrorFormatter sets the formatter used for the standard denial and
// not-found responses and by the default error handler.
// Defaults to RFC 9457 problem details.
func WithErrorFormatter(f riverrors.Formatter) Option {
	return func(s *Site) {
		s.formatter = f
	}
}

// WithErrorHandler replaces the generic handler for unhandled method errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Site) {
		s.errorHandler = h
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Site) {
		s.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Site) {
		s.meterProvider = mp
	}
}

// Site holds the host collaborators shared by every resource: user lookup,
// permission predicate, rendering, messages, error handling and telemetry.
// It is immutable after [NewSite] and safe for concurrent use.
type Site struct {
	title  string
	prefix string

	users        UserFunc
	authorizer   Authorizer
	renderer     Renderer
	messages     MessageQueue
	logger       *slog.Logger
	formatter    riverrors.Formatter
	errorHandler ErrorHandler

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	telemetry      *telemetry
}

// NewSite creates a site. It returns a [*ConfigurationError] when no
// authorizer is configured or the prefix is malformed.
//
// Example:
//
//	site, err := admin.NewSite(
//	    admin.WithTitle("Newsroom"),
//	    admin.WithAuthorizer(perms),
//	    admin.WithUserFunc(currentUser),
//	)
func NewSite(opts ...Option) (*Site, error) {
	s := &Site{
		title:  "Administration",
		prefix: "/admin",
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.authorizer == nil {
		return nil, &ConfigurationError{Field: "Authorizer", Message: "is required"}
	}
	if !strings.HasPrefix(s.prefix, "/") {
		return nil, &ConfigurationError{Field: "Prefix", Message: "must start with \"/\", got " + s.prefix}
	}
	s.prefix = strings.TrimRight(s.prefix, "/")

	if s.users == nil {
		s.users = func(*http.Request) User { return nil }
	}
	if s.renderer == nil {
		r, err := NewTemplateRenderer(nil)
		if err != nil {
			return nil, err
		}
		s.renderer = r
	}
	if s.messages == nil {
		s.messages = messages.NewCookieQueue()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.formatter == nil {
		s.formatter = riverrors.NewRFC9457("")
	}
	if s.errorHandler == nil {
		s.errorHandler = s.defaultErrorHandler
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}

	t, err := newTelemetry(s.tracerProvider, s.meterProvider)
	if err != nil {
		return nil, err
	}
	s.telemetry = t

	return s, nil
}

// MustNewSite is like [NewSite] but panics on error.
func MustNewSite(opts ...Option) *Site {
	s, err := NewSite(opts...)
	if err != nil {
		panic(err)
	}

	return s
}

// Prefix returns the normalized URL prefix, without trailing slash.
func (s *Site) Prefix() string {
	return s.prefix
}

// Title returns the site title.
func (s *Site) Title() string {
	return s.title
}

// Logger returns the site logger.
func (s *Site) Logger() *slog.Logger {
	return s.logger
}

// Mount registers the URLs of every resource on r, in order.
func (s *Site) Mount(r *router.Router, resources ...Mountable) {
	for _, res := range resources {
		mountURLs(r, res.URLs())
	}
}

func mountURLs(r *router.Router, urls []URL) {
	for _, u := range urls {
		for _, m := range u.Methods {
			switch m {
			case http.MethodGet:
				r.GET(u.Pattern, u.Handler)
			case http.MethodPost:
				r.POST(u.Pattern, u.Handler)
			}
		}
	}
}

// user returns the current user, or nil.
func (s *Site) user(r *http.Request) User {
	return s.users(r)
}

func (s *Site) has(ctx context.Context, user User, codename string) bool {
	return s.authorizer.HasPermission(ctx, user, codename)
}
