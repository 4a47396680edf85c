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
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"

	riverrors "rivaas.dev/errors"
	"rivaas.dev/router"
)

// render executes the view template into a buffer and writes it with status.
// A template failure is an unhandled error; nothing is written before it.
func (d *dispatch[T]) render(status int, data map[string]any) outcome {
	var buf bytes.Buffer
	if err := d.res.site.renderer.Render(&buf, d.e.Template, data); err != nil {
		return d.fail(err)
	}

	w := d.c.Response
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		d.res.site.logger.ErrorContext(d.r.Context(), "failed to write HTML response", "error", err)
	}

	return outcomeRendered
}

func (d *dispatch[T]) redirectTo(location string) outcome {
	d.c.Redirect(http.StatusFound, location)
	return outcomeRedirected
}

// standard writes a denial or not-found response through the site formatter.
func (d *dispatch[T]) standard(err *StatusError) {
	d.write(d.res.site.formatter.Format(d.r, err))
}

// fail hands err, unchanged, to the site error handler.
func (d *dispatch[T]) fail(err error) outcome {
	d.err = err
	d.res.site.errorHandler(d.c, err)

	return outcomeError
}

func (d *dispatch[T]) write(resp riverrors.Response) {
	writeResponse(d.c.Response, resp, d.res.site)
}

func writeResponse(w http.ResponseWriter, resp riverrors.Response, s *Site) {
	body, err := json.Marshal(resp.Body)
	if err != nil {
		s.logger.Error("failed to encode error response", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	for key, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.Status)
	if _, err := w.Write(body); err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}

// defaultErrorHandler logs err and writes the formatted error response.
func (s *Site) defaultErrorHandler(c *router.Context, err error) {
	resp := s.formatter.Format(c.Request, err)
	s.logger.ErrorContext(c.Request.Context(), "admin view failed",
		"error", err,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", resp.Status,
	)
	writeResponse(c.Response, resp, s)
}

// safeReferer returns the path of the Referer header when it points at the
// same host, or "".
func safeReferer(r *http.Request) string {
	ref := r.Referer()
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Host != "" && u.Host != r.Host {
		return ""
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Path == "" || u.Path[0] != '/' {
		return ""
	}

	return u.RequestURI()
}
