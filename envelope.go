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
	"net/http"

	riverrors "rivaas.dev/errors"
)

// NonFieldKey collects envelope errors that do not belong to a single field.
const NonFieldKey = "non_field"

// Envelope is the body of every JSON view response.
//
//	{"ok": true,  "data": {...}, "errors": null}
//	{"ok": false, "data": null,  "errors": {"note": ["is required"]}}
type Envelope struct {
	OK     bool                `json:"ok"`
	Data   any                 `json:"data"`
	Errors map[string][]string `json:"errors"`
}

// Success wraps data in a successful envelope.
func Success(data any) Envelope {
	return Envelope{OK: true, Data: data}
}

// EnvelopeFormatter formats errors as failed [Envelope] bodies. It implements
// rivaas.dev/errors.Formatter, so it can also serve as a site-wide formatter.
//
// Validation errors keep their field paths. Other errors with a status below
// 500 are reported under [NonFieldKey] with their message; server errors are
// reported with the generic status text only.
type EnvelopeFormatter struct{}

// Format implements rivaas.dev/errors.Formatter.
func (EnvelopeFormatter) Format(_ *http.Request, err error) riverrors.Response {
	status := http.StatusInternalServerError
	var typed riverrors.ErrorType
	if errors.As(err, &typed) {
		status = typed.HTTPStatus()
	}

	return riverrors.Response{
		Status:      status,
		ContentType: "application/json; charset=utf-8",
		Body:        Envelope{OK: false, Errors: envelopeErrors(err, status)},
	}
}

func envelopeErrors(err error, status int) map[string][]string {
	if verr, ok := asValidation(err); ok && len(verr.Fields) > 0 {
		out := make(map[string][]string, len(verr.Fields))
		for _, f := range verr.Fields {
			key := f.Path
			if key == "" {
				key = NonFieldKey
			}
			out[key] = append(out[key], f.Message)
		}

		return out
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}

	return map[string][]string{NonFieldKey: {msg}}
}
