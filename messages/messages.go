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

// Package messages provides one-shot user messages that survive a redirect.
//
// Messages are stored client side in a cookie holding base64 encoded JSON.
// A message is queued while handling one request and read, then cleared,
// while rendering the next page.
//
// The cookie is not signed. Message text must never carry data the user
// is not allowed to see or that drives authorization.
//
// Example:
//
//	q := messages.NewCookieQueue()
//
//	// in a POST handler
//	q.Add(w, r, messages.LevelSuccess, "Article approved.")
//	http.Redirect(w, r, "/admin/blog/article/42", http.StatusFound)
//
//	// in the next GET handler
//	for _, m := range q.Pop(w, r) {
//	    fmt.Println(m.Level, m.Text)
//	}
package messages

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultCookieName is the cookie used when no name is configured.
const DefaultCookieName = "admin_messages"

// DefaultMaxCookieSize bounds the encoded cookie value. Browsers drop
// cookies larger than about 4 KB, name and attributes included.
const DefaultMaxCookieSize = 3800

// Level classifies a message for presentation.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelSuccess, LevelInfo, LevelWarning, LevelError:
		return true
	default:
		return false
	}
}

// Message is one queued message.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Option configures a [CookieQueue].
type Option func(*CookieQueue)

// WithCookieName sets the cookie name.
func WithCookieName(name string) Option {
	return func(q *CookieQueue) {
		q.name = name
	}
}

// WithPath sets the cookie path. Defaults to "/".
func WithPath(path string) Option {
	return func(q *CookieQueue) {
		q.path = path
	}
}

// WithSecure forces the Secure attribute. Without it the attribute follows
// whether the request arrived over TLS.
func WithSecure(secure bool) Option {
	return func(q *CookieQueue) {
		q.secure = secure
	}
}

// WithMaxMessages bounds the queue. The oldest messages are dropped first.
func WithMaxMessages(n int) Option {
	return func(q *CookieQueue) {
		if n > 0 {
			q.max = n
		}
	}
}

// WithMaxCookieSize bounds the encoded cookie value in bytes. The oldest
// messages are dropped until the queue fits.
func WithMaxCookieSize(n int) Option {
	return func(q *CookieQueue) {
		if n > 0 {
			q.maxSize = n
		}
	}
}

// CookieQueue is a cookie-backed message queue. It holds no state of its own
// and is safe for concurrent use.
type CookieQueue struct {
	name   string
	path   string
	secure  bool
	max     int
	maxSize int
}

// NewCookieQueue creates a queue with the given options.
func NewCookieQueue(opts ...Option) *CookieQueue {
	q := &CookieQueue{
		name:    DefaultCookieName,
		path:    "/",
		max:     8,
		maxSize: DefaultMaxCookieSize,
	}
	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Add queues a message for the next page render. Messages already pending on
// the request, or added earlier while handling it, are kept. Empty text and
// unknown levels are ignored. When the encoded queue outgrows the cookie size
// limit the oldest messages are dropped; a message too large to fit on its
// own is discarded.
func (q *CookieQueue) Add(w http.ResponseWriter, r *http.Request, level Level, text string) {
	if w == nil {
		return
	}
	msg, ok := normalize(Message{Level: level, Text: text})
	if !ok {
		return
	}

	pending, fromResponse := q.written(w)
	if !fromResponse {
		pending = q.Peek(r)
	}
	pending = append(pending, msg)
	if len(pending) > q.max {
		pending = pending[len(pending)-q.max:]
	}

	value, ok := q.encode(pending)
	if !ok {
		return
	}
	q.dropWritten(w)
	http.SetCookie(w, q.cookie(r, value, 0))
}

// encode trims pending from the front until its encoding fits maxSize.
func (q *CookieQueue) encode(pending []Message) (string, bool) {
	for len(pending) > 0 {
		payload, err := json.Marshal(pending)
		if err != nil {
			return "", false
		}
		if value := base64.RawURLEncoding.EncodeToString(payload); len(value) <= q.maxSize {
			return value, true
		}
		pending = pending[1:]
	}

	return "", false
}

// Peek returns the messages pending on the request without clearing them.
func (q *CookieQueue) Peek(r *http.Request) []Message {
	if r == nil {
		return nil
	}
	c, err := r.Cookie(q.name)
	if err != nil {
		return nil
	}

	return decode(c.Value)
}

// Pop returns the pending messages and clears the cookie.
func (q *CookieQueue) Pop(w http.ResponseWriter, r *http.Request) []Message {
	msgs := q.Peek(r)
	if len(msgs) > 0 && w != nil {
		http.SetCookie(w, q.cookie(r, "", -1))
	}

	return msgs
}

func (q *CookieQueue) cookie(r *http.Request, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     q.name,
		Value:    value,
		Path:     q.path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   q.secure || (r != nil && r.TLS != nil),
		SameSite: http.SameSiteLaxMode,
	}
}

// written returns the messages this queue already set on w. A cleared
// cookie counts as an empty queue.
func (q *CookieQueue) written(w http.ResponseWriter) ([]Message, bool) {
	for _, line := range w.Header().Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil || c.Name != q.name {
			continue
		}
		if c.MaxAge < 0 {
			return nil, true
		}

		return decode(c.Value), true
	}

	return nil, false
}

func (q *CookieQueue) dropWritten(w http.ResponseWriter) {
	lines := w.Header().Values("Set-Cookie")
	if len(lines) == 0 {
		return
	}
	kept := lines[:0:0]
	for _, line := range lines {
		if c, err := http.ParseSetCookie(line); err == nil && c.Name == q.name {
			continue
		}
		kept = append(kept, line)
	}
	w.Header().Del("Set-Cookie")
	for _, line := range kept {
		w.Header().Add("Set-Cookie", line)
	}
}

func decode(raw string) []Message {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}

	out := msgs[:0]
	for _, m := range msgs {
		if n, ok := normalize(m); ok {
			out = append(out, n)
		}
	}

	return out
}

func normalize(m Message) (Message, bool) {
	m.Text = strings.TrimSpace(m.Text)
	m.Level = Level(strings.ToLower(strings.TrimSpace(string(m.Level))))
	if m.Text == "" || !m.Level.Valid() {
		return Message{}, false
	}

	return m, true
}
