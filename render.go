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
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"reflect"
	"strings"

	"github.com/muir/reflectutils"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

// TemplateRenderer renders html/template sets. The embedded defaults define
// "admin/change_list.html", "admin/form.html" and "admin/confirm.html", plus
// the "admin/header", "admin/tools" and "admin/footer" partials.
type TemplateRenderer struct {
	set *template.Template
}

// NewTemplateRenderer parses the embedded defaults and then the templates of
// fsys matching patterns ("*.html" when none are given). A template defined
// in fsys replaces the default of the same name. A nil fsys yields the
// defaults only.
//
// Example:
//
//	r, err := admin.NewTemplateRenderer(os.DirFS("templates"), "admin/*.html")
func NewTemplateRenderer(fsys fs.FS, patterns ...string) (*TemplateRenderer, error) {
	set, err := template.New("admin").Funcs(TemplateFuncs()).ParseFS(defaultTemplates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("admin: parse default templates: %w", err)
	}
	if fsys != nil {
		if len(patterns) == 0 {
			patterns = []string{"*.html"}
		}
		if set, err = set.ParseFS(fsys, patterns...); err != nil {
			return nil, fmt.Errorf("admin: parse templates: %w", err)
		}
	}

	return &TemplateRenderer{set: set}, nil
}

// Render implements [Renderer].
func (t *TemplateRenderer) Render(w io.Writer, name string, data map[string]any) error {
	return t.set.ExecuteTemplate(w, name, data)
}

// TemplateFuncs returns the functions available to admin templates:
// "humanize" and "field", which reads a named field of a row.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"humanize": Humanize,
		"field":    FieldValue,
	}
}

// FieldValue returns the display value of the field name on obj. A struct
// field matches by `form` or `json` tag or by Go name. Map keys and methods
// without arguments are accepted too.
func FieldValue(obj any, name string) string {
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return ""
	}
	v := rv
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() >= 1 {
		return formatValue(m.Call(nil)[0])
	}
	if v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String {
		return formatValue(v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key())))
	}
	if v.Kind() != reflect.Struct {
		return ""
	}

	var index []int
	reflectutils.WalkStructElements(v.Type(), func(sf reflect.StructField) bool {
		if index != nil || !sf.IsExported() {
			return false
		}
		for _, tag := range []string{"form", "json"} {
			if tagName, _, _ := strings.Cut(sf.Tag.Get(tag), ","); tagName == name {
				index = sf.Index
				return false
			}
		}
		if sf.Name == name {
			index = sf.Index
			return false
		}

		return sf.Anonymous
	})
	if index == nil {
		return ""
	}
	f, err := v.FieldByIndexErr(index)
	if err != nil {
		return ""
	}

	return formatValue(f)
}
