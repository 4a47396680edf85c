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
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/muir/reflectutils"

	"rivaas.dev/binding"
	"rivaas.dev/validation"
)

// FormFactory builds the form of a form view. Create one with [ModelForm]
// or [FormOf].
//
// Form fields are the struct fields carrying a `form` tag. The optional
// `label` tag sets the field label, and a `validate:"required"` rule marks
// the field as required. Use the same name in the `form` and `json` tags so
// validation errors land on the right field.
type FormFactory[T any] struct {
	typ     reflect.Type
	allowed []string
	initial func(obj T) any
	specs   []fieldSpec
}

// ModelForm edits a copy of the resource object itself. With no field names
// every `form` tagged field of T is editable.
//
// Example:
//
//	Form: admin.ModelForm[Article]("title", "note")
func ModelForm[T any](fields ...string) *FormFactory[T] {
	return &FormFactory[T]{
		typ:     reflect.TypeFor[T](),
		allowed: fields,
		initial: func(obj T) any {
			c := obj
			return &c
		},
	}
}

// FormOf uses a dedicated form struct F whose initial value is derived from
// the object. initial may be nil; views without an object receive the zero
// value of T.
//
// Example:
//
//	Form: admin.FormOf(func(a Article) ApproveForm {
//	    return ApproveForm{Note: a.Note}
//	})
func FormOf[T, F any](initial func(obj T) F, fields ...string) *FormFactory[T] {
	return &FormFactory[T]{
		typ:     reflect.TypeFor[F](),
		allowed: fields,
		initial: func(obj T) any {
			var v F
			if initial != nil {
				v = initial(obj)
			}
			return &v
		},
	}
}

type fieldSpec struct {
	name     string
	goName   string
	jsonName string
	label    string
	input    string
	kind     reflect.Kind
	required bool
	index    []int
}

// check validates the form type and caches its field specs.
func (f *FormFactory[T]) check() error {
	if f.typ == nil || f.typ.Kind() != reflect.Struct {
		return fmt.Errorf("form data must be a struct, got %s", reflectutils.TypeName(f.typ))
	}

	specs := discoverFields(f.typ)
	if len(specs) == 0 {
		return fmt.Errorf("%s has no form tagged fields", reflectutils.TypeName(f.typ))
	}
	if len(f.allowed) > 0 {
		kept := make([]fieldSpec, 0, len(f.allowed))
		for _, name := range f.allowed {
			i := slices.IndexFunc(specs, func(s fieldSpec) bool { return s.name == name })
			if i < 0 {
				return fmt.Errorf("%s has no form field %q", reflectutils.TypeName(f.typ), name)
			}
			kept = append(kept, specs[i])
		}
		specs = kept
	}
	f.specs = specs

	return nil
}

func discoverFields(t reflect.Type) []fieldSpec {
	var specs []fieldSpec
	reflectutils.WalkStructElements(t, func(sf reflect.StructField) bool {
		if !sf.IsExported() {
			return false
		}
		tag, ok := sf.Tag.Lookup("form")
		if !ok {
			return sf.Anonymous
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return false
		}
		if name == "" {
			name = sf.Name
		}

		jsonName, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if jsonName == "" || jsonName == "-" {
			jsonName = sf.Name
		}
		label := sf.Tag.Get("label")
		if label == "" {
			label = Humanize(name)
		}

		specs = append(specs, fieldSpec{
			name:     name,
			goName:   sf.Name,
			jsonName: jsonName,
			label:    label,
			input:    inputType(sf.Type),
			kind:     sf.Type.Kind(),
			required: hasRule(sf.Tag.Get("validate"), "required"),
			index:    sf.Index,
		})

		return false
	})

	return specs
}

func inputType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool:
		return "checkbox"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return "text"
	}
}

func hasRule(rules, rule string) bool {
	for r := range strings.SplitSeq(rules, ",") {
		if strings.TrimSpace(r) == rule {
			return true
		}
	}

	return false
}

// build returns an unbound form pre-populated from obj.
func (f *FormFactory[T]) build(obj T, rawID, autocomplete []string) *Form {
	data := f.initial(obj)
	form := &Form{Data: data, errs: &validation.Error{}}

	root := reflect.ValueOf(data).Elem()
	for _, s := range f.specs {
		fld := &Field{
			Name:     s.name,
			Label:    s.label,
			Input:    s.input,
			Widget:   SelectWidget(s.name, rawID, autocomplete),
			Required: s.required,
			spec:     s,
		}
		if v, err := root.FieldByIndexErr(s.index); err == nil {
			fld.setValue(formatValue(v))
		}
		form.Fields = append(form.Fields, fld)
	}

	return form
}

// Form is the form of one request. Data points at the struct being edited.
type Form struct {
	Data   any
	Fields []*Field

	bound bool
	errs  *validation.Error
}

// Field is one rendered form field.
type Field struct {
	Name     string
	Label    string
	Input    string
	Widget   Widget
	Value    string
	Checked  bool
	Required bool
	Errors   []string

	spec fieldSpec
}

func (f *Field) setValue(v string) {
	f.Value = v
	if f.spec.kind == reflect.Bool {
		f.Checked = v == "true" || v == "on" || v == "1"
	}
}

// Bound reports whether the form received submitted data.
func (f *Form) Bound() bool {
	return f.bound
}

// Valid reports whether the form is bound and has no errors.
func (f *Form) Valid() bool {
	return f.bound && len(f.errs.Fields) == 0
}

// Errors returns every error of the form in the order it was produced.
func (f *Form) Errors() []validation.FieldError {
	return slices.Clone(f.errs.Fields)
}

// Field returns the field named name, or nil.
func (f *Form) Field(name string) *Field {
	for _, fld := range f.Fields {
		if fld.Name == name {
			return fld
		}
	}

	return nil
}

// NonFieldErrors returns the messages of errors not attached to a field.
func (f *Form) NonFieldErrors() []string {
	var out []string
	for _, fe := range f.errs.Fields {
		if f.fieldFor(fe.Path) == nil {
			out = append(out, fe.Message)
		}
	}

	return out
}

func (f *Form) fieldFor(path string) *Field {
	if path == "" {
		return nil
	}
	for _, fld := range f.Fields {
		if fld.spec.jsonName == path || fld.Name == path || fld.spec.goName == path {
			return fld
		}
	}

	return nil
}

// bind binds the submitted values of r to the form and validates the result.
// Fields missing from the submission are cleared first, except checkboxes,
// which read as unchecked. Binding and validation failures are recorded on
// the form; the returned error is reserved for unreadable requests and is a
// 400 [StatusError].
func (f *Form) bind(ctx context.Context, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return &StatusError{Status: http.StatusBadRequest, Err: fmt.Errorf("admin: parse form: %w", err)}
	}
	f.bound = true

	root := reflect.ValueOf(f.Data).Elem()
	values := make(url.Values, len(f.Fields))
	for _, fld := range f.Fields {
		submitted, ok := r.PostForm[fld.Name]
		switch {
		case ok && len(submitted) > 0:
			values[fld.Name] = submitted
			fld.setValue(submitted[0])
		case fld.spec.kind == reflect.Bool:
			// Unchecked checkboxes are not submitted.
			values[fld.Name] = []string{"false"}
			fld.setValue("false")
		default:
			if fv, err := root.FieldByIndexErr(fld.spec.index); err == nil && fv.CanSet() {
				fv.SetZero()
			}
			fld.setValue("")
		}
	}

	var unbound map[string]bool
	if err := binding.FormTo(values, f.Data); err != nil {
		unbound = f.absorbBinding(err)
	}

	if err := validation.Validate(ctx, f.Data); err != nil {
		verr, ok := asValidation(err)
		if !ok {
			return err
		}
		// A field that failed to bind already carries its binding error.
		verr.Fields = slices.DeleteFunc(slices.Clone(verr.Fields), func(fe validation.FieldError) bool {
			return unbound[f.pathFor(fe.Path)]
		})
		f.absorb(verr)
	}

	return nil
}

// absorb attaches validation errors to the form and its fields.
func (f *Form) absorb(verr *validation.Error) {
	for _, fe := range verr.Fields {
		f.errs.Fields = append(f.errs.Fields, fe)
		if fld := f.fieldFor(fe.Path); fld != nil {
			fld.Errors = append(fld.Errors, fe.Message)
		}
	}
}

// absorbBinding records binding failures and returns the paths that failed.
func (f *Form) absorbBinding(err error) map[string]bool {
	var failed []*binding.BindError
	var multi *binding.MultiError
	var single *binding.BindError
	switch {
	case errors.As(err, &multi):
		failed = multi.Errors
	case errors.As(err, &single):
		failed = []*binding.BindError{single}
	}

	verr := &validation.Error{}
	paths := make(map[string]bool, len(failed))
	for _, be := range failed {
		path := f.pathFor(be.Field)
		paths[path] = true
		verr.Fields = append(verr.Fields, validation.FieldError{
			Path:    path,
			Code:    "binding",
			Message: bindMessage(be),
		})
	}
	if len(verr.Fields) == 0 {
		verr.Fields = append(verr.Fields, validation.FieldError{Code: "binding", Message: err.Error()})
	}
	f.absorb(verr)

	return paths
}

func (f *Form) pathFor(goName string) string {
	if fld := f.fieldFor(goName); fld != nil {
		return fld.spec.jsonName
	}

	return goName
}

func bindMessage(be *binding.BindError) string {
	if be.Reason != "" {
		return be.Reason
	}

	return "invalid value"
}

func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct && v.IsZero() {
		return ""
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}

	return fmt.Sprint(v.Interface())
}

// asValidation extracts a validation error returned by pointer or by value.
func asValidation(err error) (*validation.Error, bool) {
	var ptr *validation.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr, true
	}
	var val validation.Error
	if errors.As(err, &val) {
		return &val, true
	}

	return nil, false
}

// FormValue returns the form data of req as *F.
//
// Example:
//
//	note, ok := admin.FormValue[ApproveForm](req)
func FormValue[F, T any](req *Request[T]) (*F, bool) {
	if req.Form == nil {
		return nil, false
	}
	v, ok := req.Form.Data.(*F)

	return v, ok
}
