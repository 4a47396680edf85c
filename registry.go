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

// ViewSet is one level of a resource handler's view declarations.
//
// A ViewSet may inherit from parent sets. The registry walks the most-derived
// set first and then its parents depth-first, left to right, so a derived
// declaration overrides a parent declaration with the same path or name.
//
// Example:
//
//	base := admin.NewViewSet(approve, history)
//	articles := base.Extend(publish) // publish, approve, history
type ViewSet[T any] struct {
	views   []View[T]
	parents []*ViewSet[T]
}

// NewViewSet creates a base level holding views in declaration order.
func NewViewSet[T any](views ...View[T]) *ViewSet[T] {
	return &ViewSet[T]{views: views}
}

// Inherit creates a level deriving from every parent, in order.
func Inherit[T any](parents []*ViewSet[T], views ...View[T]) *ViewSet[T] {
	return &ViewSet[T]{views: views, parents: parents}
}

// Extend creates a level deriving from s.
func (s *ViewSet[T]) Extend(views ...View[T]) *ViewSet[T] {
	return Inherit([]*ViewSet[T]{s}, views...)
}

// Views returns a copy of the declarations made at this level only.
func (s *ViewSet[T]) Views() []View[T] {
	out := make([]View[T], len(s.views))
	copy(out, s.views)

	return out
}

// Registry is the ordered, deduplicated list of a resource's declarations.
// It is read-only once built and safe for concurrent use.
type Registry[T any] struct {
	entries []*entry[T]
	byName  map[string]*entry[T]
}

// NewRegistry normalizes and collects the declarations of set and its
// parents. Declaration order is preserved, so the result is identical for
// identical input.
//
// It returns a [*ConfigurationError] for an invalid declaration or for two
// declarations of the same level sharing a path or a name.
func NewRegistry[T any](set *ViewSet[T]) (*Registry[T], error) {
	reg := &Registry[T]{byName: make(map[string]*entry[T])}
	if set == nil {
		return reg, nil
	}

	byKey := make(map[string]bool)
	visited := make(map[*ViewSet[T]]bool)

	var walk func(s *ViewSet[T]) error
	walk = func(s *ViewSet[T]) error {
		if s == nil || visited[s] {
			return nil
		}
		visited[s] = true

		levelKeys := make(map[string]string, len(s.views))
		levelNames := make(map[string]bool, len(s.views))
		var winners []*entry[T]
		for _, v := range s.views {
			e, err := normalize(v)
			if err != nil {
				return err
			}
			if other, dup := levelKeys[e.key]; dup {
				return configErrorf(e.Name, "Path", "%q is already declared by view %q", e.Path, other)
			}
			if levelNames[e.Name] {
				return configErrorf(e.Name, "Name", "declared twice")
			}
			levelKeys[e.key] = e.Name
			levelNames[e.Name] = true

			if byKey[e.key] || reg.byName[e.Name] != nil {
				continue
			}
			winners = append(winners, e)
		}
		// Register after the whole level is checked so siblings never shadow
		// each other.
		for _, e := range winners {
			byKey[e.key] = true
			reg.byName[e.Name] = e
			reg.entries = append(reg.entries, e)
		}

		for _, p := range s.parents {
			if err := walk(p); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk(set); err != nil {
		return nil, err
	}

	return reg, nil
}

// Views returns the effective declarations, with defaults applied, in
// registry order.
func (r *Registry[T]) Views() []View[T] {
	out := make([]View[T], len(r.entries))
	for i, e := range r.entries {
		out[i] = e.View
	}

	return out
}

// Lookup returns the effective declaration named name.
func (r *Registry[T]) Lookup(name string) (View[T], bool) {
	e, ok := r.byName[name]
	if !ok {
		return View[T]{}, false
	}

	return e.View, true
}

// Len returns the number of effective declarations.
func (r *Registry[T]) Len() int {
	return len(r.entries)
}
