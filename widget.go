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

import "slices"

// Widget selects how a form field referencing another object is rendered.
type Widget string

const (
	// WidgetDefault leaves the choice to the template.
	WidgetDefault Widget = "default"
	// WidgetRawID renders a plain identifier input with a lookup link.
	WidgetRawID Widget = "raw_id"
	// WidgetAutocomplete renders a search-as-you-type select.
	WidgetAutocomplete Widget = "autocomplete"
)

// SelectWidget picks the widget of a field. Raw-id wins over autocomplete
// when a field is listed in both sets.
func SelectWidget(field string, rawID, autocomplete []string) Widget {
	switch {
	case slices.Contains(rawID, field):
		return WidgetRawID
	case slices.Contains(autocomplete, field):
		return WidgetAutocomplete
	default:
		return WidgetDefault
	}
}
