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

// Package admin adds custom views to the resource handlers of an admin site.
//
// A host admin already serves the standard screens of a resource: the change
// list, the add and change forms, delete and history. This package lets a
// resource declare extra screens next to them, such as an "approve" form or a
// "publish" action, and turns each declaration into a routed, permission
// checked handler. It also builds the buttons ("object tools") linking to
// those views from the host's pages.
//
// # Declaring views
//
// A [View] is declared once, with a [Kind] picking the shape of its response:
//
//   - KindList renders a list template
//   - KindForm renders a form and runs the handler on a valid submission
//   - KindMessage runs the handler, queues a message and redirects
//   - KindJSON writes the {ok, data, errors} [Envelope]
//   - KindConfirm asks for confirmation before running the handler
//   - KindRedirect runs the handler and redirects where it says
//
// Example:
//
//	approve := admin.View[Article]{
//	    Name:           "approve",
//	    Kind:           admin.KindForm,
//	    Permission:     "can_approve",
//	    RequiresObject: true,
//	    Form:           admin.FormOf(func(a Article) ApproveForm { return ApproveForm{Note: a.Note} }),
//	    Handler: func(req *admin.Request[Article]) (admin.Result, error) {
//	        form, _ := admin.FormValue[ApproveForm](req)
//	        return admin.Done("Approved."), store.Approve(req.Context(), req.ObjectID, form.Note)
//	    },
//	}
//
// # Registries and inheritance
//
// Declarations are grouped in a [ViewSet]. A set may extend parent sets; the
// resulting [Registry] lists the most-derived declarations first and lets a
// derived declaration replace a parent one with the same path or name.
//
//	base := admin.NewViewSet(history)
//	articles := base.Extend(approve, publish)
//
// # Mounting
//
// A [Site] carries the host collaborators shared by every resource: the
// [Authorizer], the current-user lookup, the [Renderer], the message queue
// and the error handler. A [Resource] binds a view set to a model and
// produces its URL table.
//
//	site := admin.MustNewSite(admin.WithAuthorizer(perms), admin.WithUserFunc(currentUser))
//	articles := admin.MustNewResource(site, admin.ResourceConfig[Article]{
//	    AppLabel:  "blog",
//	    ModelName: "article",
//	    Objects:   store,
//	    Views:     articleViews,
//	})
//
//	r := router.MustNew()
//	site.Mount(r, articles)
//
// # Dispatch
//
// Every generated handler checks the declared permission first, then resolves
// the object, binds the form, calls the handler and shapes its [Result]. A
// denied request gets 403 and an unknown object 404, both formatted by the
// site's rivaas.dev/errors formatter. Any other error is passed unchanged to
// the site [ErrorHandler].
//
// Each dispatch records an "admin.dispatch" span and the
// "admin.dispatch.count" and "admin.dispatch.duration" metrics through
// OpenTelemetry.
package admin
