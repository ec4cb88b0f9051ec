// Package binder binds HTTP request data to Go structs.
//
// Two binders are provided:
//
//   - Query(): URL query parameters, using `query:"name"` struct tags
//   - JSON(): strict JSON request bodies, using `json:"name"` struct tags
//
// Binders are plain functions and are applied in order by handler.Wrap:
//
//	type MoveRequest struct {
//	    From string `json:"from"`
//	    To   string `json:"to"`
//	}
//
//	r.Post("/move", handler.Wrap(moveHandler,
//	    handler.WithBinders[handler.Context, MoveRequest](binder.JSON()),
//	))
//
// A binder that finds nothing to bind returns ErrBinderNotApplicable, so a
// JSON binder can be combined with Query() on endpoints that accept either.
//
// Query fields may be basic types, pointers to them for optional values,
// or slices for repeated and comma-separated parameters. Untagged fields
// bind to their lower-cased name; `query:"-"` skips a field.
package binder
