// Package handler provides type-safe HTTP handlers that bind requests to Go
// structs and return typed responses.
//
//	type InfoRequest struct {
//		Path string `query:"path"`
//	}
//
//	func info(ctx handler.Context, req InfoRequest) handler.Response {
//		obj, err := svc.Info(ctx, req.Path, userID(ctx))
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(obj)
//	}
//
//	r.Get("/info", handler.Wrap(info,
//		handler.WithBinders[handler.Context, InfoRequest](binder.Query()),
//	))
//
// # Responses
//
// JSON bodies share one envelope, JSONResponse, carrying either data or an
// error detail. JSONError maps the HTTPError found in the error chain to its
// status code and key; anything else becomes a 500 whose message is the
// status text so internal details never leak.
//
// Stream and Writer send binary bodies such as downloads and archives.
// Redirect sends a temporary redirect, Empty a 204.
//
// # Errors
//
// Binding failures are joined with ErrBadRequest. Render failures and nil
// responses go to the ErrorHandler, which by default writes the JSON error
// envelope. NewErrorHandler additionally logs each error with the request
// id. Once a response has started (see HeaderWritten) error handlers only
// log.
package handler
