package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("binder: unsupported media type")
	ErrMissingContentType   = errors.New("binder: missing content type")
	ErrFailedToParseJSON    = errors.New("binder: malformed JSON body")
	ErrFailedToParseQuery   = errors.New("binder: malformed query parameters")
	ErrFailedToParsePath    = errors.New("binder: malformed path parameters")

	// ErrBinderNotApplicable is returned by binders that have nothing to
	// bind for the request. handler.Wrap skips them.
	ErrBinderNotApplicable = errors.New("binder: not applicable")
)
