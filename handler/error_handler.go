package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/teamfiles/pkg/logger"
	"github.com/dmitrymomot/teamfiles/pkg/requestid"
)

// NewErrorHandler returns an ErrorHandler that logs every error with the
// request id and responds with the JSON error envelope. Client errors are
// logged at warn level, server errors at error level. Errors that occur
// after the response started are only logged.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("http"))

	return func(ctx Context, err error) {
		r := ctx.Request()
		status := http.StatusInternalServerError
		var httpErr HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
		}
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		log.LogAttrs(r.Context(), level, "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		if HeaderWritten(ctx.ResponseWriter()) {
			return
		}
		if renderErr := JSONError(err).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}
