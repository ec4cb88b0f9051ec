package files

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/teamfiles/handler"
	"github.com/dmitrymomot/teamfiles/svc/files"
)

var (
	ErrLocked     = handler.NewHTTPError(http.StatusServiceUnavailable, "locked")
	ErrExists     = handler.NewHTTPError(http.StatusConflict, "destination_exists")
	ErrBadPath    = handler.NewHTTPError(http.StatusBadRequest, "invalid_path")
	ErrBadSize    = handler.NewHTTPError(http.StatusBadRequest, "invalid_thumbnail_size")
	ErrNoIdentity = handler.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	ErrTooLarge   = handler.NewHTTPError(http.StatusRequestEntityTooLarge, "chunk_too_large")
)

// lockRetryAfter is the Retry-After value, in seconds, sent with ErrLocked.
const lockRetryAfter = "1"

// httpError joins err with the HTTPError describing its status.
func httpError(err error) error {
	var (
		status   error
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		status = ErrTooLarge
	case errors.Is(err, files.ErrInvalidPathFormat), errors.Is(err, files.ErrInvalidPath):
		status = ErrBadPath
	case errors.Is(err, files.ErrInvalidArgument), errors.Is(err, files.ErrNotAFile):
		status = handler.ErrBadRequest
	case errors.Is(err, files.ErrUnauthorized):
		status = handler.ErrUnauthorized
	case errors.Is(err, files.ErrForbidden):
		status = handler.ErrForbidden
	case errors.Is(err, files.ErrNotFound),
		errors.Is(err, files.ErrTeamNotFound),
		errors.Is(err, files.ErrChannelPathNotFound),
		errors.Is(err, files.ErrChannelNotFound):
		status = handler.ErrNotFound
	case errors.Is(err, files.ErrDestinationExists):
		status = ErrExists
	case errors.Is(err, files.ErrLockAcquisitionTimeout):
		status = ErrLocked
	default:
		return err
	}
	return errors.Join(status, err)
}

// failure hands a service error to the route's error handler.
type failure struct{ err error }

func (f failure) Render(w http.ResponseWriter, _ *http.Request) error {
	err := httpError(f.err)
	if errors.Is(err, ErrLocked) {
		w.Header().Set("Retry-After", lockRetryAfter)
	}
	return err
}

func fail(err error) handler.Response { return failure{err: err} }
