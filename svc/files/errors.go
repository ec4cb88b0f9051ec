package files

import (
	"errors"

	"github.com/dmitrymomot/teamfiles/pkg/lock"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

var (
	ErrInvalidPathFormat      = errors.New("files: invalid path format")
	ErrTeamNotFound           = errors.New("files: team not found")
	ErrChannelPathNotFound    = errors.New("files: channel path not found")
	ErrChannelNotFound        = errors.New("files: channel not found")
	ErrUnauthorized           = errors.New("files: unauthorized")
	ErrForbidden              = errors.New("files: forbidden")
	ErrNotFound               = errors.New("files: not found")
	ErrNotAFile               = errors.New("files: not a file")
	ErrDestinationExists      = errors.New("files: destination already exists")
	ErrInvalidPath            = errors.New("files: invalid path")
	ErrInvalidArgument        = errors.New("files: invalid argument")
	ErrStorageBackend         = errors.New("files: storage backend failure")
	ErrLockAcquisitionTimeout = errors.New("files: failed to acquire lock")
	ErrStructuralViolation    = errors.New("files: structural violation")
	ErrInvalidTables          = errors.New("files: invalid classification tables")
)

// mapStorageError converts a backend error into the package taxonomy. The
// backend error stays in the chain for logging but callers only need the
// package sentinels.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	switch storage.KindOf(err) {
	case storage.KindNotFound, storage.KindNotAFolder:
		return errors.Join(ErrNotFound, err)
	case storage.KindNotAFile:
		return errors.Join(ErrNotAFile, err)
	case storage.KindAlreadyExists:
		return errors.Join(ErrDestinationExists, err)
	case storage.KindInvalidPath:
		return errors.Join(ErrInvalidPath, err)
	case storage.KindInvalidArgument:
		return errors.Join(ErrInvalidArgument, err)
	default:
		return errors.Join(ErrStorageBackend, err)
	}
}

func mapLockError(err error) error {
	if errors.Is(err, lock.ErrTimeout) {
		return errors.Join(ErrLockAcquisitionTimeout, err)
	}
	return err
}

// isBackendFailure reports whether err should be logged at error level.
func isBackendFailure(err error) bool {
	return errors.Is(err, ErrStorageBackend) || errors.Is(err, ErrStructuralViolation)
}
