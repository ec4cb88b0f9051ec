package storage

import (
	"errors"
	"fmt"
)

// Kind classifies storage failures. The set is closed: every error returned
// by a Storage implementation maps onto exactly one Kind.
type Kind uint8

const (
	// KindOther covers network, disk and corruption failures.
	KindOther Kind = iota
	KindNotFound
	KindNotAFolder
	KindNotAFile
	KindAlreadyExists
	KindInvalidPath
	// KindInvalidArgument is a caller mistake such as a chunk at the wrong offset.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotAFolder:
		return "not_a_folder"
	case KindNotAFile:
		return "not_a_file"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidPath:
		return "invalid_path"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "other"
	}
}

// Error is the tagged error returned by every Storage method.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage %s %s: %s", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("storage %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on the kind sentinels below.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrNotAFolder:
		return e.Kind == KindNotAFolder
	case ErrNotAFile:
		return e.Kind == KindNotAFile
	case ErrAlreadyExists:
		return e.Kind == KindAlreadyExists
	case ErrInvalidPath:
		return e.Kind == KindInvalidPath
	case ErrInvalidArgument:
		return e.Kind == KindInvalidArgument
	}
	return false
}

var (
	ErrNotFound        = errors.New("storage.not_found")
	ErrNotAFolder      = errors.New("storage.not_a_folder")
	ErrNotAFile        = errors.New("storage.not_a_file")
	ErrAlreadyExists   = errors.New("storage.already_exists")
	ErrInvalidPath     = errors.New("storage.invalid_path")
	ErrInvalidArgument = errors.New("storage.invalid_argument")

	ErrInvalidConfig      = errors.New("storage.invalid_config")
	ErrFailedToLoadConfig = errors.New("storage.failed_to_load_aws_config")
	ErrInvalidListOptions = errors.New("storage.invalid_list_options")
	ErrChunkOffset        = errors.New("storage.chunk_offset_mismatch")
	ErrPartialDelete      = errors.New("storage.partial_delete")
	ErrPaginatorNil       = errors.New("storage.paginator_factory_returned_nil")
)

// KindOf returns the Kind of err, KindOther for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func notFound(op, path string) *Error      { return newError(KindNotFound, op, path, nil) }
func notAFolder(op, path string) *Error    { return newError(KindNotAFolder, op, path, nil) }
func notAFile(op, path string) *Error      { return newError(KindNotAFile, op, path, nil) }
func alreadyExists(op, path string) *Error { return newError(KindAlreadyExists, op, path, nil) }
func invalidArgument(op, path string, err error) *Error {
	return newError(KindInvalidArgument, op, path, err)
}
func other(op, path string, err error) *Error {
	return newError(KindOther, op, path, err)
}
