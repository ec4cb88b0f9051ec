package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// stager assembles chunked uploads on local disk. Each (path, session) pair
// gets its own staging file so concurrent sessions never interleave bytes.
type stager struct {
	dir string
}

func newStager(dir string) (*stager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &stager{dir: dir}, nil
}

func (s *stager) file(p, session string) string {
	sum := sha256.Sum256([]byte(p + "|" + session))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:]))
}

// write appends the chunk and returns the staging file and its new size.
func (s *stager) write(ctx context.Context, in UploadInput) (string, int64, error) {
	name := s.file(in.Path, in.Session)

	flags := os.O_WRONLY | os.O_CREATE
	if in.Offset == 0 {
		flags |= os.O_TRUNC
	} else {
		fi, err := os.Stat(name)
		if err != nil || fi.Size() != in.Offset {
			return "", 0, invalidArgument("upload", in.Path, ErrChunkOffset)
		}
		flags |= os.O_APPEND
	}

	f, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		return "", 0, other("upload", in.Path, err)
	}

	var n int64
	if in.Body != nil {
		n, err = copyWithContext(ctx, f, in.Body)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(name)
		return "", 0, other("upload", in.Path, err)
	}

	return name, in.Offset + n, nil
}

func (s *stager) discard(p, session string) {
	_ = os.Remove(s.file(p, session))
}

// copyWithContext copies in 32KB steps, checking ctx between steps so large
// transfers can be abandoned early.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var written int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
