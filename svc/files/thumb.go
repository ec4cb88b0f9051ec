package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrymomot/teamfiles/pkg/logger"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// SidecarKey is the side-car key of the width x height thumbnail.
func SidecarKey(width, height int) string {
	return fmt.Sprintf("THUMB|%dx%d", width, height)
}

type ThumbRequest struct {
	Path    string
	Width   int
	Height  int
	UserID  int64
	Session string
	// Mode DownloadLocal writes the thumbnail to a temp file (Thumb.LocalPath)
	// instead of returning its bytes.
	Mode storage.DownloadMode
}

// Thumb is either rendered content or a stock image descriptor.
type Thumb struct {
	Content   []byte
	LocalPath string
	MIMEType  string
	Stock     *StockImage
	Source    string // stock, sidecar or generated
}

// Thumb returns a thumbnail of the file at req.Path. Files that cannot be
// rendered get the stock image of their extension category. Rendering runs
// under the critical section of the source file, so concurrent requests for
// the same file do not render it twice.
func (s *Service) Thumb(ctx context.Context, req ThumbRequest) (out *Thumb, err error) {
	defer func() {
		if out != nil {
			s.metrics.observeThumb(out.Source)
		}
		s.done(ctx, "thumb", req.Path, req.UserID, err)
	}()

	if !s.tables.SizeAllowed(req.Width, req.Height) {
		return nil, fmt.Errorf("%w: thumbnail size %dx%d", ErrInvalidArgument, req.Width, req.Height)
	}
	tp, err := s.resolve(ctx, req.Path, req.UserID, CapRead)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.Info(ctx, tp.PhysicalPath)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if entry.IsFolder {
		return nil, fmt.Errorf("%w: %s is a folder", ErrNotFound, req.Path)
	}

	stock := s.stockThumb(entry.Extension)
	if !s.tables.Thumbnailable(entry.Extension) {
		return stock, nil
	}

	guard, err := s.acquire(ctx, "thumb", tp.PhysicalPath, req.Session, s.cfg.ThumbLockTimeout)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, guard)

	th, err := s.renderThumb(ctx, entry, req.Width, req.Height)
	if err != nil {
		s.log.WarnContext(ctx, "thumbnail generation failed, serving stock image",
			logger.Path(tp.PhysicalPath),
			logger.Error(err),
		)
		return stock, nil
	}
	if th == nil {
		return stock, nil
	}
	if req.Mode == storage.DownloadLocal {
		return s.spill(th)
	}
	return th, nil
}

func (s *Service) stockThumb(ext string) *Thumb {
	img := s.tables.Stock(ext)
	return &Thumb{Stock: &img, Source: ThumbSourceStock}
}

// renderThumb returns the cached side-car or renders a new one. A nil Thumb
// with a nil error means the file is not rendered here.
func (s *Service) renderThumb(ctx context.Context, entry *storage.Entry, width, height int) (*Thumb, error) {
	key := SidecarKey(width, height)

	rc, err := s.store.GetSidecar(ctx, entry.ID, key)
	switch {
	case err == nil:
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read side-car: %w", err)
		}
		return &Thumb{Content: b, MIMEType: mimetype.Detect(b).String(), Source: ThumbSourceSidecar}, nil
	case storage.KindOf(err) != storage.KindNotFound:
		return nil, fmt.Errorf("load side-car: %w", err)
	}

	if s.tables.InlineExcluded(entry.Extension) || entry.Size > s.cfg.MaxThumbSourceSize {
		return nil, nil
	}

	src, cleanup, err := s.localCopy(ctx, entry.Path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := os.CreateTemp(s.cfg.TempDir, "thumb-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	dst := out.Name()
	out.Close()
	defer os.Remove(dst)

	if err := s.resize.Resize(ctx, src, dst, width, height); err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}
	if err := s.store.PutSidecar(ctx, entry.ID, key, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("store side-car: %w", err)
	}
	return &Thumb{Content: b, MIMEType: mimetype.Detect(b).String(), Source: ThumbSourceGenerated}, nil
}

// localCopy materialises the file at physical in a local temp file.
func (s *Service) localCopy(ctx context.Context, physical string) (string, func(), error) {
	dl, err := s.store.Download(ctx, physical, storage.DownloadOptions{Mode: storage.DownloadLocal})
	if err != nil {
		return "", nil, err
	}
	if dl.LocalPath != "" {
		return dl.LocalPath, func() { os.Remove(dl.LocalPath) }, nil
	}
	if dl.Body == nil {
		return "", nil, errors.New("backend returned no local content")
	}
	defer dl.Body.Close()

	f, err := os.CreateTemp(s.cfg.TempDir, "thumb-src-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, dl.Body); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("copy source: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

func (s *Service) spill(th *Thumb) (*Thumb, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "thumb-out-*")
	if err != nil {
		return nil, errors.Join(ErrStorageBackend, err)
	}
	if _, err := f.Write(th.Content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.Join(ErrStorageBackend, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, errors.Join(ErrStorageBackend, err)
	}
	out := *th
	out.Content = nil
	out.LocalPath = f.Name()
	return &out, nil
}
