package files

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// Zip streams the subtree at logical path into w as a zip archive. Folders
// are listed page by page and files are copied one at a time, so memory use
// does not grow with the size of the tree.
func (s *Service) Zip(ctx context.Context, logical string, userID int64, w io.Writer) (err error) {
	defer func() { s.done(ctx, "zip", logical, userID, err) }()

	tp, err := s.resolve(ctx, logical, userID, CapRead)
	if err != nil {
		return err
	}
	root, err := s.store.Info(ctx, tp.PhysicalPath)
	if err != nil {
		return mapStorageError(err)
	}

	zw := zip.NewWriter(w)
	name := zipRootName(tp, root)
	if root.IsFolder {
		err = s.zipFolder(ctx, zw, tp.PhysicalPath, name)
	} else {
		err = s.zipFile(ctx, zw, *root, name)
	}
	if err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("files: finish archive: %w", err)
	}
	return nil
}

func zipRootName(tp *TranslatedPath, root *storage.Entry) string {
	if tp.SubPath != "" {
		return root.Name
	}
	return strings.TrimPrefix(path.Base(tp.DisplayPath), "/")
}

func (s *Service) zipFolder(ctx context.Context, zw *zip.Writer, dir, prefix string) error {
	if _, err := zw.Create(prefix + "/"); err != nil {
		return fmt.Errorf("files: add %s to archive: %w", prefix, err)
	}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.store.List(ctx, dir, storage.ListOptions{
			SortBy:     storage.SortByName,
			Cursor:     cursor,
			LimitAfter: s.cfg.ZipPageSize,
		})
		if err != nil {
			return mapStorageError(err)
		}
		for _, e := range page {
			name := prefix + "/" + e.Name
			if e.IsFolder {
				err = s.zipFolder(ctx, zw, e.Path, name)
			} else {
				err = s.zipFile(ctx, zw, e, name)
			}
			if err != nil {
				return err
			}
		}
		if len(page) < s.cfg.ZipPageSize {
			return nil
		}
		cursor = page[len(page)-1].Path
	}
}

func (s *Service) zipFile(ctx context.Context, zw *zip.Writer, e storage.Entry, name string) error {
	dl, err := s.store.Download(ctx, e.Path, storage.DownloadOptions{Mode: storage.DownloadStream})
	if err != nil {
		return mapStorageError(err)
	}
	if dl.Body == nil {
		return fmt.Errorf("%w: no stream for %s", ErrStorageBackend, e.Path)
	}
	defer dl.Body.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: e.ModTime,
	})
	if err != nil {
		return fmt.Errorf("files: add %s to archive: %w", name, err)
	}
	if _, err := io.Copy(fw, dl.Body); err != nil {
		return fmt.Errorf("files: copy %s into archive: %w", name, err)
	}
	return nil
}
