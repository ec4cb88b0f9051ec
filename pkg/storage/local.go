package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// CurrentVersion identifies the live content of a file in Versions output.
const CurrentVersion = "current"

// LocalStorage implements Storage on the local filesystem.
//
// Layout under baseDir:
//
//	data/       the namespace itself, physical paths map 1:1
//	.meta/versions/<physical path>/<unix nano>   superseded file contents
//	.meta/sidecars/<entry id>/<escaped key>      side-car blobs
//	.meta/uploads/                               chunk staging
//
// Entry ids are derived from the physical path.
type LocalStorage struct {
	dataDir       string
	versionsDir   string
	sidecarsDir   string
	tempDir       string
	baseURL       string
	uploadTimeout time.Duration
	stage         *stager
}

// LocalOption defines a function that configures LocalStorage.
type LocalOption func(*LocalStorage)

// WithLocalUploadTimeout bounds a single Upload call.
func WithLocalUploadTimeout(timeout time.Duration) LocalOption {
	return func(s *LocalStorage) {
		s.uploadTimeout = timeout
	}
}

// WithLocalBaseURL enables DownloadRedirect by serving files from baseURL.
func WithLocalBaseURL(baseURL string) LocalOption {
	return func(s *LocalStorage) {
		if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		s.baseURL = baseURL
	}
}

// WithLocalTempDir sets where DownloadLocal copies are written. Empty keeps
// os.TempDir().
func WithLocalTempDir(dir string) LocalOption {
	return func(s *LocalStorage) {
		if dir != "" {
			s.tempDir = dir
		}
	}
}

// NewLocalStorage creates a local filesystem storage rooted at baseDir.
func NewLocalStorage(baseDir string, opts ...LocalOption) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, ErrInvalidConfig
	}

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	s := &LocalStorage{
		dataDir:     filepath.Join(absBaseDir, "data"),
		versionsDir: filepath.Join(absBaseDir, ".meta", "versions"),
		sidecarsDir: filepath.Join(absBaseDir, ".meta", "sidecars"),
		tempDir:     os.TempDir(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{s.dataDir, s.versionsDir, s.sidecarsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Join(ErrInvalidConfig, err)
		}
	}

	s.stage, err = newStager(filepath.Join(absBaseDir, ".meta", "uploads"))
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	return s, nil
}

func (s *LocalStorage) resolve(p string) (string, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}
	return filepath.Join(s.dataDir, filepath.FromSlash(p)), nil
}

func (s *LocalStorage) versionDir(p string) string {
	return filepath.Join(s.versionsDir, filepath.FromSlash(p))
}

func (s *LocalStorage) sidecarDir(entryID string) string {
	return filepath.Join(s.sidecarsDir, entryID)
}

func (s *LocalStorage) entry(p string, fi os.FileInfo) Entry {
	e := Entry{
		ID:       EntryID(p),
		Name:     path.Base(p),
		Path:     p,
		IsFolder: fi.IsDir(),
		ModTime:  fi.ModTime(),
	}
	if !e.IsFolder {
		e.Size = fi.Size()
		e.Extension = Ext(e.Name)
	}
	return e
}

// stat returns KindNotFound for missing paths and KindOther for the rest.
func (s *LocalStorage) stat(op, p string) (string, os.FileInfo, error) {
	abs, err := s.resolve(p)
	if err != nil {
		return "", nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil, notFound(op, p)
		}
		return abs, nil, other(op, p, err)
	}
	return abs, fi, nil
}

// requireFolder checks that p exists and is a folder.
func (s *LocalStorage) requireFolder(op, p string) error {
	_, fi, err := s.stat(op, p)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return notAFolder(op, p)
	}
	return nil
}

// Info returns the entry at p. File entries carry a sniffed MIME type.
func (s *LocalStorage) Info(ctx context.Context, p string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, other("info", p, err)
	}
	abs, fi, err := s.stat("info", p)
	if err != nil {
		return nil, err
	}
	e := s.entry(p, fi)
	if !e.IsFolder {
		if mt, err := mimetype.DetectFile(abs); err == nil {
			e.MIMEType = mt.String()
		}
	}
	return &e, nil
}

func (s *LocalStorage) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.Info(ctx, p)
	if err == nil {
		return true, nil
	}
	if KindOf(err) == KindNotFound {
		return false, nil
	}
	return false, err
}

func (s *LocalStorage) List(ctx context.Context, dir string, opts ListOptions) ([]Entry, error) {
	abs, fi, err := s.stat("list", dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, notAFolder("list", dir)
	}

	var entries []Entry
	if opts.Recursive {
		err = filepath.WalkDir(abs, func(walked string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if walked == abs {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(abs, walked)
			if err != nil {
				return err
			}
			entries = append(entries, s.entry(Join(dir, filepath.ToSlash(rel)), info))
			return nil
		})
		if err != nil {
			return nil, other("list", dir, err)
		}
	} else {
		dirEntries, err := os.ReadDir(abs)
		if err != nil {
			return nil, other("list", dir, err)
		}
		entries = make([]Entry, 0, len(dirEntries))
		for _, d := range dirEntries {
			if err := ctx.Err(); err != nil {
				return nil, other("list", dir, err)
			}
			info, err := d.Info()
			if err != nil {
				continue
			}
			entries = append(entries, s.entry(Join(dir, d.Name()), info))
		}
	}

	return ApplyListOptions(entries, opts)
}

func (s *LocalStorage) CreateFolder(ctx context.Context, p string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, other("create folder", p, err)
	}
	abs, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	if p == "/" {
		return nil, alreadyExists("create folder", p)
	}
	if err := s.requireFolder("create folder", path.Dir(p)); err != nil {
		return nil, err
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, alreadyExists("create folder", p)
		}
		return nil, other("create folder", p, err)
	}
	return s.Info(ctx, p)
}

// Upload stages the chunk; the final chunk replaces the live file and keeps
// the previous content as a version.
func (s *LocalStorage) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	abs, err := s.resolve(in.Path)
	if err != nil {
		return nil, err
	}

	staged, received, err := s.stage.write(ctx, in)
	if err != nil {
		return nil, err
	}
	if !in.Final {
		return &UploadResult{Received: received}, nil
	}
	defer s.stage.discard(in.Path, in.Session)

	if err := s.requireFolder("upload", path.Dir(in.Path)); err != nil {
		return nil, err
	}

	if fi, err := os.Stat(abs); err == nil {
		if fi.IsDir() {
			return nil, notAFile("upload", in.Path)
		}
		if err := s.archive(in.Path, abs, fi); err != nil {
			return nil, other("upload", in.Path, err)
		}
	}

	if err := os.Rename(staged, abs); err != nil {
		return nil, other("upload", in.Path, err)
	}

	e, err := s.Info(ctx, in.Path)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Complete: true, Received: received, Entry: e}, nil
}

// archive moves the live file at abs into the version store.
func (s *LocalStorage) archive(p, abs string, fi os.FileInfo) error {
	dir := s.versionDir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(abs, filepath.Join(dir, strconv.FormatInt(fi.ModTime().UnixNano(), 10)))
}

func (s *LocalStorage) Download(ctx context.Context, p string, opts DownloadOptions) (*Download, error) {
	abs, fi, err := s.stat("download", p)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, notAFile("download", p)
	}
	e := s.entry(p, fi)

	if opts.VersionID != "" && opts.VersionID != CurrentVersion {
		abs = filepath.Join(s.versionDir(p), filepath.Base(opts.VersionID))
		vfi, err := os.Stat(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, notFound("download", p+"@"+opts.VersionID)
			}
			return nil, other("download", p, err)
		}
		e.Size = vfi.Size()
		e.VersionID = opts.VersionID
		if nano, err := strconv.ParseInt(opts.VersionID, 10, 64); err == nil {
			e.ModTime = time.Unix(0, nano)
		}
	}

	switch opts.Mode {
	case DownloadLocal:
		local, err := copyToTemp(ctx, s.tempDir, abs, e.Extension)
		if err != nil {
			return nil, other("download", p, err)
		}
		return &Download{Entry: e, LocalPath: local}, nil
	case DownloadRedirect:
		if s.baseURL != "" && e.VersionID == "" {
			return &Download{Entry: e, URL: s.baseURL + (&url.URL{Path: strings.TrimPrefix(p, "/")}).EscapedPath()}, nil
		}
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, other("download", p, err)
	}
	return &Download{Entry: e, Body: f}, nil
}

func copyToTemp(ctx context.Context, tempDir, src, ext string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()
	return writeTemp(ctx, tempDir, in, ext)
}

func writeTemp(ctx context.Context, tempDir string, r io.Reader, ext string) (string, error) {
	pattern := "download-*"
	if ext != "" {
		pattern += "." + ext
	}
	out, err := os.CreateTemp(tempDir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := copyWithContext(ctx, out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// prepareTarget validates a move/copy pair and returns both absolute paths.
func (s *LocalStorage) prepareTarget(op, from, to string) (string, string, error) {
	fromAbs, _, err := s.stat(op, from)
	if err != nil {
		return "", "", err
	}
	toAbs, err := s.resolve(to)
	if err != nil {
		return "", "", err
	}
	if to == from || strings.HasPrefix(to, from+"/") {
		return "", "", newError(KindInvalidPath, op, to, nil)
	}
	if _, err := os.Stat(toAbs); err == nil {
		return "", "", alreadyExists(op, to)
	}
	if err := s.requireFolder(op, path.Dir(to)); err != nil {
		return "", "", err
	}
	return fromAbs, toAbs, nil
}

func (s *LocalStorage) Move(ctx context.Context, from, to string) (*Entry, error) {
	fromAbs, toAbs, err := s.prepareTarget("move", from, to)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(fromAbs, toAbs); err != nil {
		return nil, other("move", from, err)
	}

	if _, err := os.Stat(s.versionDir(from)); err == nil {
		if err := os.MkdirAll(filepath.Dir(s.versionDir(to)), 0o755); err == nil {
			_ = os.Rename(s.versionDir(from), s.versionDir(to))
		}
	}

	return s.Info(ctx, to)
}

func (s *LocalStorage) Copy(ctx context.Context, from, to string) (*Entry, error) {
	fromAbs, toAbs, err := s.prepareTarget("copy", from, to)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(fromAbs, func(walked string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(fromAbs, walked)
		if err != nil {
			return err
		}
		target := filepath.Join(toAbs, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(ctx, walked, target)
	})
	if err != nil {
		_ = os.RemoveAll(toAbs)
		return nil, other("copy", from, err)
	}

	return s.Info(ctx, to)
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := copyWithContext(ctx, out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (s *LocalStorage) Delete(ctx context.Context, p string) error {
	abs, fi, err := s.stat("delete", p)
	if err != nil {
		return err
	}
	if p == "/" {
		return newError(KindInvalidPath, "delete", p, nil)
	}

	if fi.IsDir() {
		_ = filepath.WalkDir(abs, func(walked string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil || d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(abs, walked)
			if err != nil {
				return nil
			}
			_ = s.DeleteSidecars(ctx, EntryID(Join(p, filepath.ToSlash(rel))))
			return nil
		})
	} else {
		_ = s.DeleteSidecars(ctx, EntryID(p))
	}

	if err := os.RemoveAll(abs); err != nil {
		return other("delete", p, err)
	}
	_ = os.RemoveAll(s.versionDir(p))
	return nil
}

func (s *LocalStorage) Versions(ctx context.Context, p string) ([]Entry, error) {
	_, fi, err := s.stat("versions", p)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, notAFile("versions", p)
	}

	current := s.entry(p, fi)
	current.VersionID = CurrentVersion
	versions := []Entry{current}

	dirEntries, err := os.ReadDir(s.versionDir(p))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, other("versions", p, err)
	}
	for _, d := range dirEntries {
		if d.IsDir() {
			continue
		}
		nano, err := strconv.ParseInt(d.Name(), 10, 64)
		if err != nil {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		v := current
		v.VersionID = d.Name()
		v.Size = info.Size()
		v.ModTime = time.Unix(0, nano)
		versions = append(versions, v)
	}

	slices.SortStableFunc(versions[1:], func(a, b Entry) int {
		return b.ModTime.Compare(a.ModTime)
	})
	return versions, nil
}

func (s *LocalStorage) PutSidecar(ctx context.Context, entryID, key string, body io.Reader) error {
	dir := s.sidecarDir(filepath.Base(entryID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return other("put sidecar", entryID, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return other("put sidecar", entryID, err)
	}
	if _, err := copyWithContext(ctx, tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return other("put sidecar", entryID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return other("put sidecar", entryID, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, url.PathEscape(key))); err != nil {
		_ = os.Remove(tmp.Name())
		return other("put sidecar", entryID, err)
	}
	return nil
}

func (s *LocalStorage) GetSidecar(_ context.Context, entryID, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.sidecarDir(filepath.Base(entryID)), url.PathEscape(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound("get sidecar", entryID+"/"+key)
		}
		return nil, other("get sidecar", entryID, err)
	}
	return f, nil
}

func (s *LocalStorage) DeleteSidecars(_ context.Context, entryID string) error {
	if err := os.RemoveAll(s.sidecarDir(filepath.Base(entryID))); err != nil {
		return other("delete sidecars", entryID, err)
	}
	return nil
}
