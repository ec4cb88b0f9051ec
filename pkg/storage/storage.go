package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// Entry is a file or folder as seen by the backend.
type Entry struct {
	ID        string
	Name      string
	Path      string // physical path, always absolute ("/f/7/...")
	IsFolder  bool
	Size      int64
	Extension string // lower-case, without the dot
	MIMEType  string
	ModTime   time.Time
	VersionID string
}

// SortKey selects the list ordering.
type SortKey string

const (
	SortByName     SortKey = "name"
	SortBySize     SortKey = "size"
	SortByModified SortKey = "modified"
	SortByType     SortKey = "type"
)

// ListOptions narrows and orders a folder listing.
//
// Cursor is the physical path of an entry in the listing. LimitAfter returns
// up to N entries after the cursor (the cursor itself is included only when
// LimitBefore is also set); LimitBefore returns up to N entries before it.
// Both zero returns everything.
type ListOptions struct {
	SortBy            SortKey
	Descending        bool
	Cursor            string
	LimitBefore       int
	LimitAfter        int
	Recursive         bool
	IgnoreFolders     bool
	IncludeExtensions []string
	ExcludeExtensions []string
	// IDs restricts the result to the given entry ids when non-nil.
	IDs []string
}

// UploadInput is one chunk of an upload. Chunks of the same Session are
// staged until Final, which publishes the assembled file at Path.
type UploadInput struct {
	Path    string
	Body    io.Reader
	Offset  int64
	Final   bool
	Session string
}

// UploadResult reports the staging progress. Entry is set once complete.
type UploadResult struct {
	Complete bool
	Received int64
	Entry    *Entry
}

// DownloadMode is the representation requested by the caller.
type DownloadMode string

const (
	DownloadStream   DownloadMode = "stream"
	DownloadLocal    DownloadMode = "local"
	DownloadRedirect DownloadMode = "redirect"
)

type DownloadOptions struct {
	VersionID string
	Mode      DownloadMode
}

// Download describes how to fetch file content. Exactly one of Body,
// LocalPath or URL is set, depending on the mode the backend honoured.
// Callers close Body and remove LocalPath.
type Download struct {
	Entry     Entry
	Body      io.ReadCloser
	LocalPath string
	URL       string
}

// Storage is a hierarchical namespace with versioned files and side-car blobs.
// Implementations must be safe for concurrent use.
type Storage interface {
	Info(ctx context.Context, path string) (*Entry, error)
	Exists(ctx context.Context, path string) (bool, error)
	// List returns the children of dir (descendants when Recursive).
	List(ctx context.Context, dir string, opts ListOptions) ([]Entry, error)
	// CreateFolder creates a single folder; the parent must exist.
	CreateFolder(ctx context.Context, path string) (*Entry, error)
	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)
	Download(ctx context.Context, path string, opts DownloadOptions) (*Download, error)
	// Move fails with KindAlreadyExists when the destination exists.
	Move(ctx context.Context, from, to string) (*Entry, error)
	// Copy is recursive for folders.
	Copy(ctx context.Context, from, to string) (*Entry, error)
	// Delete is recursive for folders.
	Delete(ctx context.Context, path string) error
	// Versions returns the version history, newest first.
	Versions(ctx context.Context, path string) ([]Entry, error)
	PutSidecar(ctx context.Context, entryID, key string, body io.Reader) error
	GetSidecar(ctx context.Context, entryID, key string) (io.ReadCloser, error)
	DeleteSidecars(ctx context.Context, entryID string) error
}

// ValidatePath checks that p is an absolute, clean, slash-separated path.
func ValidatePath(p string) error {
	if p == "" || !strings.HasPrefix(p, "/") {
		return newError(KindInvalidPath, "validate", p, nil)
	}
	if p != "/" && (path.Clean(p) != p || strings.HasSuffix(p, "/")) {
		return newError(KindInvalidPath, "validate", p, nil)
	}
	return nil
}

// Ext returns the lower-case extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// Join appends name to the folder path dir.
func Join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
