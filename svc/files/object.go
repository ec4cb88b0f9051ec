package files

import (
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// Flag marks special entries.
type Flag string

// FlagSystem marks folders and pages that cannot be deleted.
const FlagSystem Flag = "SYSTEM"

// protectedPatterns match logical paths that are never deleted.
var protectedPatterns = []string{
	"/cf/*/attachments",
	"/wf/*/index.md",
}

const (
	attachmentsFolder = "attachments"
	wikiIndexPage     = "index.md"
)

func isProtected(logical string) bool {
	for _, p := range protectedPatterns {
		if ok, _ := doublestar.Match(p, logical); ok {
			return true
		}
	}
	return false
}

// Object is a storage entry as presented to the caller: Path is logical and
// DisplayPath is human-readable. Physical paths never appear in it.
type Object struct {
	ID          string
	Name        string
	Path        string
	DisplayPath string
	IsFolder    bool
	Size        int64
	Extension   string
	MIMEType    string
	ModTime     time.Time
	VersionID   string
	VersionTime time.Time
	Flags       []Flag
}

// HasFlag reports whether f is set on o.
func (o Object) HasFlag(f Flag) bool {
	for _, x := range o.Flags {
		if x == f {
			return true
		}
	}
	return false
}

func newObject(tp *TranslatedPath, e storage.Entry) Object {
	logical, display, ok := tp.Rewrite(e.Path)
	if !ok {
		logical, display = tp.LogicalPath(), tp.DisplayPath
	}
	o := Object{
		ID:          e.ID,
		Name:        e.Name,
		Path:        logical,
		DisplayPath: display,
		IsFolder:    e.IsFolder,
		Size:        e.Size,
		Extension:   e.Extension,
		MIMEType:    e.MIMEType,
		ModTime:     e.ModTime,
		VersionID:   e.VersionID,
	}
	if isProtected(logical) {
		o.Flags = append(o.Flags, FlagSystem)
	}
	return o
}

func newObjects(tp *TranslatedPath, entries []storage.Entry) []Object {
	out := make([]Object, 0, len(entries))
	for _, e := range entries {
		out = append(out, newObject(tp, e))
	}
	return out
}

// inAttachments reports whether p lies in a channel attachments folder.
func inAttachments(p *TranslatedPath) bool {
	if p.Type != PathTypeFiles {
		return false
	}
	prefix := "/" + attachmentsFolder
	return p.SubPath == prefix || len(p.SubPath) > len(prefix) && p.SubPath[:len(prefix)+1] == prefix+"/"
}
