package storage

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// EntryID derives the stable id of the entry stored at the physical path p.
func EntryID(p string) string {
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:16])
}

// ApplyListOptions filters, orders and windows a raw listing. Backends that
// cannot push these options down to the store share this implementation so
// paging behaves identically everywhere.
func ApplyListOptions(entries []Entry, opts ListOptions) ([]Entry, error) {
	if opts.LimitBefore > 0 && opts.Cursor == "" {
		return nil, ErrInvalidListOptions
	}
	if opts.LimitBefore < 0 || opts.LimitAfter < 0 {
		return nil, ErrInvalidListOptions
	}

	filtered := filterEntries(entries, opts)
	sortEntries(filtered, opts.SortBy, opts.Descending)

	if opts.Cursor == "" {
		if opts.LimitAfter > 0 && len(filtered) > opts.LimitAfter {
			filtered = filtered[:opts.LimitAfter]
		}
		return filtered, nil
	}

	idx := slices.IndexFunc(filtered, func(e Entry) bool { return e.Path == opts.Cursor })
	if idx < 0 {
		return nil, notFound("list cursor", opts.Cursor)
	}

	result := make([]Entry, 0, opts.LimitBefore+opts.LimitAfter)
	if opts.LimitBefore > 0 {
		result = append(result, filtered[max(0, idx-opts.LimitBefore):idx]...)
	}

	start := idx + 1
	if opts.LimitBefore > 0 {
		start = idx
	}
	if opts.LimitAfter > 0 {
		end := min(len(filtered), start+opts.LimitAfter)
		result = append(result, filtered[start:end]...)
	} else if opts.LimitBefore == 0 {
		result = append(result, filtered[start:]...)
	}

	return result, nil
}

func filterEntries(entries []Entry, opts ListOptions) []Entry {
	include := extensionSet(opts.IncludeExtensions)
	exclude := extensionSet(opts.ExcludeExtensions)

	var ids map[string]struct{}
	if opts.IDs != nil {
		ids = make(map[string]struct{}, len(opts.IDs))
		for _, id := range opts.IDs {
			ids[id] = struct{}{}
		}
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsFolder && opts.IgnoreFolders {
			continue
		}
		if !e.IsFolder {
			if include != nil {
				if _, ok := include[e.Extension]; !ok {
					continue
				}
			}
			if _, ok := exclude[e.Extension]; ok {
				continue
			}
		}
		if ids != nil {
			if _, ok := ids[e.ID]; !ok {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func extensionSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return set
}

// sortEntries keeps folders ahead of files regardless of direction and
// breaks ties by path so cursors stay stable.
func sortEntries(entries []Entry, key SortKey, desc bool) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if a.IsFolder != b.IsFolder {
			if a.IsFolder {
				return -1
			}
			return 1
		}

		var c int
		switch key {
		case SortBySize:
			c = cmp.Compare(a.Size, b.Size)
		case SortByModified:
			c = a.ModTime.Compare(b.ModTime)
		case SortByType:
			c = cmp.Compare(a.Extension, b.Extension)
		}
		if c == 0 {
			c = cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
		if c == 0 {
			c = cmp.Compare(a.Path, b.Path)
		}
		if desc {
			return -c
		}
		return c
	})
}
