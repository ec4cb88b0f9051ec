package files

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// ListRequest describes a folder listing. Cursor is a logical path under
// Path. LimitAfter returns up to N entries after the cursor, and includes
// the cursor when LimitBefore is also set. LimitBefore returns up to N
// entries before it and requires a cursor.
type ListRequest struct {
	Path          string
	UserID        int64
	Query         string
	SortBy        storage.SortKey
	Descending    bool
	Cursor        string
	LimitBefore   int
	LimitAfter    int
	InDepth       bool
	IgnoreFolders bool
	Type          string // "", "media" or "docs"
}

// Info returns the entry at path.
func (s *Service) Info(ctx context.Context, path string, userID int64) (_ *Object, err error) {
	defer func() { s.done(ctx, "info", path, userID, err) }()

	tp, err := s.resolve(ctx, path, userID, CapRead)
	if err != nil {
		return nil, err
	}
	e, err := s.store.Info(ctx, tp.PhysicalPath)
	if err != nil {
		return nil, mapStorageError(err)
	}
	o := newObject(tp, *e)
	return &o, nil
}

// List returns the entries of a folder. The empty path lists the team roots
// the user manages plus the shared channels folder; "/cf" lists the shared
// channels themselves.
func (s *Service) List(ctx context.Context, req ListRequest) (_ []Object, err error) {
	defer func() { s.done(ctx, "list", req.Path, req.UserID, err) }()

	switch req.Path {
	case "":
		return s.listRoots(ctx, req.UserID)
	case "/cf":
		return s.listSharedChannels(ctx, req.UserID)
	}

	if req.LimitBefore > 0 && req.Cursor == "" {
		return nil, fmt.Errorf("%w: limit before requires a cursor", ErrInvalidArgument)
	}
	if req.LimitBefore < 0 || req.LimitAfter < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidArgument)
	}

	tp, err := s.resolve(ctx, req.Path, req.UserID, CapRead)
	if err != nil {
		return nil, err
	}

	include, err := s.tables.TypeFilter(req.Type)
	if err != nil {
		return nil, err
	}
	opts := storage.ListOptions{
		SortBy:            req.SortBy,
		Descending:        req.Descending,
		LimitBefore:       req.LimitBefore,
		LimitAfter:        req.LimitAfter,
		Recursive:         req.InDepth,
		IgnoreFolders:     req.IgnoreFolders,
		IncludeExtensions: include,
	}
	if opts.LimitBefore == 0 && opts.LimitAfter == 0 {
		opts.LimitAfter = s.cfg.DefaultListLimit
	}

	if req.Query != "" {
		if s.searcher == nil {
			return nil, fmt.Errorf("%w: search is not configured", ErrInvalidArgument)
		}
		ids, err := s.searcher.SearchIDs(ctx, SearchQuery{
			TeamID:    tp.Team.ID,
			ChannelID: tp.channelID(),
			Query:     req.Query,
		})
		if err != nil {
			return nil, fmt.Errorf("files: search: %w", err)
		}
		opts.IDs = append([]string{}, ids...)
		opts.Recursive = true
	}

	if req.Cursor != "" {
		cur, err := s.translator.Translate(ctx, req.Cursor)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(cur.PhysicalPath, tp.PhysicalPath+"/") {
			return nil, fmt.Errorf("%w: cursor %q is outside %q", ErrInvalidArgument, req.Cursor, req.Path)
		}
		opts.Cursor = cur.PhysicalPath
	}

	entries, err := s.store.List(ctx, tp.PhysicalPath, opts)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return newObjects(tp, entries), nil
}

func (s *Service) listRoots(ctx context.Context, userID int64) ([]Object, error) {
	teams, err := s.repo.ListManagedTeams(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("files: list teams: %w", err)
	}
	out := make([]Object, 0, len(teams)+1)
	for _, t := range teams {
		logical := "/f/" + strconv.FormatInt(t.ID, 10)
		display := "/" + t.Name + " files"
		if t.Personal {
			display = "/" + personalTeamName
		}
		out = append(out, Object{
			ID:          storage.EntryID(logical),
			Name:        display[1:],
			Path:        logical,
			DisplayPath: display,
			IsFolder:    true,
		})
	}
	slices.SortStableFunc(out, func(a, b Object) int {
		return cmp.Compare(rootRank(a), rootRank(b))
	})
	out = append(out, Object{
		ID:          storage.EntryID("/cf"),
		Name:        sharedChannelsName,
		Path:        "/cf",
		DisplayPath: "/" + sharedChannelsName,
		IsFolder:    true,
		Flags:       []Flag{FlagSystem},
	})
	return out, nil
}

// rootRank puts the personal root first.
func rootRank(o Object) int {
	if o.DisplayPath == "/"+personalTeamName {
		return 0
	}
	return 1
}

func (s *Service) listSharedChannels(ctx context.Context, userID int64) ([]Object, error) {
	shared, err := s.repo.ListSharedChannels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("files: list shared channels: %w", err)
	}
	out := make([]Object, 0, len(shared))
	for _, sc := range shared {
		logical := "/cf/" + strconv.FormatInt(sc.FilesPathID, 10)
		out = append(out, Object{
			ID:          storage.EntryID(logical),
			Name:        sc.Channel.Name,
			Path:        logical,
			DisplayPath: "/" + sharedChannelsName + "/" + sc.Channel.Name,
			IsFolder:    true,
		})
	}
	return out, nil
}

// Download returns a descriptor for the content of path, or of one of its
// versions when versionID is set.
func (s *Service) Download(ctx context.Context, path, versionID string, userID int64, mode storage.DownloadMode) (_ *storage.Download, err error) {
	defer func() { s.done(ctx, "download", path, userID, err) }()

	tp, err := s.resolve(ctx, path, userID, CapRead)
	if err != nil {
		return nil, err
	}
	dl, err := s.store.Download(ctx, tp.PhysicalPath, storage.DownloadOptions{
		VersionID: versionID,
		Mode:      mode,
	})
	if err != nil {
		return nil, mapStorageError(err)
	}
	if logical, _, ok := tp.Rewrite(dl.Entry.Path); ok {
		dl.Entry.Path = logical
	}
	return dl, nil
}

// Versions returns the version history of a file, newest first.
func (s *Service) Versions(ctx context.Context, path string, userID int64) (_ []Object, err error) {
	defer func() { s.done(ctx, "versions", path, userID, err) }()

	tp, err := s.resolve(ctx, path, userID, CapRead)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Versions(ctx, tp.PhysicalPath)
	if err != nil {
		return nil, mapStorageError(err)
	}
	out := newObjects(tp, entries)
	for i := range out {
		out[i].VersionTime = entries[i].ModTime
	}
	return out, nil
}
