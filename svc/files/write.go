package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// UploadRequest is one chunk of an upload of Name into ParentPath. Chunks of
// one Session arrive in order; Final marks the last one.
type UploadRequest struct {
	ParentPath string
	Name       string
	Body       io.Reader
	Offset     int64
	Final      bool
	Session    string
	UserID     int64
}

type UploadResult struct {
	Complete bool
	Received int64
	IsNew    bool
	Object   *Object // set once Complete
}

// Upload stores one chunk. The destination is locked for the duration of the
// existence check and the write, so concurrent uploads of the same name are
// linearised. FileAdded is published after the final chunk, once the lock is
// released.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (_ *UploadResult, err error) {
	defer func() { s.done(ctx, "upload", req.ParentPath, req.UserID, err) }()

	if !validName(req.Name) {
		return nil, fmt.Errorf("%w: file name %q", ErrInvalidArgument, req.Name)
	}
	if req.Body == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidArgument)
	}
	parent, err := s.resolve(ctx, req.ParentPath, req.UserID, CapUpload)
	if err != nil {
		return nil, err
	}
	dest := parent.Child(req.Name)

	res, isNew, err := s.uploadLocked(ctx, dest, req)
	if err != nil {
		return nil, err
	}

	out := &UploadResult{Complete: res.Complete, Received: res.Received, IsNew: isNew}
	if res.Complete && res.Entry != nil {
		o := newObject(dest, *res.Entry)
		out.Object = &o

		e := newEvent(EventFileAdded, dest, req.UserID)
		e.EntryID = res.Entry.ID
		e.Name = res.Entry.Name
		e.Size = res.Entry.Size
		e.IsNew = isNew
		e.GenerateBotMessage = !inAttachments(dest)
		s.publish(ctx, e)
	}
	return out, nil
}

func (s *Service) uploadLocked(ctx context.Context, dest *TranslatedPath, req UploadRequest) (*storage.UploadResult, bool, error) {
	guard, err := s.acquire(ctx, "upload", dest.PhysicalPath, req.Session, s.cfg.UploadLockTimeout)
	if err != nil {
		return nil, false, err
	}
	defer s.release(ctx, guard)

	exists, err := s.store.Exists(ctx, dest.PhysicalPath)
	if err != nil {
		return nil, false, mapStorageError(err)
	}
	res, err := s.store.Upload(ctx, storage.UploadInput{
		Path:    dest.PhysicalPath,
		Body:    req.Body,
		Offset:  req.Offset,
		Final:   req.Final,
		Session: req.Session,
	})
	if err != nil {
		return nil, false, mapStorageError(err)
	}
	return res, !exists, nil
}

// CreateFolder creates name inside parent.
func (s *Service) CreateFolder(ctx context.Context, parent, name string, userID int64) (_ *Object, err error) {
	defer func() { s.done(ctx, "create_folder", parent, userID, err) }()

	if !validName(name) {
		return nil, fmt.Errorf("%w: folder name %q", ErrInvalidArgument, name)
	}
	tp, err := s.resolve(ctx, parent, userID, CapCreateFolder)
	if err != nil {
		return nil, err
	}
	dest := tp.Child(name)
	entry, err := s.store.CreateFolder(ctx, dest.PhysicalPath)
	if err != nil {
		return nil, mapStorageError(err)
	}

	e := newEvent(EventFolderCreated, dest, userID)
	e.EntryID = entry.ID
	e.Name = entry.Name
	e.IsFolder = true
	s.publish(ctx, e)

	o := newObject(dest, *entry)
	return &o, nil
}

// CopyOrMove copies or moves from onto the full destination path to.
func (s *Service) CopyOrMove(ctx context.Context, from, to string, userID int64, isCopy bool) (_ *Object, err error) {
	op := "move"
	if isCopy {
		op = "copy"
	}
	defer func() { s.done(ctx, op, from, userID, err) }()

	if !isCopy && isProtected(from) {
		return nil, fmt.Errorf("%w: %s is a system entry", ErrForbidden, from)
	}
	src, err := s.resolve(ctx, from, userID, CapRead)
	if err != nil {
		return nil, err
	}
	dst, err := s.resolve(ctx, to, userID, CapUpload)
	if err != nil {
		return nil, err
	}
	if src.SubPath == "" || dst.SubPath == "" {
		return nil, fmt.Errorf("%w: cannot %s a mapped root", ErrInvalidPath, op)
	}
	if !isCopy {
		if err := s.guardChannelTree(ctx, src); err != nil {
			return nil, err
		}
	}
	if dst.PhysicalPath == src.PhysicalPath || strings.HasPrefix(dst.PhysicalPath, src.PhysicalPath+"/") {
		return nil, fmt.Errorf("%w: %s onto itself", ErrInvalidPath, op)
	}

	// The source is gone after a move; capture what the event reports.
	before, err := s.store.Info(ctx, src.PhysicalPath)
	if err != nil {
		return nil, mapStorageError(err)
	}
	exists, err := s.store.Exists(ctx, dst.PhysicalPath)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, to)
	}

	var after *storage.Entry
	if isCopy {
		after, err = s.store.Copy(ctx, src.PhysicalPath, dst.PhysicalPath)
	} else {
		after, err = s.store.Move(ctx, src.PhysicalPath, dst.PhysicalPath)
	}
	if err != nil {
		return nil, mapStorageError(err)
	}

	typ := EventUpdated
	if isCopy {
		typ = EventCopied
	}
	e := newEvent(typ, dst, userID)
	e.From = src
	e.To = dst
	e.EntryID = after.ID
	e.Name = after.Name
	e.Size = after.Size
	e.IsFolder = after.IsFolder
	e.SourceName = before.Name
	e.SourceSize = before.Size
	s.publish(ctx, e)

	o := newObject(dst, *after)
	return &o, nil
}

// Delete removes path. Channel paths are moved into the channel trash, team
// paths are deleted for good. Channel attachments folders and wiki index
// pages are never deleted.
func (s *Service) Delete(ctx context.Context, path string, userID int64) (err error) {
	defer func() { s.done(ctx, "delete", path, userID, err) }()

	if isProtected(path) {
		return fmt.Errorf("%w: %s is a system entry", ErrForbidden, path)
	}
	tp, err := s.translator.Translate(ctx, path)
	if err != nil {
		return err
	}
	if tp.SubPath == "" {
		return fmt.Errorf("%w: %s is a mapped root", ErrForbidden, path)
	}
	if err := s.authz.Authorize(ctx, userID, CapDelete, tp); err != nil {
		return err
	}
	if err := s.guardChannelTree(ctx, tp); err != nil {
		return err
	}

	entry, err := s.store.Info(ctx, tp.PhysicalPath)
	if err != nil {
		return mapStorageError(err)
	}

	if tp.IsChannelScoped() {
		err = s.trash(ctx, tp)
	} else {
		err = mapStorageError(s.store.Delete(ctx, tp.PhysicalPath))
	}
	if err != nil {
		return err
	}

	e := newEvent(EventDeleted, tp, userID)
	e.EntryID = entry.ID
	e.Name = entry.Name
	e.Size = entry.Size
	e.IsFolder = entry.IsFolder
	s.publish(ctx, e)
	return nil
}

// guardChannelTree refuses to remove a team path that holds a channel's
// mapped roots or one of their system entries.
func (s *Service) guardChannelTree(ctx context.Context, tp *TranslatedPath) error {
	if tp.IsChannelScoped() {
		return nil
	}
	within, err := s.repo.ListChannelPathsWithin(ctx, tp.PhysicalPath)
	if err != nil {
		return fmt.Errorf("files: load channel paths: %w", err)
	}
	if len(within) > 0 {
		return fmt.Errorf("%w: %s holds channel %d", ErrForbidden, tp.PhysicalPath, within[0].ChannelID)
	}

	dir := parentOf(tp.PhysicalPath)
	var owner ChannelPathType
	switch strings.TrimPrefix(tp.PhysicalPath, dir+"/") {
	case attachmentsFolder:
		owner = ChannelPathFile
	case wikiIndexPage:
		owner = ChannelPathWiki
	default:
		return nil
	}
	around, err := s.repo.ListChannelPathsWithin(ctx, dir)
	if err != nil {
		return fmt.Errorf("files: load channel paths: %w", err)
	}
	for _, p := range around {
		if p.Type == owner && p.Path == dir {
			return fmt.Errorf("%w: %s is a system entry", ErrForbidden, tp.PhysicalPath)
		}
	}
	return nil
}

// trashPath returns the physical location of tp inside the channel's
// DELETED root. Wiki entries keep their own subtree.
func (s *Service) trashPath(ctx context.Context, tp *TranslatedPath) (string, error) {
	paths, err := s.repo.ListChannelPaths(ctx, tp.Channel.ID)
	if err != nil {
		return "", fmt.Errorf("files: load channel paths: %w", err)
	}
	deleted, ok := findPath(paths, ChannelPathDeleted)
	if !ok {
		return "", fmt.Errorf("%w: channel %d has no %s path", ErrStructuralViolation, tp.Channel.ID, ChannelPathDeleted)
	}
	if tp.Type == PathTypeWiki {
		return deleted.Path + "/" + wikiDisplayName + tp.SubPath, nil
	}
	return deleted.Path + tp.SubPath, nil
}

func (s *Service) trash(ctx context.Context, tp *TranslatedPath) error {
	dest, err := s.trashPath(ctx, tp)
	if err != nil {
		return err
	}
	if err := s.ensureFolders(ctx, parentOf(dest)); err != nil {
		return err
	}
	return s.mergeMove(ctx, tp.PhysicalPath, dest)
}

// ensureFolders creates dir and its missing ancestors.
func (s *Service) ensureFolders(ctx context.Context, dir string) error {
	exists, err := s.store.Exists(ctx, dir)
	if err != nil {
		return mapStorageError(err)
	}
	if exists {
		return nil
	}
	if parent := parentOf(dir); parent != "/" && parent != dir {
		if err := s.ensureFolders(ctx, parent); err != nil {
			return err
		}
	}
	if _, err := s.store.CreateFolder(ctx, dir); err != nil && storage.KindOf(err) != storage.KindAlreadyExists {
		return mapStorageError(err)
	}
	return nil
}

// mergeMove moves from onto to. When both are folders the contents are
// merged; otherwise the existing destination is replaced.
func (s *Service) mergeMove(ctx context.Context, from, to string) error {
	_, err := s.store.Move(ctx, from, to)
	if err == nil {
		return nil
	}
	if storage.KindOf(err) != storage.KindAlreadyExists {
		return mapStorageError(err)
	}

	src, err := s.store.Info(ctx, from)
	if err != nil {
		return mapStorageError(err)
	}
	dst, err := s.store.Info(ctx, to)
	if err != nil {
		return mapStorageError(err)
	}
	if !src.IsFolder || !dst.IsFolder {
		if err := s.store.Delete(ctx, to); err != nil && storage.KindOf(err) != storage.KindNotFound {
			return mapStorageError(err)
		}
		_, err := s.store.Move(ctx, from, to)
		return mapStorageError(err)
	}

	children, err := s.store.List(ctx, from, storage.ListOptions{})
	if err != nil {
		return mapStorageError(err)
	}
	var errs []error
	for _, c := range children {
		if err := s.mergeMove(ctx, c.Path, storage.Join(to, c.Name)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return mapStorageError(s.store.Delete(ctx, from))
}

func parentOf(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}
