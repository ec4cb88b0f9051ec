package files

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/dmitrymomot/teamfiles/pkg/logger"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// Folder names of the physical layout.
const (
	ChannelsFolder     = "Channels"
	DeletedItemsFolder = "DeletedItems"
	channelFilesFolder = "files"
	channelWikiFolder  = "wiki"
	channelTrashFolder = "deleted"
)

//go:embed templates/wiki
var templates embed.FS

func defaultWikiTemplate() fs.FS {
	sub, err := fs.Sub(templates, "templates/wiki")
	if err != nil {
		panic(err)
	}
	return sub
}

// saga collects compensating actions for completed steps of a hook.
type saga struct {
	log  *slog.Logger
	undo []func(context.Context) error
}

func (s *saga) add(fn func(context.Context) error) { s.undo = append(s.undo, fn) }

// rollback runs the compensations in reverse order. Failures are logged and
// do not stop the remaining compensations.
func (s *saga) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(s.undo) - 1; i >= 0; i-- {
		if err := s.undo[i](ctx); err != nil {
			s.log.ErrorContext(ctx, "compensation failed", logger.Error(err))
		}
	}
	s.undo = nil
}

func (s *Service) newSaga(hook string) *saga {
	return &saga{log: s.log.With(logger.Operation(hook))}
}

// hookFailed logs err at error level and returns it.
func (s *Service) hookFailed(ctx context.Context, hook string, err error, attrs ...slog.Attr) error {
	args := []any{logger.Operation(hook), logger.Error(err)}
	for _, a := range attrs {
		args = append(args, a)
	}
	s.log.ErrorContext(ctx, "lifecycle hook failed", args...)
	s.metrics.observeOp(hook, err)
	return err
}

// mkdir creates dir unless it exists and registers its removal.
func (s *Service) mkdir(ctx context.Context, sg *saga, dir string) error {
	exists, err := s.store.Exists(ctx, dir)
	if err != nil {
		return mapStorageError(err)
	}
	if exists {
		return nil
	}
	if _, err := s.store.CreateFolder(ctx, dir); err != nil {
		if storage.KindOf(err) == storage.KindAlreadyExists {
			return nil
		}
		return mapStorageError(err)
	}
	sg.add(func(ctx context.Context) error { return s.store.Delete(ctx, dir) })
	return nil
}

func teamRoot(teamID int64) string { return "/f/" + strconv.FormatInt(teamID, 10) }

// ChannelFolderName is the physical folder name of a channel: NFC, without
// slashes, never empty.
func ChannelFolderName(ch *Channel) string {
	name := norm.NFC.String(strings.TrimSpace(ch.Name))
	name = strings.NewReplacer("/", "-", "\\", "-", "\x00", "").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "channel-" + strconv.FormatInt(ch.ID, 10)
	}
	return name
}

// OnNewTeam provisions the team root with its Channels and DeletedItems
// folders. Folders that already exist are kept.
func (s *Service) OnNewTeam(ctx context.Context, team *Team, userID int64) (err error) {
	sg := s.newSaga("on_new_team")
	defer func() {
		if err != nil {
			sg.rollback(ctx)
			err = s.hookFailed(ctx, "on_new_team", err, logger.TeamID(team.ID), logger.UserID(userID))
		}
	}()

	root := teamRoot(team.ID)
	for _, dir := range []string{"/f", root, root + "/" + ChannelsFolder, root + "/" + DeletedItemsFolder} {
		if err := s.mkdir(ctx, sg, dir); err != nil {
			return err
		}
	}
	s.metrics.observeOp("on_new_team", nil)
	return nil
}

// OnNewChannel provisions the channel tree, seeds the wiki and stores the
// FILE, WIKI and DELETED channel paths. On failure every completed step is
// undone.
func (s *Service) OnNewChannel(ctx context.Context, channel *Channel, userID int64) (_ []ChannelPath, err error) {
	sg := s.newSaga("on_new_channel")
	defer func() {
		if err != nil {
			sg.rollback(ctx)
			err = s.hookFailed(ctx, "on_new_channel", err, logger.ChannelID(channel.ID), logger.UserID(userID))
		}
	}()

	if _, err := s.repo.GetTeam(ctx, channel.TeamID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, errors.Join(ErrTeamNotFound, err)
		}
		return nil, fmt.Errorf("files: load team: %w", err)
	}

	channels := teamRoot(channel.TeamID) + "/" + ChannelsFolder
	if err := s.mkdir(ctx, sg, channels); err != nil {
		return nil, err
	}
	root, err := s.freeChannelRoot(ctx, channels, channel, "")
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{
		root,
		root + "/" + channelFilesFolder,
		root + "/" + channelFilesFolder + "/" + attachmentsFolder,
		root + "/" + channelWikiFolder,
		root + "/" + channelTrashFolder,
	} {
		if err := s.mkdir(ctx, sg, dir); err != nil {
			return nil, err
		}
	}

	wiki := root + "/" + channelWikiFolder
	if err := s.seedWiki(ctx, sg, channel, wiki, userID); err != nil {
		return nil, err
	}

	paths, err := s.repo.CreateChannelPaths(ctx, []ChannelPath{
		{ChannelID: channel.ID, Type: ChannelPathFile, Path: root + "/" + channelFilesFolder, CreatedBy: userID},
		{ChannelID: channel.ID, Type: ChannelPathWiki, Path: wiki, CreatedBy: userID},
		{ChannelID: channel.ID, Type: ChannelPathDeleted, Path: root + "/" + channelTrashFolder, CreatedBy: userID},
	})
	if err != nil {
		return nil, fmt.Errorf("files: create channel paths: %w", err)
	}
	s.metrics.observeOp("on_new_channel", nil)
	return paths, nil
}

// freeChannelRoot picks the channel folder, suffixing the channel id when
// another channel already uses the name. current is the folder the channel
// occupies now and never counts as taken.
func (s *Service) freeChannelRoot(ctx context.Context, channels string, ch *Channel, current string) (string, error) {
	root := channels + "/" + ChannelFolderName(ch)
	if root == current {
		return root, nil
	}
	exists, err := s.store.Exists(ctx, root)
	if err != nil {
		return "", mapStorageError(err)
	}
	if exists {
		root += " (" + strconv.FormatInt(ch.ID, 10) + ")"
	}
	return root, nil
}

// seedWiki copies the wiki template into dir and indexes every file.
func (s *Service) seedWiki(ctx context.Context, sg *saga, ch *Channel, dir string, userID int64) error {
	return fs.WalkDir(s.wiki, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || name == "." {
			return err
		}
		target := dir + "/" + name
		if d.IsDir() {
			return s.mkdir(ctx, sg, target)
		}

		content, err := fs.ReadFile(s.wiki, name)
		if err != nil {
			return fmt.Errorf("files: read wiki template %s: %w", name, err)
		}
		res, err := s.store.Upload(ctx, storage.UploadInput{
			Path:    target,
			Body:    bytes.NewReader(content),
			Final:   true,
			Session: uuid.NewString(),
		})
		if err != nil {
			return mapStorageError(err)
		}
		sg.add(func(ctx context.Context) error { return s.store.Delete(ctx, target) })

		doc := Document{
			EntryID:   storage.EntryID(target),
			TeamID:    ch.TeamID,
			ChannelID: ch.ID,
			Name:      path.Base(name),
			Path:      target,
		}
		if res.Entry != nil {
			doc.EntryID = res.Entry.ID
		}
		if strings.EqualFold(path.Ext(name), ".md") {
			doc.Content = string(content)
		}
		if err := s.indexer.IndexDocument(ctx, doc); err != nil {
			s.log.WarnContext(ctx, "failed to index wiki page",
				logger.Path(target), logger.UserID(userID), logger.Error(err))
			return nil
		}
		sg.add(func(ctx context.Context) error { return s.indexer.RemoveDocument(ctx, doc.EntryID) })
		return nil
	})
}

// OnRenameChannel moves the channel folder to the channel's current name
// and rewrites its channel paths. It reports false when the channel has no
// FILE path.
func (s *Service) OnRenameChannel(ctx context.Context, channel *Channel) (_ bool, err error) {
	sg := s.newSaga("on_rename_channel")
	defer func() {
		if err != nil {
			sg.rollback(ctx)
			err = s.hookFailed(ctx, "on_rename_channel", err, logger.ChannelID(channel.ID))
		}
	}()

	paths, err := s.repo.ListChannelPaths(ctx, channel.ID)
	if err != nil {
		return false, fmt.Errorf("files: load channel paths: %w", err)
	}
	file, ok := findPath(paths, ChannelPathFile)
	if !ok {
		return false, fmt.Errorf("%w: channel %d has no %s path", ErrStructuralViolation, channel.ID, ChannelPathFile)
	}

	oldRoot := parentOf(file.Path)
	newRoot, err := s.freeChannelRoot(ctx, parentOf(oldRoot), channel, oldRoot)
	if err != nil {
		return false, err
	}
	if oldRoot == newRoot {
		return true, nil
	}

	if _, err := s.store.Move(ctx, oldRoot, newRoot); err != nil {
		return false, mapStorageError(err)
	}
	sg.add(func(ctx context.Context) error {
		_, err := s.store.Move(ctx, newRoot, oldRoot)
		return err
	})

	if err := s.repo.RewriteChannelPathPrefix(ctx, channel.ID, oldRoot+"/", newRoot+"/"); err != nil {
		return false, fmt.Errorf("files: rewrite channel paths: %w", err)
	}
	invalidateTranslations(ctx)
	s.metrics.observeOp("on_rename_channel", nil)
	return true, nil
}

// OnCopyChannel replaces the target channel tree with a copy of the source
// tree. The target trash starts empty.
func (s *Service) OnCopyChannel(ctx context.Context, source, target *Channel, userID int64) (err error) {
	sg := s.newSaga("on_copy_channel")
	defer func() {
		if err != nil {
			sg.rollback(ctx)
			err = s.hookFailed(ctx, "on_copy_channel", err,
				logger.ChannelID(target.ID), logger.UserID(userID), slog.Int64("source_channel_id", source.ID))
		}
	}()

	srcPaths, err := s.repo.ListChannelPaths(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("files: load channel paths: %w", err)
	}
	dstPaths, err := s.repo.ListChannelPaths(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("files: load channel paths: %w", err)
	}
	srcFile, ok := findPath(srcPaths, ChannelPathFile)
	if !ok {
		return fmt.Errorf("%w: channel %d has no %s path", ErrStructuralViolation, source.ID, ChannelPathFile)
	}
	dstFile, ok := findPath(dstPaths, ChannelPathFile)
	if !ok {
		return fmt.Errorf("%w: channel %d has no %s path", ErrStructuralViolation, target.ID, ChannelPathFile)
	}
	dstTrash, ok := findPath(dstPaths, ChannelPathDeleted)
	if !ok {
		return fmt.Errorf("%w: channel %d has no %s path", ErrStructuralViolation, target.ID, ChannelPathDeleted)
	}
	srcRoot, dstRoot := parentOf(srcFile.Path), parentOf(dstFile.Path)

	// Park the current target tree until the copy is in place.
	backup := parentOf(dstRoot) + "/.replaced-" + uuid.NewString()
	if _, err := s.store.Move(ctx, dstRoot, backup); err != nil && storage.KindOf(err) != storage.KindNotFound {
		return mapStorageError(err)
	} else if err == nil {
		sg.add(func(ctx context.Context) error {
			_, err := s.store.Move(ctx, backup, dstRoot)
			return err
		})
	}

	if _, err := s.store.Copy(ctx, srcRoot, dstRoot); err != nil {
		return mapStorageError(err)
	}
	sg.add(func(ctx context.Context) error { return s.store.Delete(ctx, dstRoot) })

	if err := s.store.Delete(ctx, dstTrash.Path); err != nil && storage.KindOf(err) != storage.KindNotFound {
		return mapStorageError(err)
	}
	if _, err := s.store.CreateFolder(ctx, dstTrash.Path); err != nil {
		return mapStorageError(err)
	}

	if err := s.store.Delete(ctx, backup); err != nil && storage.KindOf(err) != storage.KindNotFound {
		s.log.WarnContext(ctx, "failed to remove replaced channel tree", logger.Path(backup), logger.Error(err))
	}
	s.metrics.observeOp("on_copy_channel", nil)
	return nil
}

// OnDeleteChannel removes the channel tree, then its channel paths. Both
// steps tolerate earlier partial runs, so the hook can be retried.
func (s *Service) OnDeleteChannel(ctx context.Context, channel *Channel) (err error) {
	defer func() {
		if err != nil {
			err = s.hookFailed(ctx, "on_delete_channel", err, logger.ChannelID(channel.ID))
		}
	}()

	paths, err := s.repo.ListChannelPaths(ctx, channel.ID)
	if err != nil {
		return fmt.Errorf("files: load channel paths: %w", err)
	}
	if file, ok := findPath(paths, ChannelPathFile); ok {
		if err := s.store.Delete(ctx, parentOf(file.Path)); err != nil && storage.KindOf(err) != storage.KindNotFound {
			return mapStorageError(err)
		}
	}
	if err := s.repo.DeleteChannelPaths(ctx, channel.ID); err != nil {
		return fmt.Errorf("files: delete channel paths: %w", err)
	}
	invalidateTranslations(ctx)
	s.metrics.observeOp("on_delete_channel", nil)
	return nil
}

// OnDeleteTeam removes the team root, then the channel paths of its
// channels.
func (s *Service) OnDeleteTeam(ctx context.Context, team *Team) (err error) {
	defer func() {
		if err != nil {
			err = s.hookFailed(ctx, "on_delete_team", err, logger.TeamID(team.ID))
		}
	}()

	if err := s.store.Delete(ctx, teamRoot(team.ID)); err != nil && storage.KindOf(err) != storage.KindNotFound {
		return mapStorageError(err)
	}
	if err := s.repo.DeleteTeamChannelPaths(ctx, team.ID); err != nil {
		return fmt.Errorf("files: delete team channel paths: %w", err)
	}
	invalidateTranslations(ctx)
	s.metrics.observeOp("on_delete_team", nil)
	return nil
}
