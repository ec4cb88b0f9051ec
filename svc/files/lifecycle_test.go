package files_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/teamfiles/pkg/lock"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
	"github.com/dmitrymomot/teamfiles/svc/files"
)

type memIndex struct {
	mu   sync.Mutex
	docs map[string]files.Document
}

func newMemIndex() *memIndex { return &memIndex{docs: map[string]files.Document{}} }

func (m *memIndex) IndexDocument(_ context.Context, d files.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.EntryID] = d
	return nil
}

func (m *memIndex) RemoveDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memIndex) byName(name string) (files.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.Name == name {
			return d, true
		}
	}
	return files.Document{}, false
}

type failingPathsRepo struct {
	*files.MemoryRepository
}

func (failingPathsRepo) CreateChannelPaths(context.Context, []files.ChannelPath) ([]files.ChannelPath, error) {
	return nil, errors.New("insert failed")
}

func newBareService(t *testing.T, repo files.Repository, opts ...files.Option) (*files.Service, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir(), storage.WithLocalTempDir(t.TempDir()))
	require.NoError(t, err)
	return files.New(repo, store, lock.NewMemoryLocker(), opts...), store
}

func TestOnNewChannel_SeedsWikiAndIndexes(t *testing.T) {
	t.Parallel()
	idx := newMemIndex()
	tmpl := fstest.MapFS{
		"index.md":        {Data: []byte("# Home\nwelcome")},
		"guides/setup.md": {Data: []byte("# Setup")},
		"logo.txt":        {Data: []byte("plain")},
	}
	f := newFixture(t, files.WithIndexer(idx), files.WithWikiTemplate(tmpl))

	ch := &files.Channel{ID: 43, TeamID: 7, Name: "Ops", OwnerID: ownerID}
	f.repo.PutChannel(*ch)
	paths, err := f.svc.OnNewChannel(context.Background(), ch, ownerID)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	got := map[files.ChannelPathType]string{}
	for _, p := range paths {
		got[p.Type] = p.Path
		assert.Equal(t, ownerID, p.CreatedBy)
		assert.Positive(t, p.ID)
	}
	assert.Equal(t, map[files.ChannelPathType]string{
		files.ChannelPathFile:    "/f/7/Channels/Ops/files",
		files.ChannelPathWiki:    "/f/7/Channels/Ops/wiki",
		files.ChannelPathDeleted: "/f/7/Channels/Ops/deleted",
	}, got)

	assert.True(t, f.exists(t, "/f/7/Channels/Ops/files/attachments"))
	assert.True(t, f.exists(t, "/f/7/Channels/Ops/wiki/guides/setup.md"))

	home, ok := idx.byName("index.md")
	require.True(t, ok)
	assert.Equal(t, "# Home\nwelcome", home.Content)
	assert.Equal(t, int64(43), home.ChannelID)
	assert.Equal(t, int64(7), home.TeamID)
	plain, ok := idx.byName("logo.txt")
	require.True(t, ok)
	assert.Empty(t, plain.Content)
}

func TestOnNewChannel_DuplicateNameGetsSuffix(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	twin := &files.Channel{ID: 44, TeamID: 7, Name: "Design", OwnerID: ownerID}
	f.repo.PutChannel(*twin)
	paths, err := f.svc.OnNewChannel(context.Background(), twin, ownerID)
	require.NoError(t, err)
	for _, p := range paths {
		assert.Contains(t, p.Path, "/f/7/Channels/Design (44)/")
	}
}

func TestOnNewChannel_UnknownTeam(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.OnNewChannel(context.Background(), &files.Channel{ID: 50, TeamID: 999, Name: "X"}, ownerID)
	assert.True(t, errors.Is(err, files.ErrTeamNotFound))
}

func TestOnNewChannel_RollsBackOnRepositoryFailure(t *testing.T) {
	t.Parallel()
	mem := files.NewMemoryRepository()
	mem.PutTeam(files.Team{ID: 7, Name: "Acme", OwnerID: ownerID})
	idx := newMemIndex()
	svc, store := newBareService(t, failingPathsRepo{mem}, files.WithIndexer(idx))
	ctx := context.Background()

	require.NoError(t, svc.OnNewTeam(ctx, &files.Team{ID: 7, Name: "Acme", OwnerID: ownerID}, ownerID))
	_, err := svc.OnNewChannel(ctx, &files.Channel{ID: 42, TeamID: 7, Name: "Design"}, ownerID)
	require.Error(t, err)

	exists, err := store.Exists(ctx, "/f/7/Channels/Design")
	require.NoError(t, err)
	assert.False(t, exists, "channel tree is removed")
	exists, err = store.Exists(ctx, "/f/7/Channels")
	require.NoError(t, err)
	assert.True(t, exists, "folders that existed before the hook stay")
	assert.Empty(t, idx.docs, "seeded pages are removed from the index")
}

func TestOnNewTeam_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.upload(t, "/f/7", "keep.txt", "x")

	require.NoError(t, f.svc.OnNewTeam(context.Background(), &files.Team{ID: 7, Name: "Acme"}, ownerID))
	assert.True(t, f.exists(t, "/f/7/keep.txt"))
	assert.True(t, f.exists(t, "/f/7/DeletedItems"))
}

func TestOnRenameChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	obj := f.upload(t, f.cf(""), "brief.txt", "brief")
	ctx := files.WithTranslationCache(context.Background())

	before, err := f.svc.Info(ctx, f.cf("/brief.txt"), ownerID)
	require.NoError(t, err)
	assert.Equal(t, obj.Path, before.Path)

	renamed := *f.channel
	renamed.Name = "Brand"
	f.repo.PutChannel(renamed)

	ok, err := f.svc.OnRenameChannel(ctx, &renamed)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.False(t, f.exists(t, "/f/7/Channels/Design"))
	assert.True(t, f.exists(t, "/f/7/Channels/Brand/files/brief.txt"))

	paths, err := f.repo.ListChannelPaths(ctx, f.channel.ID)
	require.NoError(t, err)
	for _, p := range paths {
		assert.Contains(t, p.Path, "/f/7/Channels/Brand/")
	}

	after, err := f.svc.Info(ctx, f.cf("/brief.txt"), ownerID)
	require.NoError(t, err, "logical path survives the rename")
	assert.Equal(t, f.cf("/brief.txt"), after.Path)
	assert.Equal(t, "/Shared Channels/Brand/brief.txt", after.DisplayPath)
}

func TestOnRenameChannel_SameNameIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ok, err := f.svc.OnRenameChannel(context.Background(), f.channel)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.exists(t, "/f/7/Channels/Design/files"))
}

func TestOnRenameChannel_SuffixedFolderKeepsItsName(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	twin := &files.Channel{ID: 44, TeamID: 7, Name: "Design", OwnerID: ownerID}
	f.repo.PutChannel(*twin)
	_, err := f.svc.OnNewChannel(ctx, twin, ownerID)
	require.NoError(t, err)

	ok, err := f.svc.OnRenameChannel(ctx, twin)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.exists(t, "/f/7/Channels/Design (44)/files"))
	assert.True(t, f.exists(t, "/f/7/Channels/Design/files"))
}

func TestOnRenameChannel_ToNameInUse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	brand := &files.Channel{ID: 45, TeamID: 7, Name: "Brand", OwnerID: ownerID}
	f.repo.PutChannel(*brand)
	_, err := f.svc.OnNewChannel(ctx, brand, ownerID)
	require.NoError(t, err)

	brand.Name = "Design"
	f.repo.PutChannel(*brand)
	ok, err := f.svc.OnRenameChannel(ctx, brand)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.False(t, f.exists(t, "/f/7/Channels/Brand"))
	assert.True(t, f.exists(t, "/f/7/Channels/Design (45)/files"))
	assert.True(t, f.exists(t, "/f/7/Channels/Design/files"), "the other channel is untouched")

	paths, err := f.repo.ListChannelPaths(ctx, brand.ID)
	require.NoError(t, err)
	for _, p := range paths {
		assert.Contains(t, p.Path, "/f/7/Channels/Design (45)/")
	}
}

func TestOnRenameChannel_WithoutFilePath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.repo.DeleteChannelPaths(context.Background(), f.channel.ID))

	ok, err := f.svc.OnRenameChannel(context.Background(), f.channel)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, files.ErrStructuralViolation))
}

func TestOnCopyChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	target := &files.Channel{ID: 45, TeamID: 7, Name: "Copy", OwnerID: ownerID}
	f.repo.PutChannel(*target)
	_, err := f.svc.OnNewChannel(ctx, target, ownerID)
	require.NoError(t, err)

	f.upload(t, f.cf(""), "source.txt", "from design")
	f.upload(t, f.cf(""), "trashed.txt", "bye")
	require.NoError(t, f.svc.Delete(ctx, f.cf("/trashed.txt"), ownerID))

	require.NoError(t, f.svc.OnCopyChannel(ctx, f.channel, target, ownerID))

	assert.True(t, f.exists(t, "/f/7/Channels/Copy/files/source.txt"))
	assert.True(t, f.exists(t, "/f/7/Channels/Copy/wiki/index.md"))
	assert.True(t, f.exists(t, "/f/7/Channels/Copy/deleted"))
	assert.False(t, f.exists(t, "/f/7/Channels/Copy/deleted/trashed.txt"), "target trash starts empty")
	assert.True(t, f.exists(t, "/f/7/Channels/Design/deleted/trashed.txt"), "source is untouched")

	entries, err := f.store.Storage.List(ctx, "/f/7/Channels", storage.ListOptions{})
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"Design", "Copy"}, names, "no backup tree is left behind")
}

func TestOnDeleteChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := files.WithTranslationCache(context.Background())
	f.upload(t, f.cf(""), "a.txt", "x")

	_, err := f.svc.Info(ctx, f.cf("/a.txt"), ownerID)
	require.NoError(t, err)

	require.NoError(t, f.svc.OnDeleteChannel(ctx, f.channel))
	assert.False(t, f.exists(t, "/f/7/Channels/Design"))

	paths, err := f.repo.ListChannelPaths(ctx, f.channel.ID)
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = f.svc.Info(ctx, f.cf("/a.txt"), ownerID)
	assert.True(t, errors.Is(err, files.ErrChannelPathNotFound), "cached translation is dropped")

	require.NoError(t, f.svc.OnDeleteChannel(ctx, f.channel), "retry succeeds")
}

func TestOnDeleteTeam(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.OnDeleteTeam(ctx, &files.Team{ID: 7}))
	assert.False(t, f.exists(t, "/f/7"))
	assert.True(t, f.exists(t, "/f/8"), "other teams are untouched")

	paths, err := f.repo.ListChannelPaths(ctx, f.channel.ID)
	require.NoError(t, err)
	assert.Empty(t, paths)

	require.NoError(t, f.svc.OnDeleteTeam(ctx, &files.Team{ID: 7}), "retry succeeds")
}

func TestChannelFolderName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ch   files.Channel
		want string
	}{
		{"plain", files.Channel{ID: 1, Name: "Design"}, "Design"},
		{"trimmed", files.Channel{ID: 1, Name: "  Ops  "}, "Ops"},
		{"slashes", files.Channel{ID: 1, Name: "R/D"}, "R-D"},
		{"nfc", files.Channel{ID: 1, Name: "Cafe\u0301"}, "Caf\u00e9"},
		{"empty", files.Channel{ID: 9, Name: "   "}, "channel-9"},
		{"dots", files.Channel{ID: 3, Name: ".."}, "channel-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, files.ChannelFolderName(&tt.ch))
		})
	}
}
