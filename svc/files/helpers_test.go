package files_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/teamfiles/pkg/lock"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
	"github.com/dmitrymomot/teamfiles/svc/files"
)

// Users of the default fixture.
const (
	ownerID    int64 = 1 // owns team 7
	personalID int64 = 2 // owns the personal team 8
	guestID    int64 = 3 // guest in channel Design
	memberID   int64 = 4 // member in channel Design
	strangerID int64 = 5 // no role anywhere
)

type recorder struct {
	mu     sync.Mutex
	events []files.Event
}

func (r *recorder) Publish(_ context.Context, e files.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) all() []files.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]files.Event(nil), r.events...)
}

func (r *recorder) last(t *testing.T) files.Event {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

// spyStore counts backend calls.
type spyStore struct {
	storage.Storage
	calls atomic.Int64
}

func (s *spyStore) Info(ctx context.Context, p string) (*storage.Entry, error) {
	s.calls.Add(1)
	return s.Storage.Info(ctx, p)
}

func (s *spyStore) Exists(ctx context.Context, p string) (bool, error) {
	s.calls.Add(1)
	return s.Storage.Exists(ctx, p)
}

func (s *spyStore) List(ctx context.Context, dir string, opts storage.ListOptions) ([]storage.Entry, error) {
	s.calls.Add(1)
	return s.Storage.List(ctx, dir, opts)
}

func (s *spyStore) CreateFolder(ctx context.Context, p string) (*storage.Entry, error) {
	s.calls.Add(1)
	return s.Storage.CreateFolder(ctx, p)
}

func (s *spyStore) Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadResult, error) {
	s.calls.Add(1)
	return s.Storage.Upload(ctx, in)
}

func (s *spyStore) Download(ctx context.Context, p string, opts storage.DownloadOptions) (*storage.Download, error) {
	s.calls.Add(1)
	return s.Storage.Download(ctx, p, opts)
}

func (s *spyStore) Move(ctx context.Context, from, to string) (*storage.Entry, error) {
	s.calls.Add(1)
	return s.Storage.Move(ctx, from, to)
}

func (s *spyStore) Copy(ctx context.Context, from, to string) (*storage.Entry, error) {
	s.calls.Add(1)
	return s.Storage.Copy(ctx, from, to)
}

func (s *spyStore) Delete(ctx context.Context, p string) error {
	s.calls.Add(1)
	return s.Storage.Delete(ctx, p)
}

func (s *spyStore) Versions(ctx context.Context, p string) ([]storage.Entry, error) {
	s.calls.Add(1)
	return s.Storage.Versions(ctx, p)
}

func (s *spyStore) PutSidecar(ctx context.Context, entryID, key string, body io.Reader) error {
	s.calls.Add(1)
	return s.Storage.PutSidecar(ctx, entryID, key, body)
}

func (s *spyStore) GetSidecar(ctx context.Context, entryID, key string) (io.ReadCloser, error) {
	s.calls.Add(1)
	return s.Storage.GetSidecar(ctx, entryID, key)
}

func (s *spyStore) DeleteSidecars(ctx context.Context, entryID string) error {
	s.calls.Add(1)
	return s.Storage.DeleteSidecars(ctx, entryID)
}

// spyLocker counts acquisition attempts.
type spyLocker struct {
	lock.Locker
	tries atomic.Int64
}

func (l *spyLocker) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.tries.Add(1)
	return l.Locker.TryLock(ctx, key, owner, ttl)
}

type fixture struct {
	svc     *files.Service
	repo    *files.MemoryRepository
	store   *spyStore
	locker  *spyLocker
	events  *recorder
	channel *files.Channel
	paths   map[files.ChannelPathType]files.ChannelPath
}

// newFixture provisions team 7 ("Acme", owned by ownerID) with channel 42
// ("Design") and the personal team 8 of personalID.
func newFixture(t *testing.T, opts ...files.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	repo := files.NewMemoryRepository()
	repo.PutTeam(files.Team{ID: 7, Name: "Acme", OwnerID: ownerID})
	repo.PutTeam(files.Team{ID: 8, Name: "Personal", OwnerID: personalID, Personal: true})
	channel := &files.Channel{ID: 42, TeamID: 7, Name: "Design", OwnerID: ownerID}
	repo.PutChannel(*channel)
	repo.SetChannelRole(guestID, channel.ID, files.RoleGuest)
	repo.SetChannelRole(memberID, channel.ID, files.RoleMember)

	local, err := storage.NewLocalStorage(t.TempDir(), storage.WithLocalTempDir(t.TempDir()))
	require.NoError(t, err)
	store := &spyStore{Storage: local}
	locker := &spyLocker{Locker: lock.NewMemoryLocker()}
	events := &recorder{}

	authz, err := files.NewRBACAuthorizer(ctx, repo, nil)
	require.NoError(t, err)

	cfg := files.DefaultConfig()
	cfg.TempDir = t.TempDir()
	cfg.LockPollInterval = 5 * time.Millisecond

	svc := files.New(repo, store, locker, append([]files.Option{
		files.WithAuthorizer(authz),
		files.WithPublisher(events),
		files.WithConfig(cfg),
	}, opts...)...)

	require.NoError(t, svc.OnNewTeam(ctx, &files.Team{ID: 7, Name: "Acme", OwnerID: ownerID}, ownerID))
	require.NoError(t, svc.OnNewTeam(ctx, &files.Team{ID: 8, Name: "Personal", OwnerID: personalID, Personal: true}, personalID))
	created, err := svc.OnNewChannel(ctx, channel, ownerID)
	require.NoError(t, err)

	paths := make(map[files.ChannelPathType]files.ChannelPath, len(created))
	for _, p := range created {
		paths[p.Type] = p
	}
	store.calls.Store(0)
	locker.tries.Store(0)

	return &fixture{
		svc:     svc,
		repo:    repo,
		store:   store,
		locker:  locker,
		events:  events,
		channel: channel,
		paths:   paths,
	}
}

func (f *fixture) cf(sub string) string {
	return "/cf/" + strconv.FormatInt(f.paths[files.ChannelPathFile].ID, 10) + sub
}

func (f *fixture) wf(sub string) string {
	return "/wf/" + strconv.FormatInt(f.paths[files.ChannelPathWiki].ID, 10) + sub
}

func (f *fixture) upload(t *testing.T, parent, name, content string) *files.Object {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), files.UploadRequest{
		ParentPath: parent,
		Name:       name,
		Body:       strings.NewReader(content),
		Final:      true,
		Session:    "fixture",
		UserID:     ownerID,
	})
	require.NoError(t, err)
	require.True(t, res.Complete)
	return res.Object
}

func (f *fixture) exists(t *testing.T, physical string) bool {
	t.Helper()
	ok, err := f.store.Storage.Exists(context.Background(), physical)
	require.NoError(t, err)
	return ok
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
