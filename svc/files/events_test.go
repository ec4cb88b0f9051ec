package files_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/teamfiles/pkg/broadcast"
	"github.com/dmitrymomot/teamfiles/svc/files"
)

func TestMultiPublisher_JoinsErrors(t *testing.T) {
	t.Parallel()
	errA := errors.New("a")
	var delivered int
	mp := files.MultiPublisher{
		files.PublisherFunc(func(context.Context, files.Event) error { return errA }),
		files.PublisherFunc(func(context.Context, files.Event) error { delivered++; return nil }),
	}

	err := mp.Publish(context.Background(), files.Event{Type: files.EventDeleted})
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, delivered, "later publishers still run")
}

func TestRunIndexer_FollowsMutations(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := broadcast.NewMemoryBroadcaster[files.Event](16)
	t.Cleanup(func() { bus.Close() })
	pub := files.NewBroadcastPublisher(bus)
	idx := newMemIndex()

	sub := pub.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		files.RunIndexer(ctx, sub, idx, nil)
	}()

	f := newFixture(t, files.WithPublisher(pub))

	has := func(name string) func() bool {
		return func() bool { _, ok := idx.byName(name); return ok }
	}

	added := f.upload(t, f.cf(""), "plan.txt", "roadmap")
	require.Eventually(t, has("plan.txt"), time.Second, 5*time.Millisecond)
	doc, _ := idx.byName("plan.txt")
	assert.Equal(t, added.ID, doc.EntryID)
	assert.Equal(t, int64(7), doc.TeamID)
	assert.Equal(t, f.channel.ID, doc.ChannelID)
	assert.Equal(t, "/f/7/Channels/Design/files/plan.txt", doc.Path)

	_, err := f.svc.CopyOrMove(context.Background(), f.cf("/plan.txt"), f.cf("/final.txt"), ownerID, false)
	require.NoError(t, err)
	require.Eventually(t, has("final.txt"), time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !has("plan.txt")() }, time.Second, 5*time.Millisecond)

	_, err = f.svc.CreateFolder(context.Background(), f.cf(""), "Specs", ownerID)
	require.NoError(t, err)
	require.Eventually(t, has("Specs"), time.Second, 5*time.Millisecond)
	specs, _ := idx.byName("Specs")
	assert.True(t, specs.IsFolder)

	require.NoError(t, f.svc.Delete(context.Background(), f.cf("/final.txt"), ownerID))
	require.Eventually(t, func() bool { return !has("final.txt")() }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("indexer did not stop")
	}
}
