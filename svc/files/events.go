package files

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/teamfiles/pkg/broadcast"
	"github.com/dmitrymomot/teamfiles/pkg/logger"
)

// EventType discriminates filesystem events.
type EventType string

const (
	EventFileAdded     EventType = "file_added"
	EventFolderCreated EventType = "folder_created"
	EventUpdated       EventType = "updated" // move
	EventCopied        EventType = "copied"
	EventDeleted       EventType = "deleted"
)

// Event describes one successful mutation. Path is the affected path; moves
// and copies also carry From and To.
type Event struct {
	ID         string
	Type       EventType
	Path       *TranslatedPath
	From       *TranslatedPath
	To         *TranslatedPath
	EntryID    string
	Name       string
	Size       int64
	IsFolder   bool
	UserID     int64
	OccurredAt time.Time

	// FileAdded only.
	IsNew              bool
	GenerateBotMessage bool

	// Updated and Copied: the source entry as it was before the operation.
	SourceName string
	SourceSize int64
}

func newEvent(typ EventType, p *TranslatedPath, userID int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Path:       p,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher receives events after the mutation they describe succeeded.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// MultiPublisher publishes to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// BroadcastPublisher fans events out to in-process subscribers.
type BroadcastPublisher struct {
	b *broadcast.MemoryBroadcaster[Event]
}

func NewBroadcastPublisher(b *broadcast.MemoryBroadcaster[Event]) *BroadcastPublisher {
	return &BroadcastPublisher{b: b}
}

func (p *BroadcastPublisher) Publish(ctx context.Context, e Event) error {
	return p.b.Broadcast(ctx, e)
}

// Subscribe registers a subscriber that lives until ctx is done.
func (p *BroadcastPublisher) Subscribe(ctx context.Context) *broadcast.Subscription[Event] {
	return p.b.Subscribe(ctx)
}

// RunIndexer keeps the search index in sync with the events delivered on
// sub until ctx is done or the subscription closes. Index failures are
// logged and skipped.
func RunIndexer(ctx context.Context, sub *broadcast.Subscription[Event], idx Indexer, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("files.indexer"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if err := applyToIndex(ctx, idx, e); err != nil {
				log.ErrorContext(ctx, "failed to update search index",
					logger.Error(err),
					slog.String("event", string(e.Type)),
					slog.String("entry_id", e.EntryID),
				)
			}
		}
	}
}

func applyToIndex(ctx context.Context, idx Indexer, e Event) error {
	switch e.Type {
	case EventDeleted:
		return idx.RemoveDocument(ctx, e.EntryID)
	case EventUpdated:
		if e.From != nil {
			if err := idx.RemoveDocument(ctx, pathEntryID(e.From)); err != nil {
				return err
			}
		}
		return idx.IndexDocument(ctx, documentFor(e.To, e))
	case EventCopied:
		return idx.IndexDocument(ctx, documentFor(e.To, e))
	case EventFileAdded, EventFolderCreated:
		return idx.IndexDocument(ctx, documentFor(e.Path, e))
	default:
		return nil
	}
}

func documentFor(p *TranslatedPath, e Event) Document {
	if p == nil {
		p = e.Path
	}
	return Document{
		EntryID:   e.EntryID,
		TeamID:    p.Team.ID,
		ChannelID: p.channelID(),
		Name:      e.Name,
		Path:      p.PhysicalPath,
		IsFolder:  e.IsFolder,
	}
}
