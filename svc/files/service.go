package files

import (
	"context"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/teamfiles/pkg/lock"
	"github.com/dmitrymomot/teamfiles/pkg/logger"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// Service is the file operation orchestrator. Every operation translates the
// logical path, checks the capability, serialises mutations that need it,
// calls the storage backend and publishes an event once the mutation
// succeeded.
type Service struct {
	repo       Repository
	store      storage.Storage
	locker     lock.Locker
	translator *Translator
	authz      Authorizer
	publisher  Publisher
	searcher   Searcher
	indexer    Indexer
	tables     Tables
	cfg        Config
	log        *slog.Logger
	metrics    *Metrics
	resize     Resizer
	wiki       fs.FS
}

// Option configures the Service.
type Option func(*Service)

// WithAuthorizer sets the capability oracle. Without it every check fails.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) { s.authz = a }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithSearcher enables the query parameter of List.
func WithSearcher(sr Searcher) Option {
	return func(s *Service) { s.searcher = sr }
}

// WithIndexer receives the files seeded into new channel wikis.
func WithIndexer(i Indexer) Option {
	return func(s *Service) { s.indexer = i }
}

func WithTables(t Tables) Option {
	return func(s *Service) { s.tables = t }
}

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithResizer replaces DefaultResizer.
func WithResizer(r Resizer) Option {
	return func(s *Service) { s.resize = r }
}

// WithWikiTemplate sets the tree copied into every new channel wiki.
func WithWikiTemplate(fsys fs.FS) Option {
	return func(s *Service) { s.wiki = fsys }
}

// New builds the orchestrator over repo, store and locker.
func New(repo Repository, store storage.Storage, locker lock.Locker, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		store:      store,
		locker:     locker,
		translator: NewTranslator(repo),
		authz:      AuthorizerFunc(denyAll),
		publisher:  nopPublisher{},
		indexer:    nopIndexer{},
		tables:     DefaultTables(),
		cfg:        DefaultConfig(),
		resize:     ResizerFunc(DefaultResizer),
		wiki:       defaultWikiTemplate(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.withDefaults()
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(logger.Component("files"))
	return s
}

// Translate exposes the path translator bound to the service repository.
func (s *Service) Translate(ctx context.Context, logical string) (*TranslatedPath, error) {
	return s.translator.Translate(ctx, logical)
}

// ThumbSizeAllowed reports whether w x h is in the thumbnail allow-list.
func (s *Service) ThumbSizeAllowed(w, h int) bool { return s.tables.SizeAllowed(w, h) }

// resolve translates logical and checks capability c on it.
func (s *Service) resolve(ctx context.Context, logical string, userID int64, c Capability) (*TranslatedPath, error) {
	tp, err := s.translator.Translate(ctx, logical)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, userID, c, tp); err != nil {
		return nil, err
	}
	return tp, nil
}

// acquire takes the critical section on a physical path.
func (s *Service) acquire(ctx context.Context, op, key, owner string, timeout time.Duration) (*lock.Guard, error) {
	if owner == "" {
		owner = uuid.NewString()
	}
	start := time.Now()
	g, err := lock.Acquire(ctx, s.locker, key, owner,
		lock.WithTimeout(timeout),
		lock.WithTTL(s.cfg.LockTTL),
		lock.WithPollInterval(s.cfg.LockPollInterval),
	)
	err = mapLockError(err)
	s.metrics.observeLock(op, time.Since(start), err)
	return g, err
}

func (s *Service) release(ctx context.Context, g *lock.Guard) {
	if err := g.Release(context.WithoutCancel(ctx)); err != nil {
		s.log.WarnContext(ctx, "failed to release lock", logger.Path(g.Key()), logger.Error(err))
	}
}

// publish delivers e. Failures are logged; the mutation already happened.
func (s *Service) publish(ctx context.Context, e Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.ErrorContext(ctx, "failed to publish event",
			logger.Error(err),
			slog.String("event", string(e.Type)),
			slog.String("entry_id", e.EntryID),
		)
	}
}

// done records the outcome of op and logs backend failures.
func (s *Service) done(ctx context.Context, op, path string, userID int64, err error) {
	s.metrics.observeOp(op, err)
	if isBackendFailure(err) {
		s.log.ErrorContext(ctx, "file operation failed",
			logger.Operation(op),
			logger.Path(path),
			logger.UserID(userID),
			logger.Error(err),
		)
	}
}

// validName checks a single path segment supplied by the caller.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\x00")
}
