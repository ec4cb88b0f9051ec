// Command filesd serves the team file system over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/teamfiles/internal/db"
	filesmod "github.com/dmitrymomot/teamfiles/modules/files"
	"github.com/dmitrymomot/teamfiles/pkg/broadcast"
	"github.com/dmitrymomot/teamfiles/pkg/config"
	"github.com/dmitrymomot/teamfiles/pkg/environment"
	"github.com/dmitrymomot/teamfiles/pkg/httpserver"
	"github.com/dmitrymomot/teamfiles/pkg/lock"
	"github.com/dmitrymomot/teamfiles/pkg/logger"
	"github.com/dmitrymomot/teamfiles/pkg/opensearch"
	"github.com/dmitrymomot/teamfiles/pkg/pg"
	"github.com/dmitrymomot/teamfiles/pkg/rbac"
	"github.com/dmitrymomot/teamfiles/pkg/redis"
	"github.com/dmitrymomot/teamfiles/pkg/requestid"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
	"github.com/dmitrymomot/teamfiles/svc/files"
)

type appConfig struct {
	Env string `env:"APP_ENV" envDefault:"development"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"local"` // local or s3
	StorageDir    string `env:"STORAGE_DIR" envDefault:"./data/files"`
	StorageURL    string `env:"STORAGE_BASE_URL"`

	// UserHeader carries the authenticated user id, set by the gateway in
	// front of the service.
	UserHeader string `env:"USER_ID_HEADER" envDefault:"X-User-ID"`
	StockURL   string `env:"STOCK_IMAGES_URL"`
	RolesPath  string `env:"FILES_ROLES_PATH"`
	// HooksToken guards the lifecycle hooks called by the platform. The
	// hooks are not served without it.
	HooksToken string `env:"FILES_HOOKS_TOKEN"`

	Search        bool          `env:"SEARCH_ENABLED" envDefault:"true"`
	EventBuffer   int           `env:"EVENT_BUFFER" envDefault:"256"`
	LockPrefix    string        `env:"LOCK_KEY_PREFIX" envDefault:"teamfiles:lock:"`
	HealthTimeout time.Duration `env:"HEALTH_TIMEOUT" envDefault:"2s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("filesd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = config.LoadEnv()

	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}
	log := logger.New(
		logger.WithEnvironment(environment.Parse(app.Env), "filesd"),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	slog.SetDefault(log)

	var (
		filesCfg files.Config
		pgCfg    pg.Config
		redisCfg redis.Config
		osCfg    opensearch.Config
		httpCfg  httpserver.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&filesCfg) },
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&httpCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, db.Migrations, log); err != nil {
		return err
	}
	repo := files.NewPostgresRepository(pool)

	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	locker := lock.NewRedisLocker(rdb, lock.WithKeyPrefix(app.LockPrefix))

	store, err := openStorage(ctx, app, filesCfg)
	if err != nil {
		return err
	}

	tables := files.DefaultTables()
	if filesCfg.TablesPath != "" {
		if tables, err = loadTables(filesCfg.TablesPath); err != nil {
			return err
		}
	}

	var roles rbac.RoleSource
	if app.RolesPath != "" {
		if roles, err = loadRoles(app.RolesPath); err != nil {
			return err
		}
	}
	authz, err := files.NewRBACAuthorizer(ctx, repo, roles)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bus := broadcast.NewMemoryBroadcaster[files.Event](app.EventBuffer)
	defer bus.Close()
	publisher := files.NewBroadcastPublisher(bus)

	opts := []files.Option{
		files.WithAuthorizer(authz),
		files.WithPublisher(publisher),
		files.WithTables(tables),
		files.WithConfig(filesCfg),
		files.WithLogger(log),
		files.WithMetrics(files.NewMetrics(reg)),
	}

	checks := map[string]httpserver.Check{
		"postgres": pg.Healthcheck(pool),
		"redis":    redis.Healthcheck(rdb),
	}

	if app.Search {
		if err := config.Load(&osCfg); err != nil {
			return err
		}
		client, err := opensearch.New(ctx, osCfg)
		if err != nil {
			return err
		}
		index := files.NewOpenSearchIndex(opensearch.NewDocuments(client, osCfg.Index), filesCfg.SearchLimit)
		if err := index.EnsureIndex(ctx); err != nil {
			return err
		}
		opts = append(opts, files.WithSearcher(index), files.WithIndexer(index))
		checks["opensearch"] = opensearch.Healthcheck(client)

		sub := publisher.Subscribe(ctx)
		go files.RunIndexer(ctx, sub, index, log)
	}

	svc := files.New(repo, store, locker, opts...)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestid.Middleware)
	r.Get("/health", httpserver.Health(log, app.HealthTimeout, checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/files", filesmod.Router(svc, filesmod.RouterOptions{
		UserID:   headerUserID(app.UserHeader),
		StockURL: stockURL(app.StockURL),
		Redirect: app.StorageDriver == "s3" || app.StorageURL != "",
		Logger:   log,
	}))
	if app.HooksToken != "" {
		r.Mount("/internal/hooks", filesmod.HooksRouter(svc, repo, filesmod.HooksOptions{
			Token:  app.HooksToken,
			Logger: log,
		}))
	} else {
		log.WarnContext(ctx, "lifecycle hooks disabled, FILES_HOOKS_TOKEN is not set")
	}

	return httpserver.New(httpCfg, httpserver.WithLogger(log)).Run(ctx, r)
}

func openStorage(ctx context.Context, app appConfig, cfg files.Config) (storage.Storage, error) {
	switch app.StorageDriver {
	case "local":
		opts := []storage.LocalOption{storage.WithLocalTempDir(cfg.TempDir)}
		if app.StorageURL != "" {
			opts = append(opts, storage.WithLocalBaseURL(app.StorageURL))
		}
		return storage.NewLocalStorage(app.StorageDir, opts...)
	case "s3":
		var s3Cfg storage.S3Config
		if err := config.Load(&s3Cfg); err != nil {
			return nil, err
		}
		return storage.NewS3Storage(ctx, s3Cfg, storage.WithS3TempDir(cfg.TempDir))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", app.StorageDriver)
	}
}

func loadTables(path string) (files.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return files.Tables{}, err
	}
	defer f.Close()
	return files.LoadTables(f)
}

func loadRoles(path string) (rbac.RoleSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return rbac.ParseYAML(f)
}

func headerUserID(header string) func(*http.Request) (int64, bool) {
	return func(r *http.Request) (int64, bool) {
		id, err := strconv.ParseInt(r.Header.Get(header), 10, 64)
		return id, err == nil && id > 0
	}
}

func stockURL(base string) func(files.StockImage) string {
	if base == "" {
		return nil
	}
	return func(img files.StockImage) string {
		return base + "/" + img.Category + "/" + img.Name
	}
}

