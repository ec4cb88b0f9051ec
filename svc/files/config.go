package files

import "time"

// Config holds the orchestrator tunables.
type Config struct {
	UploadLockTimeout time.Duration `env:"FILES_UPLOAD_LOCK_TIMEOUT" envDefault:"10s"`
	ThumbLockTimeout  time.Duration `env:"FILES_THUMB_LOCK_TIMEOUT" envDefault:"30s"`
	LockTTL           time.Duration `env:"FILES_LOCK_TTL" envDefault:"60s"`
	LockPollInterval  time.Duration `env:"FILES_LOCK_POLL_INTERVAL" envDefault:"50ms"`

	MaxThumbSourceSize int64 `env:"FILES_MAX_THUMB_SOURCE_SIZE" envDefault:"52428800"` // 50 MiB
	DefaultListLimit   int   `env:"FILES_DEFAULT_LIST_LIMIT" envDefault:"30"`
	ZipPageSize        int   `env:"FILES_ZIP_PAGE_SIZE" envDefault:"200"`
	SearchLimit        int   `env:"FILES_SEARCH_LIMIT" envDefault:"500"`

	TempDir    string `env:"FILES_TEMP_DIR"`    // os.TempDir() when empty
	TablesPath string `env:"FILES_TABLES_PATH"` // optional YAML override of DefaultTables
}

// DefaultConfig mirrors the envDefault tags for callers that build the
// service without the env loader.
func DefaultConfig() Config {
	return Config{
		UploadLockTimeout:  10 * time.Second,
		ThumbLockTimeout:   30 * time.Second,
		LockTTL:            60 * time.Second,
		LockPollInterval:   50 * time.Millisecond,
		MaxThumbSourceSize: 50 << 20,
		DefaultListLimit:   30,
		ZipPageSize:        200,
		SearchLimit:        500,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.UploadLockTimeout <= 0 {
		c.UploadLockTimeout = d.UploadLockTimeout
	}
	if c.ThumbLockTimeout <= 0 {
		c.ThumbLockTimeout = d.ThumbLockTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.LockPollInterval <= 0 {
		c.LockPollInterval = d.LockPollInterval
	}
	if c.MaxThumbSourceSize <= 0 {
		c.MaxThumbSourceSize = d.MaxThumbSourceSize
	}
	if c.DefaultListLimit <= 0 {
		c.DefaultListLimit = d.DefaultListLimit
	}
	if c.ZipPageSize <= 0 {
		c.ZipPageSize = d.ZipPageSize
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	return c
}
