package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/teamfiles/pkg/config"
)

type defaultsConfig struct {
	Timeout time.Duration `env:"CFG_TEST_TIMEOUT" envDefault:"10s"`
	Limit   int           `env:"CFG_TEST_LIMIT" envDefault:"30"`
	Enabled bool          `env:"CFG_TEST_ENABLED" envDefault:"true"`
}

type overrideConfig struct {
	Name string `env:"CFG_TEST_NAME" envDefault:"default"`
}

type requiredConfig struct {
	Value string `env:"CFG_TEST_REQUIRED,required"`
}

type fileConfig struct {
	FromFile string   `env:"CFG_TEST_FROM_FILE"`
	List     []string `env:"CFG_TEST_LIST" envSeparator:","`
}

// These tests mutate the process environment and the shared cache, so they
// run sequentially.

func TestLoad_Defaults(t *testing.T) {
	config.ResetCache()

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 30, cfg.Limit)
	assert.True(t, cfg.Enabled)
}

func TestLoad_CachedPerType(t *testing.T) {
	config.ResetCache()
	t.Setenv("CFG_TEST_NAME", "first")

	var a overrideConfig
	require.NoError(t, config.Load(&a))
	assert.Equal(t, "first", a.Name)

	t.Setenv("CFG_TEST_NAME", "second")
	var b overrideConfig
	require.NoError(t, config.Load(&b))
	assert.Equal(t, "first", b.Name)

	config.ResetCache()
	var c overrideConfig
	require.NoError(t, config.Load(&c))
	assert.Equal(t, "second", c.Name)
}

func TestLoad_RequiredRetriesAfterFailure(t *testing.T) {
	config.ResetCache()

	var cfg requiredConfig
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	t.Setenv("CFG_TEST_REQUIRED", "present")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "present", cfg.Value)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *defaultsConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestMustLoad_Panics(t *testing.T) {
	config.ResetCache()
	_ = os.Unsetenv("CFG_TEST_REQUIRED")

	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()

	dir := t.TempDir()
	file := filepath.Join(dir, ".env.test")
	require.NoError(t, os.WriteFile(file, []byte("CFG_TEST_FROM_FILE=loaded\nCFG_TEST_LIST=a,b,c\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("CFG_TEST_FROM_FILE")
		_ = os.Unsetenv("CFG_TEST_LIST")
	})

	require.NoError(t, config.LoadEnv(file))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "loaded", cfg.FromFile)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.List)

	assert.ErrorIs(t, config.LoadEnv(filepath.Join(dir, "missing")), config.ErrLoadingEnvFile)
}
