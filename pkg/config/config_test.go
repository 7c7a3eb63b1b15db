package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/config"
)

type testConfig struct {
	Addr     string        `env:"TEST_ADDR" envDefault:":8080"`
	Timeout  time.Duration `env:"TEST_TIMEOUT" envDefault:"10s"`
	FeeBps   int64         `env:"TEST_FEE_BPS" envDefault:"300"`
	Required string        `env:"TEST_REQUIRED,required"`
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED", "set")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
		assert.Equal(t, int64(300), cfg.FeeBps)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED", "set")
		t.Setenv("TEST_ADDR", ":9090")
		t.Setenv("TEST_TIMEOUT", "1m")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, time.Minute, cfg.Timeout)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg testConfig
		assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	})

	t.Run("unparseable value", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED", "set")
		t.Setenv("TEST_TIMEOUT", "not-a-duration")

		var cfg testConfig
		assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		assert.ErrorIs(t, config.Load[testConfig](nil), config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics when loading fails", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg testConfig
			config.MustLoad(&cfg)
		})
	})

	t.Run("returns normally on success", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED", "set")
		assert.NotPanics(t, func() {
			var cfg testConfig
			config.MustLoad(&cfg)
		})
	})
}
