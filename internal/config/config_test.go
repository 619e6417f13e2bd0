package config

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/splitwc/internal/coordinator"
)

func TestLoadPositional(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		workers   int
		crashRate int
	}{
		{"filename only", []string{"in.txt"}, 1, 0},
		{"workers and rate", []string{"in.txt", "4", "20"}, 4, 20},
		{"workers clamped low", []string{"in.txt", "0"}, 1, 0},
		{"workers clamped high", []string{"in.txt", "64"}, 10, 0},
		{"negative workers", []string{"in.txt", "-3"}, 1, 0},
		{"rate clamped high", []string{"in.txt", "2", "90"}, 2, 50},
		{"rate clamped low", []string{"in.txt", "2", "-5"}, 2, 0},
		{"non numeric counts as zero", []string{"in.txt", "many", "lots"}, 1, 0},
		{"trailing garbage ignored", []string{"in.txt", "7x", "12%"}, 7, 12},
		{"overflow saturates high", []string{"in.txt", "99999999999999999999", "99999999999999999999"}, 10, 50},
		{"negative overflow saturates low", []string{"in.txt", "-99999999999999999999", "-99999999999999999999"}, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.args)
			require.NoError(t, err)
			assert.Equal(t, "in.txt", cfg.Path)
			assert.Equal(t, tt.workers, cfg.Workers)
			assert.Equal(t, tt.crashRate, cfg.CrashRate)
		})
	}
}

func TestAtoi(t *testing.T) {
	assert.Equal(t, 42, atoi(" +42abc"))
	assert.Equal(t, -7, atoi("-7"))
	assert.Equal(t, 0, atoi("x1"))
	assert.Equal(t, 0, atoi(""))
	assert.Equal(t, math.MaxInt, atoi("99999999999999999999"))
	assert.Equal(t, math.MinInt, atoi("-99999999999999999999"))
}

func TestLoadMissingFilename(t *testing.T) {
	_, err := Load(nil)
	assert.ErrorIs(t, err, ErrUsage)

	_, err = Load([]string{""})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"in.txt"})
	require.NoError(t, err)
	assert.Equal(t, IsolationProcess, cfg.Isolation)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Backoff)
	assert.Equal(t, time.Duration(0), cfg.MaxBackoff)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SPLITWC_ISOLATION", "Goroutine")
	t.Setenv("SPLITWC_MAX_ATTEMPTS", "5")
	t.Setenv("SPLITWC_BACKOFF", "10ms")
	t.Setenv("SPLITWC_MAX_BACKOFF", "1s")

	cfg, err := Load([]string{"in.txt", "3", "10"})
	require.NoError(t, err)
	assert.Equal(t, IsolationGoroutine, cfg.Isolation)

	assert.Equal(t, coordinator.Config{
		Workers:     3,
		MaxAttempts: 5,
		Backoff:     10 * time.Millisecond,
		MaxBackoff:  time.Second,
	}, cfg.Supervisor())
}

func TestLoadInvalidEnvironment(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SPLITWC_ISOLATION", "thread"},
		{"SPLITWC_MAX_ATTEMPTS", "-1"},
		{"SPLITWC_MAX_ATTEMPTS", "three"},
		{"SPLITWC_BACKOFF", "soon"},
		{"SPLITWC_MAX_BACKOFF", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load([]string{"in.txt"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
