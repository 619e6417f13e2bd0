// Package config turns command-line arguments and environment variables into
// a validated run configuration.
//
// Positional arguments:
//
//	splitwc <filename> [# workers] [crash rate]
//
// Environment variables tune isolation and the retry policy:
//   - SPLITWC_ISOLATION: "process" (default) or "goroutine"
//   - SPLITWC_MAX_ATTEMPTS: attempts per range, 0 = unbounded (default 0)
//   - SPLITWC_BACKOFF: delay before the first respawn, e.g. "10ms" (default 0)
//   - SPLITWC_MAX_BACKOFF: cap on the doubled delay (default 0 = no cap)
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/splitwc/internal/coordinator"
)

// Bounds applied to the positional arguments.
const (
	MinWorkers   = 1
	MaxWorkers   = 10
	MinCrashRate = 0
	MaxCrashRate = 50
)

// ErrUsage is returned when the filename is missing.
var ErrUsage = errors.New("usage: splitwc <filename> [# workers] [crash rate]")

// Isolation selects how workers are separated from the coordinator.
type Isolation string

const (
	// IsolationProcess runs each attempt in a child process
	IsolationProcess Isolation = "process"
	// IsolationGoroutine runs each attempt in a goroutine behind recover
	IsolationGoroutine Isolation = "goroutine"
)

var isolations = []Isolation{IsolationProcess, IsolationGoroutine}

// Config is the complete configuration of one run.
type Config struct {
	Path        string
	Workers     int
	CrashRate   int // percent
	Isolation   Isolation
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// Load parses positional arguments (without the program name) and reads the
// SPLITWC_* environment variables.
//
// Worker count and crash rate are clamped to their bounds rather than
// rejected; unparsable values count as 0, like atoi. Invalid environment
// values are errors.
func Load(args []string) (Config, error) {
	if len(args) < 1 || args[0] == "" {
		return Config{}, ErrUsage
	}

	cfg := Config{
		Path:      args[0],
		Workers:   MinWorkers,
		CrashRate: MinCrashRate,
	}
	if len(args) > 1 {
		cfg.Workers = clamp(atoi(args[1]), MinWorkers, MaxWorkers)
	}
	if len(args) > 2 {
		cfg.CrashRate = clamp(atoi(args[2]), MinCrashRate, MaxCrashRate)
	}

	cfg.Isolation = Isolation(strings.ToLower(getenv("SPLITWC_ISOLATION", string(IsolationProcess))))
	if !slices.Contains(isolations, cfg.Isolation) {
		return Config{}, fmt.Errorf("SPLITWC_ISOLATION: unknown isolation %q", cfg.Isolation)
	}

	var err error
	if cfg.MaxAttempts, err = strconv.Atoi(getenv("SPLITWC_MAX_ATTEMPTS", "0")); err != nil || cfg.MaxAttempts < 0 {
		return Config{}, fmt.Errorf("SPLITWC_MAX_ATTEMPTS: must be a non-negative integer")
	}
	if cfg.Backoff, err = duration("SPLITWC_BACKOFF"); err != nil {
		return Config{}, err
	}
	if cfg.MaxBackoff, err = duration("SPLITWC_MAX_BACKOFF"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Supervisor returns the coordinator settings of the run.
func (c Config) Supervisor() coordinator.Config {
	return coordinator.Config{
		Workers:     c.Workers,
		MaxAttempts: c.MaxAttempts,
		Backoff:     c.Backoff,
		MaxBackoff:  c.MaxBackoff,
	}
}

// getenv retrieves an environment variable with a default fallback.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func duration(k string) (time.Duration, error) {
	d, err := time.ParseDuration(getenv(k, "0s"))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: must be a non-negative duration", k)
	}
	return d, nil
}

// atoi parses a leading optional sign and digits, ignoring the rest.
// Values beyond the range of int saturate at math.MaxInt or math.MinInt.
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if errors.Is(err, strconv.ErrRange) {
		if s[0] == '-' {
			return math.MinInt
		}
		return math.MaxInt
	}
	if err != nil {
		return 0
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
