// Package coordinator provides the orchestration layer of splitwc.
// This file contains tests for the supervisor, retry controllers and aggregator.
package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/splitwc/internal/counter"
	"github.com/dreamware/splitwc/internal/partition"
	"github.com/dreamware/splitwc/internal/storage"
	"github.com/dreamware/splitwc/internal/worker"
)

const sample = "a b c\nd e\n"

func quietSupervisor(l worker.Launcher, cfg Config) *Supervisor {
	s := NewSupervisor(l, cfg)
	s.SetLogger(log.New(io.Discard, "", 0))
	return s
}

func crashed(r partition.Range, attempt int) <-chan worker.Outcome {
	ch := make(chan worker.Outcome, 1)
	ch <- worker.Outcome{
		Index:   r.Index,
		Attempt: attempt,
		Err:     fmt.Errorf("%w: scripted", worker.ErrAbnormalTermination),
	}
	return ch
}

// runWithTimeout fails the test instead of hanging when Run does not return.
func runWithTimeout(t *testing.T, s *Supervisor, ctx context.Context, size int64) (counter.Counts, error) {
	t.Helper()
	type result struct {
		counts counter.Counts
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, err := s.Run(ctx, size)
		done <- result{c, err}
	}()
	select {
	case res := <-done:
		return res.counts, res.err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return counter.Counts{}, nil
	}
}

// TestNewSupervisor verifies that NewSupervisor creates a properly configured instance.
func TestNewSupervisor(t *testing.T) {
	l := worker.NewGoroutineLauncher(storage.NewMemorySource("s", nil), counter.Count)
	s := NewSupervisor(l, DefaultConfig())

	assert.NotNil(t, s)
	assert.Equal(t, 1, s.cfg.Workers)
	assert.Equal(t, 0, s.cfg.MaxAttempts)
	assert.Equal(t, log.Default(), s.logger)
	assert.NotNil(t, s.jobs)
	assert.Empty(t, s.Jobs())
	assert.Equal(t, Stats{}, s.Stats())

	s.SetLogger(nil)
	assert.Equal(t, log.Default(), s.logger)
}

// TestRunEndToEnd counts a small input without crashes.
func TestRunEndToEnd(t *testing.T) {
	src := storage.NewMemorySource("sample", []byte(sample))
	s := quietSupervisor(worker.NewGoroutineLauncher(src, counter.NewCountFunc(0)), Config{Workers: 2})

	total, err := runWithTimeout(t, s, context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, counter.Counts{Lines: 2, Words: 5, Chars: 10}, total)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	for i, job := range jobs {
		assert.Equal(t, i, job.Range.Index)
		assert.Equal(t, JobStateSucceeded, job.State)
		assert.Equal(t, 1, job.Attempt)
		assert.Equal(t, 0, job.Crashes)
		assert.NotEmpty(t, job.WorkerID)
		assert.False(t, job.FinishedAt.IsZero())
	}
	assert.Equal(t, counter.Counts{Lines: 0, Words: 3, Chars: 5}, jobs[0].Counts)
	assert.Equal(t, counter.Counts{Lines: 2, Words: 2, Chars: 5}, jobs[1].Counts)

	stats := s.Stats()
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 2, stats.Partitions)
	assert.Equal(t, int64(2), stats.Attempts)
	assert.Equal(t, int64(0), stats.Crashes)
}

// TestRunRespawnsSameRange scripts a fixed number of crashes per range and
// verifies each respawn receives the identical range with attempt+1.
func TestRunRespawnsSameRange(t *testing.T) {
	src := storage.NewMemorySource("sample", []byte(sample))
	inner := worker.NewGoroutineLauncher(src, counter.Count)
	crashesFor := map[int]int{0: 3, 1: 0, 2: 1}

	var mu sync.Mutex
	seen := make(map[int][]partition.Range)
	attempts := make(map[int][]int)

	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		mu.Lock()
		seen[r.Index] = append(seen[r.Index], r)
		attempts[r.Index] = append(attempts[r.Index], attempt)
		mu.Unlock()
		if attempt <= crashesFor[r.Index] {
			return crashed(r, attempt), nil
		}
		return inner.Launch(ctx, r, attempt)
	})

	var crashCalls atomic.Int32
	s := quietSupervisor(launcher, Config{Workers: 3})
	s.SetOnCrash(func(job Job) {
		crashCalls.Add(1)
		assert.Equal(t, JobStateCrashed, job.State)
		assert.ErrorIs(t, job.LastError, worker.ErrAbnormalTermination)
	})

	total, err := runWithTimeout(t, s, context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, counter.Counts{Lines: 2, Words: 5, Chars: 10}, total)
	assert.Equal(t, int32(4), crashCalls.Load())

	for index, n := range crashesFor {
		require.Len(t, seen[index], n+1, "range %d", index)
		for _, r := range seen[index] {
			assert.Equal(t, seen[index][0], r, "range %d changed between attempts", index)
		}
		expected := make([]int, n+1)
		for i := range expected {
			expected[i] = i + 1
		}
		assert.Equal(t, expected, attempts[index])

		job, ok := s.Job(index)
		require.True(t, ok)
		assert.Equal(t, n+1, job.Attempt)
		assert.Equal(t, n, job.Crashes)
	}

	stats := s.Stats()
	assert.Equal(t, int64(7), stats.Attempts)
	assert.Equal(t, int64(4), stats.Crashes)
}

// TestRunConvergesUnderRandomCrashes uses real fault injection at the
// highest clamped crash rate.
func TestRunConvergesUnderRandomCrashes(t *testing.T) {
	input := strings.Repeat("lorem ipsum dolor sit amet\nconsectetur adipiscing\n", 200)
	src := storage.NewMemorySource("lorem", []byte(input))
	expected, err := counter.Count(strings.NewReader(input), 0, int64(len(input)))
	require.NoError(t, err)

	for workers := 1; workers <= 10; workers++ {
		s := quietSupervisor(worker.NewGoroutineLauncher(src, counter.NewCountFunc(50)), Config{Workers: workers})
		total, err := runWithTimeout(t, s, context.Background(), int64(len(input)))
		require.NoError(t, err, "workers=%d", workers)
		assert.Equal(t, expected, total, "workers=%d", workers)

		stats := s.Stats()
		assert.Equal(t, stats.Attempts-stats.Crashes, int64(workers))
	}
}

// TestRunAggregatesInIndexOrder delivers results in reverse order and checks
// that collection and logging still follow the range index.
func TestRunAggregatesInIndexOrder(t *testing.T) {
	const n = 5
	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		ch := make(chan worker.Outcome, 1)
		go func() {
			time.Sleep(time.Duration(n-r.Index) * 20 * time.Millisecond)
			ch <- worker.Outcome{
				Index:   r.Index,
				Attempt: attempt,
				Counts:  counter.Counts{Lines: 1, Words: int64(r.Index), Chars: r.Length},
			}
		}()
		return ch, nil
	})

	var buf bytes.Buffer
	s := NewSupervisor(launcher, Config{Workers: n})
	s.SetLogger(log.New(&buf, "", 0))

	total, err := runWithTimeout(t, s, context.Background(), 17)
	require.NoError(t, err)
	assert.Equal(t, counter.Counts{Lines: 5, Words: 0 + 1 + 2 + 3 + 4, Chars: 17}, total)

	out := buf.String()
	last := -1
	for i := 0; i < n; i++ {
		pos := strings.Index(out, fmt.Sprintf("partition %d:", i))
		require.GreaterOrEqual(t, pos, 0, "missing log line for partition %d", i)
		assert.Greater(t, pos, last, "partition %d logged out of order", i)
		last = pos
	}
	assert.Contains(t, out, "finished: lines=5 words=10 chars=17")
}

// TestRunSpawnFailureIsFatal simulates process exhaustion after k spawns.
// The run must fail without waiting for the ranges that never started.
func TestRunSpawnFailureIsFatal(t *testing.T) {
	const k = 2
	var spawned atomic.Int32

	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		if spawned.Add(1) > k {
			return nil, fmt.Errorf("%w: resource temporarily unavailable", worker.ErrSpawnFailure)
		}
		// never delivers; only cancellation releases the controller
		return make(chan worker.Outcome, 1), nil
	})

	s := quietSupervisor(launcher, Config{Workers: 5})
	total, err := runWithTimeout(t, s, context.Background(), 100)
	assert.ErrorIs(t, err, worker.ErrSpawnFailure)
	assert.True(t, total.IsZero())
}

// TestRunWrapsForeignLaunchErrors checks that any launch error is reported as
// a spawn failure.
func TestRunWrapsForeignLaunchErrors(t *testing.T) {
	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		return nil, fmt.Errorf("fork: out of memory")
	})

	s := quietSupervisor(launcher, Config{Workers: 3})
	_, err := runWithTimeout(t, s, context.Background(), 30)
	assert.ErrorIs(t, err, worker.ErrSpawnFailure)
	assert.Contains(t, err.Error(), "out of memory")
}

// TestRunRetriesExhausted verifies the optional attempt cap.
func TestRunRetriesExhausted(t *testing.T) {
	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		return crashed(r, attempt), nil
	})

	s := quietSupervisor(launcher, Config{Workers: 1, MaxAttempts: 3})
	_, err := runWithTimeout(t, s, context.Background(), 10)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	job, ok := s.Job(0)
	require.True(t, ok)
	assert.Equal(t, 3, job.Attempt)
	assert.Equal(t, 3, job.Crashes)
	assert.Equal(t, JobStateCrashed, job.State)
}

// TestRunCancellation stops a run whose workers never finish.
func TestRunCancellation(t *testing.T) {
	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		return make(chan worker.Outcome, 1), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	s := quietSupervisor(launcher, Config{Workers: 4})
	_, err := runWithTimeout(t, s, ctx, 40)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestRunCancellationDuringBackoff verifies a long backoff does not delay
// cancellation.
func TestRunCancellationDuringBackoff(t *testing.T) {
	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		return crashed(r, attempt), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s := quietSupervisor(launcher, Config{Workers: 2, Backoff: time.Hour})
	start := time.Now()
	_, err := runWithTimeout(t, s, ctx, 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int64(2), s.Stats().Crashes)
}

func TestRunInvalidArgument(t *testing.T) {
	var calls atomic.Int32
	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		calls.Add(1)
		return crashed(r, attempt), nil
	})

	s := quietSupervisor(launcher, Config{Workers: 0})
	_, err := s.Run(context.Background(), 10)
	assert.ErrorIs(t, err, partition.ErrInvalidArgument)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRunRangesRejectsBadCoverage(t *testing.T) {
	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		t.Fatal("launcher should not be called")
		return nil, nil
	})

	s := quietSupervisor(launcher, Config{Workers: 2})
	ranges := []partition.Range{
		{Index: 0, Offset: 0, Length: 4},
		{Index: 1, Offset: 4, Length: 4},
	}
	_, err := s.RunRanges(context.Background(), ranges, 10)
	assert.ErrorIs(t, err, partition.ErrInvalidArgument)
}

func TestRunZeroSize(t *testing.T) {
	src := storage.NewMemorySource("empty", nil)
	s := quietSupervisor(worker.NewGoroutineLauncher(src, counter.NewCountFunc(0)), Config{Workers: 3})

	total, err := runWithTimeout(t, s, context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.Len(t, s.Jobs(), 3)
}

// TestJobsSnapshotDuringRun inspects the job table from inside the launcher,
// while other ranges may not have been launched yet.
func TestJobsSnapshotDuringRun(t *testing.T) {
	src := storage.NewMemorySource("sample", []byte(sample))
	inner := worker.NewGoroutineLauncher(src, counter.Count)

	var s *Supervisor
	var snapshots atomic.Int32
	launcher := worker.LauncherFunc(func(ctx context.Context, r partition.Range, attempt int) (<-chan worker.Outcome, error) {
		for _, job := range s.Jobs() {
			snapshots.Add(1)
			assert.GreaterOrEqual(t, job.Attempt, 1, "range %d", job.Range.Index)
			assert.Contains(t, []JobState{JobStatePending, JobStateSpawned, JobStateCrashed, JobStateSucceeded}, job.State)
		}
		return inner.Launch(ctx, r, attempt)
	})
	s = quietSupervisor(launcher, Config{Workers: 4})

	_, err := runWithTimeout(t, s, context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int32(16), snapshots.Load())
}

// TestRunIsReusable runs the same supervisor twice and checks that the job
// table and counters are reset between runs.
func TestRunIsReusable(t *testing.T) {
	src := storage.NewMemorySource("sample", []byte(sample))
	s := quietSupervisor(worker.NewGoroutineLauncher(src, counter.Count), Config{Workers: 2})

	_, err := runWithTimeout(t, s, context.Background(), 10)
	require.NoError(t, err)
	first := s.Stats().RunID

	_, err = runWithTimeout(t, s, context.Background(), 10)
	require.NoError(t, err)
	second := s.Stats()

	assert.NotEqual(t, first, second.RunID)
	assert.Equal(t, int64(2), second.Attempts)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		attempt  int
		expected time.Duration
	}{
		{"disabled", Config{}, 5, 0},
		{"first respawn", Config{Backoff: 10 * time.Millisecond}, 1, 10 * time.Millisecond},
		{"doubles", Config{Backoff: 10 * time.Millisecond}, 3, 40 * time.Millisecond},
		{"capped", Config{Backoff: 10 * time.Millisecond, MaxBackoff: 25 * time.Millisecond}, 3, 25 * time.Millisecond},
		{"capped huge attempt", Config{Backoff: time.Second, MaxBackoff: time.Minute}, 200, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSupervisor(nil, tt.cfg)
			assert.Equal(t, tt.expected, s.backoff(tt.attempt))
		})
	}

	t.Run("uncapped huge attempt stays positive", func(t *testing.T) {
		s := NewSupervisor(nil, Config{Backoff: time.Second})
		assert.Greater(t, s.backoff(200), time.Duration(0))
	})
}
