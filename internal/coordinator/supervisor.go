package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/splitwc/internal/counter"
	"github.com/dreamware/splitwc/internal/partition"
	"github.com/dreamware/splitwc/internal/worker"
)

// ErrRetriesExhausted is returned when a range crashed on every allowed attempt.
// It only occurs when Config.MaxAttempts is positive.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Config controls partitioning and the retry policy of a Supervisor.
type Config struct {
	// Workers is the number of ranges, and so of concurrent workers.
	// Callers clamp it; Run fails with partition.ErrInvalidArgument below 1.
	Workers int

	// MaxAttempts caps the attempts per range. Zero retries forever, which
	// never terminates if a range crashes on every attempt.
	MaxAttempts int

	// Backoff is the delay before the first respawn of a range. It doubles
	// on each consecutive crash of that range. Zero respawns immediately.
	Backoff time.Duration

	// MaxBackoff caps the doubled delay. Zero means no cap.
	MaxBackoff time.Duration
}

// DefaultConfig is one worker with unbounded, immediate retries.
func DefaultConfig() Config {
	return Config{Workers: 1}
}

// Stats summarizes the last run of a Supervisor.
type Stats struct {
	RunID      string // Identifier used in log lines
	Partitions int    // Number of ranges
	Attempts   int64  // Attempts launched, including crashed ones
	Crashes    int64  // Attempts that terminated abnormally
}

// Supervisor partitions an input, runs one retry controller per range and
// aggregates their counts in index order.
//
// Thread Safety:
// Jobs, Job and Stats are safe to call while Run is in progress. Run itself
// must not be called concurrently on the same Supervisor.
type Supervisor struct {
	cfg      Config
	launcher worker.Launcher
	logger   *log.Logger
	onCrash  func(job Job)
	jobs     *jobRegistry

	runID    atomic.Value // string
	parts    atomic.Int64
	attempts atomic.Int64
	crashes  atomic.Int64
}

// NewSupervisor creates a supervisor that launches attempts through launcher.
//
// Example:
//
//	src := storage.NewFileSource(path)
//	sup := NewSupervisor(worker.NewGoroutineLauncher(src, counter.NewCountFunc(10)), Config{Workers: 4})
//	size, _ := src.Size()
//	total, err := sup.Run(ctx, size)
func NewSupervisor(launcher worker.Launcher, cfg Config) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		launcher: launcher,
		logger:   log.Default(),
		jobs:     newJobRegistry(),
	}
	s.runID.Store("")
	return s
}

// SetLogger replaces the logger. Passing nil restores log.Default().
func (s *Supervisor) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.Default()
	}
	s.logger = l
}

// SetOnCrash sets a callback invoked after every abnormal termination, with a
// copy of the job as it stands before the respawn. The callback runs on the
// range's retry goroutine and must not block for long.
func (s *Supervisor) SetOnCrash(callback func(job Job)) {
	s.onCrash = callback
}

// Run partitions totalSize bytes into Config.Workers ranges and counts them.
//
// Returns:
//   - The component-wise sum of every range's counts
//   - partition.ErrInvalidArgument if the worker count is below 1
//   - An error wrapping worker.ErrSpawnFailure if any attempt could not start
//   - An error wrapping ErrRetriesExhausted if a capped range never succeeded
//   - ctx.Err() if ctx is cancelled first
func (s *Supervisor) Run(ctx context.Context, totalSize int64) (counter.Counts, error) {
	ranges, err := partition.Partition(totalSize, s.cfg.Workers)
	if err != nil {
		return counter.Counts{}, err
	}
	return s.RunRanges(ctx, ranges, totalSize)
}

// RunRanges counts precomputed ranges. The ranges must cover totalSize bytes
// exactly once; otherwise partition.ErrInvalidArgument is returned before any
// worker starts.
func (s *Supervisor) RunRanges(ctx context.Context, ranges []partition.Range, totalSize int64) (counter.Counts, error) {
	if err := partition.Validate(ranges, totalSize); err != nil {
		return counter.Counts{}, err
	}

	runID := uuid.NewString()
	s.runID.Store(runID)
	s.parts.Store(int64(len(ranges)))
	s.attempts.Store(0)
	s.crashes.Store(0)
	s.jobs.reset(ranges)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One buffered slot per range so a controller never blocks on the
	// aggregator, and room for every controller to report a fatal error.
	results := make([]chan counter.Counts, len(ranges))
	fatal := make(chan error, len(ranges))

	var wg sync.WaitGroup
	for _, r := range ranges {
		results[r.Index] = make(chan counter.Counts, 1)
		wg.Add(1)
		go func(r partition.Range) {
			defer wg.Done()
			counts, err := s.supervise(ctx, runID, r)
			if err != nil {
				fatal <- err
				cancel()
				return
			}
			results[r.Index] <- counts
		}(r)
	}

	total, err := s.aggregate(ctx, runID, results, fatal)

	cancel()
	wg.Wait()
	if err != nil {
		return counter.Counts{}, err
	}

	s.logger.Printf("run[%s] finished: %s (%d attempts, %d crashes)",
		runID, total, s.attempts.Load(), s.crashes.Load())
	return total, nil
}

// aggregate collects one result per range in index order and sums them.
// It returns early on the first fatal error or on cancellation.
func (s *Supervisor) aggregate(ctx context.Context, runID string, results []chan counter.Counts, fatal <-chan error) (counter.Counts, error) {
	var total counter.Counts
	for i, ch := range results {
		select {
		case c := <-ch:
			total = total.Add(c)
			job, _ := s.jobs.get(i)
			s.logger.Printf("run[%s] partition %d: %s (attempt %d)", runID, i, c, job.Attempt)
		case err := <-fatal:
			return counter.Counts{}, err
		case <-ctx.Done():
			// a controller cancels only after queueing its fatal error
			select {
			case err := <-fatal:
				return counter.Counts{}, err
			default:
				return counter.Counts{}, ctx.Err()
			}
		}
	}
	return total, nil
}

// supervise is the retry controller for one range. It launches attempts until
// one succeeds, respawning the identical range after every abnormal
// termination.
func (s *Supervisor) supervise(ctx context.Context, runID string, r partition.Range) (counter.Counts, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return counter.Counts{}, err
		}

		workerID := uuid.NewString()
		s.jobs.spawned(r.Index, attempt, workerID)

		ch, err := s.launcher.Launch(ctx, r, attempt)
		if err != nil {
			if !errors.Is(err, worker.ErrSpawnFailure) {
				err = fmt.Errorf("%w: %v", worker.ErrSpawnFailure, err)
			}
			s.logger.Printf("run[%s] partition %d: cannot spawn attempt %d: %v", runID, r.Index, attempt, err)
			return counter.Counts{}, fmt.Errorf("partition %d: %w", r.Index, err)
		}
		s.attempts.Add(1)

		var outcome worker.Outcome
		select {
		case outcome = <-ch:
		case <-ctx.Done():
			return counter.Counts{}, ctx.Err()
		}

		if outcome.Succeeded() {
			s.jobs.succeeded(r.Index, outcome.Counts)
			return outcome.Counts, nil
		}

		s.crashes.Add(1)
		job := s.jobs.crashed(r.Index, outcome.Err)
		s.logger.Printf("run[%s] partition %d: worker %s crashed on attempt %d: %v",
			runID, r.Index, workerID, attempt, outcome.Err)
		if s.onCrash != nil {
			s.onCrash(job)
		}

		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			return counter.Counts{}, fmt.Errorf("%w: partition %d failed %d attempts: %v",
				ErrRetriesExhausted, r.Index, attempt, outcome.Err)
		}

		if d := s.backoff(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return counter.Counts{}, ctx.Err()
			}
		}
	}
}

// backoff returns the delay before the respawn that follows the given
// crashed attempt.
func (s *Supervisor) backoff(attempt int) time.Duration {
	d := s.cfg.Backoff
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if s.cfg.MaxBackoff > 0 && d >= s.cfg.MaxBackoff {
			break
		}
		if d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if s.cfg.MaxBackoff > 0 && d > s.cfg.MaxBackoff {
		d = s.cfg.MaxBackoff
	}
	return d
}

// Jobs returns a snapshot of the job table ordered by range index.
func (s *Supervisor) Jobs() []Job {
	return s.jobs.all()
}

// Job returns a snapshot of the job for one range.
func (s *Supervisor) Job(index int) (Job, bool) {
	return s.jobs.get(index)
}

// Stats returns counters for the current or last run.
func (s *Supervisor) Stats() Stats {
	return Stats{
		RunID:      s.runID.Load().(string),
		Partitions: int(s.parts.Load()),
		Attempts:   s.attempts.Load(),
		Crashes:    s.crashes.Load(),
	}
}
