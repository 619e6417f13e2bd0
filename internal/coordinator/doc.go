// Package coordinator implements the orchestration layer of splitwc: it splits
// an input into ranges, keeps one worker running per range until that range
// succeeds, and sums the partial counts in range order.
//
// # Overview
//
// The coordinator is the only stateful part of a run. It owns the job table,
// decides when an attempt has failed, and respawns the failed range on a
// fresh worker. Workers only ever see their own Range and their own one-shot
// result channel.
//
// # Architecture
//
//	┌──────────────────────────────────────────────┐
//	│                 SUPERVISOR                    │
//	├──────────────────────────────────────────────┤
//	│                                              │
//	│  Partition(totalSize, Workers)               │
//	│          │                                   │
//	│          ▼                                   │
//	│  ┌────────────┐ ┌────────────┐ ┌──────────┐  │
//	│  │ controller │ │ controller │ │   ...    │  │
//	│  │  range #0  │ │  range #1  │ │ range #n │  │
//	│  └─────┬──────┘ └─────┬──────┘ └────┬─────┘  │
//	│        │ Launch       │             │        │
//	│        ▼              ▼             ▼        │
//	│    [worker]       [worker]      [worker]     │
//	│        │ Outcome      │             │        │
//	│        ▼              ▼             ▼        │
//	│  ┌────────────────────────────────────────┐  │
//	│  │ aggregator: read #0, #1, ... #n, sum   │  │
//	│  └────────────────────────────────────────┘  │
//	│                                              │
//	│  job table: index → Job (RWMutex)            │
//	└──────────────────────────────────────────────┘
//
// # Core Components
//
// Job table (jobRegistry):
//   - One Job per range, keyed by range index
//   - Tracks attempt number, state, crash count and last error
//   - Returns copies; safe to inspect while a run is in progress
//
// Retry controller (one goroutine per range):
//   - Launches an attempt through a worker.Launcher
//   - Blocks on that attempt's outcome channel, never polls
//   - On abnormal termination, respawns the identical Range with attempt+1
//   - Treats a launch error as fatal for the whole run
//
// Aggregator:
//   - Reads one result per range in index order 0..n-1
//   - Controllers may finish in any order; results wait in buffered channels
//   - Sums component-wise; the order only fixes log output
//
// # Retry Policy
//
//	pending ──► spawned ──► succeeded
//	               │  ▲
//	               ▼  │
//	             crashed
//
// With the default Config a range is retried forever, immediately. Config
// makes both choices explicit:
//
//	MaxAttempts: 0       // 0 = unbounded; otherwise fail with ErrRetriesExhausted
//	Backoff:     0       // delay before the first respawn, doubled per crash
//	MaxBackoff:  0       // cap on the doubled delay, 0 = no cap
//
// # Failure Handling
//
// Per-range failures never leave the coordinator:
//   - Simulated crashes (panics or dead processes)
//   - storage.ErrFileOpen and storage.ErrSeekFailure inside a worker
//   - Clean exits that did not deliver a result
//
// Run-level failures are returned by Run:
//   - partition.ErrInvalidArgument before any worker starts
//   - worker.ErrSpawnFailure as soon as any attempt cannot be launched
//   - ErrRetriesExhausted when MaxAttempts is set and reached
//   - ctx.Err() on cancellation
//
// On any run-level failure the coordinator cancels every in-flight attempt and
// waits for all controllers to exit before returning, so Run never hangs on
// ranges that were never spawned.
//
// # Usage Example
//
//	src := storage.NewFileSource("input.txt")
//	size, err := src.Size()
//	if err != nil {
//	    return err
//	}
//
//	launcher := worker.NewGoroutineLauncher(src, counter.NewCountFunc(20))
//	sup := coordinator.NewSupervisor(launcher, coordinator.Config{Workers: 4})
//	sup.SetOnCrash(func(job coordinator.Job) {
//	    log.Printf("range %s crashed %d times", job.Range, job.Crashes)
//	})
//
//	total, err := sup.Run(ctx, size)
//
// # See Also
//
// Related packages:
//   - internal/partition: Range computation
//   - internal/worker: Launchers and the worker body
//   - internal/counter: Counts and fault injection
package coordinator
