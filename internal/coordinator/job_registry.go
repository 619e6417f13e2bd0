// Package coordinator implements the orchestration layer of splitwc.
// See doc.go for complete package documentation.
package coordinator

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/splitwc/internal/counter"
	"github.com/dreamware/splitwc/internal/partition"
)

// JobState is the lifecycle state of a Job. Every job starts pending with
// Attempt 1, so Attempt is never below 1 in any snapshot.
type JobState string

const (
	// JobStatePending means the first attempt has not been launched yet
	JobStatePending JobState = "pending"
	// JobStateSpawned means an attempt is running for the range
	JobStateSpawned JobState = "spawned"
	// JobStateCrashed means the last attempt terminated abnormally and a
	// replacement is about to be spawned
	JobStateCrashed JobState = "crashed"
	// JobStateSucceeded is terminal: the range has delivered its counts
	JobStateSucceeded JobState = "succeeded"
)

// Job is the live association between a Range and its current attempt.
//
// State machine:
//
//	pending ──► spawned ──► succeeded (terminal)
//	               │  ▲
//	               ▼  │ attempt+1, same Range
//	             crashed
//
// Thread Safety:
// Job values returned by the registry are copies and may be read freely.
type Job struct {
	// Range is the partition this job covers. It never changes across attempts.
	Range partition.Range

	// Attempt is the number of the current, next or last attempt, starting at 1.
	Attempt int

	// State is the current lifecycle state.
	State JobState

	// WorkerID identifies the execution unit of the current attempt.
	WorkerID string

	// Crashes counts attempts that terminated abnormally.
	Crashes int

	// LastError is the error of the most recent crashed attempt, if any.
	LastError error

	// Counts is set once State is JobStateSucceeded.
	Counts counter.Counts

	// StartedAt is when the current attempt was launched.
	StartedAt time.Time

	// FinishedAt is when the job succeeded; zero until then.
	FinishedAt time.Time
}

// jobRegistry is the job table. The coordinator owns it exclusively; workers
// never see it.
//
// Concurrency Model:
//   - Read operations use RLock for parallel access
//   - Write operations use Lock for exclusive access
//   - All returned data is copied to prevent races
type jobRegistry struct {
	mu   sync.RWMutex
	jobs map[int]*Job // range index -> job
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[int]*Job)}
}

// reset replaces the table with one pending job per range.
func (r *jobRegistry) reset(ranges []partition.Range) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs = make(map[int]*Job, len(ranges))
	for _, rg := range ranges {
		r.jobs[rg.Index] = &Job{Range: rg, Attempt: 1, State: JobStatePending}
	}
}

// spawned records that attempt has been launched on workerID.
func (r *jobRegistry) spawned(index, attempt int, workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.jobs[index]
	job.Attempt = attempt
	job.State = JobStateSpawned
	job.WorkerID = workerID
	job.StartedAt = time.Now()
}

// crashed records an abnormal termination and returns a copy of the job.
func (r *jobRegistry) crashed(index int, err error) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.jobs[index]
	job.State = JobStateCrashed
	job.Crashes++
	job.LastError = err
	return *job
}

// succeeded records the counts of the winning attempt.
func (r *jobRegistry) succeeded(index int, counts counter.Counts) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.jobs[index]
	job.State = JobStateSucceeded
	job.Counts = counts
	job.FinishedAt = time.Now()
	return *job
}

// get returns a copy of the job for index.
func (r *jobRegistry) get(index int) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[index]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// all returns copies of every job ordered by range index.
func (r *jobRegistry) all() []Job {
	r.mu.RLock()
	result := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, *job)
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b Job) int { return a.Range.Index - b.Range.Index })
	return result
}
