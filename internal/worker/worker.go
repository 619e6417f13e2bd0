// Package worker runs the counting function over one range inside an isolated
// unit and reports the result on a dedicated one-shot channel.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamware/splitwc/internal/counter"
	"github.com/dreamware/splitwc/internal/partition"
	"github.com/dreamware/splitwc/internal/storage"
)

var (
	// ErrAbnormalTermination means a worker ended without delivering a result.
	// Coordinators retry the range; it is never surfaced as a run failure.
	ErrAbnormalTermination = errors.New("abnormal termination")

	// ErrSpawnFailure means a new execution unit could not be created.
	// It is fatal for the whole run.
	ErrSpawnFailure = errors.New("spawn failure")
)

// Outcome is what a worker attempt reports. A nil Err is a success carrying
// Counts; any other value wraps ErrAbnormalTermination and Counts is zero.
type Outcome struct {
	Index   int
	Attempt int
	Counts  counter.Counts
	Err     error
}

// Succeeded reports whether the attempt produced a result.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

func success(r partition.Range, attempt int, c counter.Counts) Outcome {
	return Outcome{Index: r.Index, Attempt: attempt, Counts: c}
}

func abnormal(r partition.Range, attempt int, cause error) Outcome {
	return Outcome{
		Index:   r.Index,
		Attempt: attempt,
		Err:     fmt.Errorf("%w: range %s attempt %d: %v", ErrAbnormalTermination, r, attempt, cause),
	}
}

// Launcher starts one attempt for a range and returns its result channel.
//
// The channel is created before the unit starts, holds exactly one Outcome,
// and is never closed. Launch does not block on the attempt. A unit that cannot
// be started returns an error wrapping ErrSpawnFailure.
type Launcher interface {
	Launch(ctx context.Context, r partition.Range, attempt int) (<-chan Outcome, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, r partition.Range, attempt int) (<-chan Outcome, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, r partition.Range, attempt int) (<-chan Outcome, error) {
	return f(ctx, r, attempt)
}

// Run is the body of a worker. It opens its own handle onto src, checks that r
// fits it and counts exactly r.Length bytes from r.Offset with count.
//
// Returns:
//   - Counts for the range on success
//   - An error wrapping storage.ErrFileOpen or storage.ErrSeekFailure when the
//     range cannot be reached, or the counting error
//
// count may panic to simulate a crash; Run does not recover it.
func Run(r partition.Range, src storage.Source, count counter.CountFunc) (counter.Counts, error) {
	h, err := src.Open()
	if err != nil {
		return counter.Counts{}, err
	}
	defer h.Close()

	if err := storage.CheckRange(h, r.Offset, r.Length); err != nil {
		return counter.Counts{}, err
	}
	if r.Length == 0 {
		return counter.Counts{}, nil
	}
	return count(h, r.Offset, r.Length)
}
