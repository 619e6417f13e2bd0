package worker

import (
	"context"
	"fmt"

	"github.com/dreamware/splitwc/internal/counter"
	"github.com/dreamware/splitwc/internal/partition"
	"github.com/dreamware/splitwc/internal/storage"
)

// GoroutineLauncher runs each attempt in its own goroutine behind a recover
// boundary. A panic inside the attempt becomes ErrAbnormalTermination and
// never reaches the caller's goroutine.
//
// Runtime fatal errors (such as concurrent map writes) cannot be recovered;
// use ProcessLauncher when the counting function is not trusted.
type GoroutineLauncher struct {
	Source storage.Source
	Count  counter.CountFunc
}

// NewGoroutineLauncher creates a launcher counting src with count.
func NewGoroutineLauncher(src storage.Source, count counter.CountFunc) *GoroutineLauncher {
	return &GoroutineLauncher{Source: src, Count: count}
}

// Launch starts the attempt and returns immediately.
func (l *GoroutineLauncher) Launch(ctx context.Context, r partition.Range, attempt int) (<-chan Outcome, error) {
	ch := make(chan Outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- abnormal(r, attempt, fmt.Errorf("panic: %v", p))
			}
		}()

		counts, err := Run(r, l.Source, l.Count)
		if err != nil {
			ch <- abnormal(r, attempt, err)
			return
		}
		ch <- success(r, attempt, counts)
	}()

	return ch, nil
}
