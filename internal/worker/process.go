package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/dreamware/splitwc/internal/partition"
	"github.com/dreamware/splitwc/internal/protocol"
)

// ProcessLauncher runs each attempt in a child process.
//
// The child is the binary at Path started with ChildEnv set, so any binary
// that calls ServeChild when IsChild reports true can act as a worker. The
// request is written to the child's stdin; the result is read from its stdout.
//
// An attempt succeeds only when both signals agree: the child exited with
// status 0 and its stdout holds one valid result frame for the same range and
// attempt. Signals, non-zero exits and missing or corrupt frames are all
// reported as ErrAbnormalTermination.
type ProcessLauncher struct {
	Path      string    // Worker binary
	Args      []string  // Extra arguments for the worker binary
	Env       []string  // Extra environment, appended after ChildEnv
	InputPath string    // File the child re-opens by path
	CrashRate int       // Crash probability passed to the child, in percent
	Stderr    io.Writer // Child stderr; discarded when nil
}

// NewProcessLauncher creates a launcher that re-executes the running binary.
func NewProcessLauncher(inputPath string, crashRate int) (*ProcessLauncher, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("%w: locate executable: %v", ErrSpawnFailure, err)
	}
	return &ProcessLauncher{Path: self, InputPath: inputPath, CrashRate: crashRate}, nil
}

// Launch starts the child and returns immediately. Cancelling ctx kills it.
func (l *ProcessLauncher) Launch(ctx context.Context, r partition.Range, attempt int) (<-chan Outcome, error) {
	var req bytes.Buffer
	err := protocol.WriteFrame(&req, protocol.WorkRequest{
		Path:      l.InputPath,
		Range:     r,
		CrashRate: l.CrashRate,
		Attempt:   attempt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrSpawnFailure, err)
	}

	ch := make(chan Outcome, 1)
	var stdout bytes.Buffer

	cmd := exec.CommandContext(ctx, l.Path, l.Args...)
	cmd.Env = append(append(os.Environ(), ChildEnv+"=1"), l.Env...)
	cmd.Stdin = &req
	cmd.Stdout = &stdout
	cmd.Stderr = l.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: range %s attempt %d: %v", ErrSpawnFailure, r, attempt, err)
	}

	go func() {
		waitErr := cmd.Wait()
		ch <- collect(r, attempt, waitErr, &stdout)
	}()

	return ch, nil
}

// collect turns a finished child into an Outcome.
func collect(r partition.Range, attempt int, waitErr error, stdout io.Reader) Outcome {
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			// "exit status N" or "signal: killed"
			return abnormal(r, attempt, errors.New(exitErr.ProcessState.String()))
		}
		return abnormal(r, attempt, waitErr)
	}

	var res protocol.WorkResult
	if err := protocol.ReadFrame(stdout, &res); err != nil {
		return abnormal(r, attempt, fmt.Errorf("clean exit without result: %w", err))
	}
	if res.Index != r.Index || res.Attempt != attempt {
		return abnormal(r, attempt, fmt.Errorf("result for range #%d attempt %d", res.Index, res.Attempt))
	}
	return success(r, attempt, res.Counts)
}
