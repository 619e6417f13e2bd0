// Package main implements the splitwc command, which counts lines, words and
// characters of a file with several crash-prone workers.
//
// The same binary plays two roles:
//   - Coordinator: parses arguments, partitions the file, supervises workers
//     and prints the report
//   - Worker: started by the coordinator with SPLITWC_WORKER=1, counts one
//     range read from stdin and writes the result to stdout
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│              splitwc (parent)            │
//	│  config.Load → coordinator.Supervisor    │
//	└──────────────────────────────────────────┘
//	        │ stdin: WorkRequest   ▲ stdout: WorkResult
//	        ▼                      │ exit status
//	┌──────────────────────────────────────────┐
//	│     splitwc (child, SPLITWC_WORKER=1)    │
//	│     worker.ServeChild                    │
//	└──────────────────────────────────────────┘
//
// Example usage:
//
//	# 4 workers, each attempt crashes with 20% probability
//	./splitwc big.txt 4 20
//
//	# goroutine workers, give up after 10 attempts per range
//	SPLITWC_ISOLATION=goroutine SPLITWC_MAX_ATTEMPTS=10 ./splitwc big.txt 4 20
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/splitwc/internal/config"
	"github.com/dreamware/splitwc/internal/coordinator"
	"github.com/dreamware/splitwc/internal/counter"
	"github.com/dreamware/splitwc/internal/storage"
	"github.com/dreamware/splitwc/internal/worker"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	if worker.IsChild() {
		os.Exit(serveChild(os.Stdin, os.Stdout, os.Stderr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logFatal("splitwc: %v", err)
	}
}

// serveChild runs the worker side and returns the process exit status.
// A simulated crash panics through here and kills the process instead.
func serveChild(stdin io.Reader, stdout, stderr io.Writer) int {
	if err := worker.ServeChild(stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "worker: %v\n", err)
		return 1
	}
	return 0
}

// run executes one counting run and writes the report to out.
//
// A missing filename or an unreadable file prints a message and returns nil
// so the process exits 0. Configuration errors and
// run-level failures (spawn failure, exhausted retries, cancellation) are
// returned.
func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load(args)
	if errors.Is(err, config.ErrUsage) {
		fmt.Fprintln(out, "usage: splitwc <filename> [# processes] [crash rate]")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "# of Child Processes: %d\n", cfg.Workers)
	fmt.Fprintf(out, "crashRate RATE: %d%%\n", cfg.CrashRate)

	begin := time.Now()

	// Workers reopen the file by path, so a path that cannot be opened here
	// would make every attempt crash forever.
	src := storage.NewFileSource(cfg.Path)
	h, err := src.Open()
	if err != nil {
		fmt.Fprintf(out, "File open error: %s\n", cfg.Path)
		fmt.Fprintln(out, "usage: splitwc <filename>")
		return nil
	}
	size := h.Size()
	h.Close()

	launcher, err := newLauncher(cfg, src)
	if err != nil {
		return err
	}

	sup := coordinator.NewSupervisor(launcher, cfg.Supervisor())
	total, err := sup.Run(ctx, size)
	if err != nil {
		return err
	}

	elapsed := time.Since(begin)
	report(out, cfg.Path, total, elapsed)
	return nil
}

// newLauncher builds the launcher selected by cfg.Isolation.
func newLauncher(cfg config.Config, src storage.Source) (worker.Launcher, error) {
	switch cfg.Isolation {
	case config.IsolationGoroutine:
		return worker.NewGoroutineLauncher(src, counter.NewCountFunc(cfg.CrashRate)), nil
	default:
		return worker.NewProcessLauncher(cfg.Path, cfg.CrashRate)
	}
}

func report(out io.Writer, path string, total counter.Counts, elapsed time.Duration) {
	fmt.Fprintf(out, "\n========= %s =========\n", path)
	fmt.Fprintf(out, "Total Lines : %d \n", total.Lines)
	fmt.Fprintf(out, "Total Words : %d \n", total.Words)
	fmt.Fprintf(out, "Total Characters : %d \n", total.Chars)
	fmt.Fprintf(out, "======== Took %.3f seconds ========\n", elapsed.Seconds())
}
