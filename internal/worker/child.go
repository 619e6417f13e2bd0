package worker

import (
	"io"
	"os"

	"github.com/dreamware/splitwc/internal/counter"
	"github.com/dreamware/splitwc/internal/protocol"
	"github.com/dreamware/splitwc/internal/storage"
)

// ChildEnv marks a process started by ProcessLauncher.
const ChildEnv = "SPLITWC_WORKER"

// IsChild reports whether the current process was started as a worker.
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

// ServeChild executes one request read from stdin and writes the result frame
// to stdout.
//
// The caller should exit with status 0 after a nil return and with a non-zero
// status otherwise. A simulated crash panics out of ServeChild and takes the
// process down with it, which the parent observes as abnormal termination.
func ServeChild(stdin io.Reader, stdout io.Writer) error {
	var req protocol.WorkRequest
	if err := protocol.ReadFrame(stdin, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	counts, err := Run(req.Range, storage.NewFileSource(req.Path), counter.NewCountFunc(req.CrashRate))
	if err != nil {
		return err
	}

	return protocol.WriteFrame(stdout, protocol.WorkResult{
		Index:   req.Range.Index,
		Attempt: req.Attempt,
		Counts:  counts,
	})
}
