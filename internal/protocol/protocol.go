// Package protocol defines the frames exchanged between the coordinator and a
// process worker. A request frame travels on the child's stdin and a single
// result frame comes back on its stdout.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dreamware/splitwc/internal/counter"
	"github.com/dreamware/splitwc/internal/partition"
)

// ErrMalformedFrame is returned when a frame cannot be decoded or is incomplete.
var ErrMalformedFrame = errors.New("malformed frame")

// WorkRequest asks a worker to count one range of a file.
type WorkRequest struct {
	Path      string          `json:"path"`
	Range     partition.Range `json:"range"`
	CrashRate int             `json:"crash_rate"`
	Attempt   int             `json:"attempt"`
}

// WorkResult carries the counts of one successful attempt.
type WorkResult struct {
	Index   int            `json:"index"`
	Attempt int            `json:"attempt"`
	Counts  counter.Counts `json:"counts"`
}

// Validate checks that the request can be executed.
func (r WorkRequest) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: missing path", ErrMalformedFrame)
	}
	if r.Range.Index < 0 || r.Range.Offset < 0 || r.Range.Length < 0 {
		return fmt.Errorf("%w: invalid range %s", ErrMalformedFrame, r.Range)
	}
	if r.Attempt < 1 {
		return fmt.Errorf("%w: attempt %d", ErrMalformedFrame, r.Attempt)
	}
	return nil
}

// WriteFrame encodes v as one JSON line.
func WriteFrame(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// ReadFrame decodes exactly one JSON value from r into out.
// Empty input, trailing data and decode errors wrap ErrMalformedFrame.
func ReadFrame(r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrMalformedFrame)
	}
	return nil
}
