// Package counter scans byte ranges for line, word and character counts and
// injects simulated crashes into the workers that call it.
package counter

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
)

// ErrSimulatedCrash is the panic value raised by an Injector.
var ErrSimulatedCrash = errors.New("simulated crash")

const scanBufferSize = 32 * 1024

// Counts is the result of scanning one range. Values are combined with Add,
// which is associative and commutative.
type Counts struct {
	Lines int64 `json:"lines"`
	Words int64 `json:"words"`
	Chars int64 `json:"chars"`
}

// Add returns the component-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Lines: c.Lines + o.Lines,
		Words: c.Words + o.Words,
		Chars: c.Chars + o.Chars,
	}
}

// IsZero reports whether all three counts are zero.
func (c Counts) IsZero() bool {
	return c == Counts{}
}

func (c Counts) String() string {
	return fmt.Sprintf("lines=%d words=%d chars=%d", c.Lines, c.Words, c.Chars)
}

// Sum folds counts with Add.
func Sum(counts ...Counts) Counts {
	var total Counts
	for _, c := range counts {
		total = total.Add(c)
	}
	return total
}

// CountFunc computes Counts for length bytes of r starting at offset.
type CountFunc func(r io.ReaderAt, offset, length int64) (Counts, error)

// Count scans length bytes of r starting at offset.
//
// Lines are '\n' bytes and chars are bytes. A word is counted where a
// non-space byte follows a space byte. The byte just before offset decides
// whether the range starts inside a word, so a word split across two ranges
// is counted once, by the range holding its first byte.
func Count(r io.ReaderAt, offset, length int64) (Counts, error) {
	var c Counts
	if length == 0 {
		return c, nil
	}

	inWord := false
	if offset > 0 {
		var prev [1]byte
		if _, err := r.ReadAt(prev[:], offset-1); err != nil {
			return Counts{}, fmt.Errorf("read byte before offset %d: %w", offset, err)
		}
		inWord = !isSpace(prev[0])
	}

	sr := io.NewSectionReader(r, offset, length)
	buf := make([]byte, scanBufferSize)
	for {
		n, err := sr.Read(buf)
		for _, b := range buf[:n] {
			c.Chars++
			if b == '\n' {
				c.Lines++
			}
			if isSpace(b) {
				inWord = false
			} else if !inWord {
				inWord = true
				c.Words++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Counts{}, fmt.Errorf("scan range at %d: %w", offset, err)
		}
	}

	if c.Chars != length {
		return Counts{}, fmt.Errorf("scan range at %d: read %d of %d bytes: %w", offset, c.Chars, length, io.ErrUnexpectedEOF)
	}
	return c, nil
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Injector simulates worker crashes.
// Rate is the crash probability in percent; values <= 0 never crash and
// values >= 100 always crash.
type Injector struct {
	Rate int
	Rand func(n int) int // Defaults to rand.IntN
}

// Maybe panics with ErrSimulatedCrash with probability Rate percent.
// It must only be called inside an isolated worker unit.
func (i Injector) Maybe() {
	if i.Rate <= 0 {
		return
	}
	roll := rand.IntN
	if i.Rand != nil {
		roll = i.Rand
	}
	if roll(100) < i.Rate {
		panic(ErrSimulatedCrash)
	}
}

// NewCountFunc returns Count guarded by an Injector with the given crash rate.
func NewCountFunc(rate int) CountFunc {
	inj := Injector{Rate: rate}
	return func(r io.ReaderAt, offset, length int64) (Counts, error) {
		inj.Maybe()
		return Count(r, offset, length)
	}
}
