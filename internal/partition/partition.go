// Package partition splits a byte extent into contiguous ranges, one per worker.
package partition

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// ErrInvalidArgument is returned when the partition count or extent is unusable.
var ErrInvalidArgument = errors.New("invalid argument")

// Range is a contiguous byte sub-extent of the input assigned to one worker.
// A Range is immutable once computed and is reused verbatim across retries.
type Range struct {
	Index  int   `json:"index"`  // Position in [0, n)
	Offset int64 `json:"offset"` // First byte of the range
	Length int64 `json:"length"` // Number of bytes in the range
}

// End returns the offset one past the last byte of the range.
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// String renders the range as "#index[offset,end)".
func (r Range) String() string {
	return fmt.Sprintf("#%d[%d,%d)", r.Index, r.Offset, r.End())
}

// Partition splits totalSize bytes into n contiguous ranges.
//
// Every range but the last has length totalSize/n. The last range absorbs the
// remainder of the integer division so the whole extent is covered exactly
// once. With totalSize == 0 every range is empty.
//
// Parameters:
//   - totalSize: Size of the extent in bytes (must be >= 0)
//   - n: Number of ranges (must be >= 1)
//
// Returns:
//   - Ranges ordered by index
//   - ErrInvalidArgument if n < 1 or totalSize < 0
//
// Example:
//
//	ranges, _ := Partition(17, 5)
//	// lengths 3,3,3,3,5 at offsets 0,3,6,9,12
func Partition(totalSize int64, n int) ([]Range, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: partition count %d, must be >= 1", ErrInvalidArgument, n)
	}
	if totalSize < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidArgument, totalSize)
	}

	base := totalSize / int64(n)
	ranges := make([]Range, n)
	for i := range ranges {
		offset := int64(i) * base
		length := base
		if i == n-1 {
			length = totalSize - offset
		}
		ranges[i] = Range{Index: i, Offset: offset, Length: length}
	}
	return ranges, nil
}

// Validate checks that ranges cover [0, totalSize) exactly once, in order,
// with indices 0..n-1. The input slice is not modified.
func Validate(ranges []Range, totalSize int64) error {
	if len(ranges) == 0 {
		return fmt.Errorf("%w: no ranges", ErrInvalidArgument)
	}

	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b Range) int { return a.Index - b.Index })

	var next int64
	for i, r := range sorted {
		if r.Index != i {
			return fmt.Errorf("%w: range index %d at position %d", ErrInvalidArgument, r.Index, i)
		}
		if r.Length < 0 {
			return fmt.Errorf("%w: range %s has negative length", ErrInvalidArgument, r)
		}
		if r.Offset != next {
			return fmt.Errorf("%w: range %s does not start at %d", ErrInvalidArgument, r, next)
		}
		next = r.End()
	}
	if next != totalSize {
		return fmt.Errorf("%w: ranges cover %d of %d bytes", ErrInvalidArgument, next, totalSize)
	}
	return nil
}
