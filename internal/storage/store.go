package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

var (
	// ErrFileOpen is returned when a handle onto the input cannot be opened
	ErrFileOpen = errors.New("file open error")

	// ErrSeekFailure is returned when a handle cannot be positioned at an offset
	ErrSeekFailure = errors.New("seek failure")
)

// Source defines read-only access to a complete input.
// All implementations must be safe to open concurrently; each call to Open
// yields an independent handle with no shared cursor.
type Source interface {
	// Name identifies the input in logs and reports
	Name() string

	// Size returns the total size of the input in bytes
	Size() (int64, error)

	// Open returns a fresh, independent handle onto the input
	// Returns an error wrapping ErrFileOpen on failure
	Open() (Handle, error)
}

// Handle is one independent view of an input
type Handle interface {
	io.ReaderAt
	io.Closer

	// Size returns the size of the input as seen by this handle
	Size() int64
}

// SourceStats contains statistics about a source
type SourceStats struct {
	Opens int64 // Number of handles opened
}

// CheckRange reports whether [offset, offset+length) lies within the handle.
// Returns an error wrapping ErrSeekFailure if the range does not fit.
func CheckRange(h Handle, offset, length int64) error {
	size := h.Size()
	if offset < 0 || offset > size {
		return fmt.Errorf("%w: offset %d outside [0, %d]", ErrSeekFailure, offset, size)
	}
	if length < 0 || offset+length > size {
		return fmt.Errorf("%w: range [%d,%d) exceeds size %d", ErrSeekFailure, offset, offset+length, size)
	}
	return nil
}

// FileSource implements Source over a file on disk.
// Every Open re-opens the file by path, the way a forked child would.
type FileSource struct {
	path  string
	opens atomic.Int64
}

// NewFileSource creates a source for the file at path.
// The file is not touched until Size or Open is called.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the file path
func (s *FileSource) Name() string {
	return s.path
}

// Size stats the file
func (s *FileSource) Size() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFileOpen, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrFileOpen, s.path)
	}
	return info.Size(), nil
}

// Open opens a new read-only descriptor onto the file
func (s *FileSource) Open() (Handle, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOpen, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFileOpen, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileOpen, s.path)
	}
	s.opens.Add(1)
	return &fileHandle{File: f, size: info.Size()}, nil
}

// Stats returns source statistics
func (s *FileSource) Stats() SourceStats {
	return SourceStats{Opens: s.opens.Load()}
}

type fileHandle struct {
	*os.File
	size int64
}

func (h *fileHandle) Size() int64 {
	return h.size
}

// MemorySource implements Source over an in-memory byte slice.
// The data is copied on construction to prevent external modification.
type MemorySource struct {
	name  string
	data  []byte
	opens atomic.Int64
}

// NewMemorySource creates a source holding a copy of data
func NewMemorySource(name string, data []byte) *MemorySource {
	stored := make([]byte, len(data))
	copy(stored, data)
	return &MemorySource{name: name, data: stored}
}

// Name returns the name given at construction
func (m *MemorySource) Name() string {
	return m.name
}

// Size returns the length of the data
func (m *MemorySource) Size() (int64, error) {
	return int64(len(m.data)), nil
}

// Open returns a new reader over the shared, immutable data
func (m *MemorySource) Open() (Handle, error) {
	m.opens.Add(1)
	return &memoryHandle{Reader: bytes.NewReader(m.data)}, nil
}

// Stats returns source statistics
func (m *MemorySource) Stats() SourceStats {
	return SourceStats{Opens: m.opens.Load()}
}

type memoryHandle struct {
	*bytes.Reader
}

func (h *memoryHandle) Close() error {
	return nil
}
