// Package storage provides read-only access to the input being counted.
//
// # Overview
//
// Workers never share a cursor. Each attempt opens its own Handle through a
// Source and reads its range with ReadAt, so any number of workers (and any
// number of retries of the same range) can run against one input without
// locking. The input is assumed complete: no writer exists while a run is in
// progress.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        Workers (one per Range)      │
//	└─────────────────────────────────────┘
//	                 │ Open()
//	                 ▼
//	┌─────────────────────────────────────┐
//	│          Source interface           │
//	│      Name() / Size() / Open()       │
//	└─────────────────────────────────────┘
//	          │                 │
//	          ▼                 ▼
//	    ┌──────────┐      ┌──────────┐
//	    │   File   │      │  Memory  │
//	    │  Source  │      │  Source  │
//	    └──────────┘      └──────────┘
//
// # Implementations
//
// FileSource: re-opens the file by path for every handle
//   - Mirrors a forked child opening its own descriptor
//   - Open failures wrap ErrFileOpen
//
// MemorySource: serves a private copy of a byte slice
//   - Used by tests and by callers that already hold the data
//   - Open never fails
//
// # Positioning
//
// CheckRange validates an (offset, length) pair against a handle's size.
// Readers then use the handle's ReadAt directly, since counting a range also
// peeks at the byte just before it. A range that does not fit wraps
// ErrSeekFailure.
// Both errors are per-attempt failures: the coordinator treats them exactly like
// a crashed worker and retries the range.
package storage
