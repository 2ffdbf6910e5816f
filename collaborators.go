// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"context"
	"os"
	"time"
)

// HttpRangeFetcher is the external collaborator that performs the actual
// HTTPS byte-range fetching (spec §6). The core never touches net/http
// directly; it only drives this interface.
type HttpRangeFetcher interface {
	// FetchRanges performs a GET with a Range header covering ranges
	// (each a closed [start, end] byte interval) and streams back
	// (absoluteOffset, payload) chunks in receipt order. The returned
	// channel is closed when the fetch completes or fails; a non-nil err
	// is returned either immediately (request setup failure) or via the
	// final chunk's Err field.
	FetchRanges(ctx context.Context, url string, ranges []ByteRange) (<-chan FetchedChunk, error)
}

// ByteRange is a closed [Start, End] byte interval, end inclusive, as used
// in HTTP Range headers.
type ByteRange struct {
	Start, End int64
}

// FetchedChunk is one contiguous piece of a range-fetch response.
type FetchedChunk struct {
	Offset int64
	Data   []byte
	Err    error
}

// TempDir allocates scoped temporary files for the scratch store (spec §5
// resource model: "one temporary directory entry; released on finalize or
// explicit abort").
type TempDir interface {
	// Create returns a new, already-open temp file plus its path. pattern
	// follows os.CreateTemp's "*" placeholder convention.
	Create(pattern string) (*os.File, string, error)
}

// osTempDir is the default TempDir backed by a real directory on disk.
type osTempDir struct {
	dir string
}

// NewOSTempDir returns a TempDir that allocates files inside dir.
func NewOSTempDir(dir string) TempDir {
	return &osTempDir{dir: dir}
}

func (t *osTempDir) Create(pattern string) (*os.File, string, error) {
	f, err := os.CreateTemp(t.dir, pattern)
	if err != nil {
		return nil, "", errWrap(err, "failed allocating temp file")
	}
	return f, f.Name(), nil
}

// Clock abstracts wall-clock time so the elapsed time SyncSession.Complete
// logs is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystemClock returns a Clock backed by time.Now.
func NewSystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

// Logger is the logging collaborator. Levels mirror the teacher's glog
// usage (Warningf for recoverable conditions, Infof for progress,
// Errorf for session-fatal conditions).
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger discards everything; used as the zero-value default and in
// tests.
type noopLogger struct{}

// NewNoopLogger returns a Logger that discards all messages.
func NewNoopLogger() Logger { return noopLogger{} }

func (noopLogger) Infof(string, ...interface{})    {}
func (noopLogger) Warningf(string, ...interface{}) {}
func (noopLogger) Errorf(string, ...interface{})   {}
