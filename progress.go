// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress is an active progress tracker a SyncSession caller can feed
// bytes through while scanning seeds or fetching remote ranges.
type Progress interface {
	io.Writer
	Add(n int)
	Close() error
}

// ProgressWriter constructs Progress trackers; the CLI driver uses the
// schollz/progressbar-backed one, and a no-op one is also provided.
type ProgressWriter interface {
	NewBytesProgress(total int64, description string) Progress
}

// barProgressWriter builds Progress trackers backed by
// github.com/schollz/progressbar/v3.
type barProgressWriter struct{}

// NewBarProgressWriter returns a ProgressWriter that renders a byte-count
// progress bar to stderr.
func NewBarProgressWriter() ProgressWriter { return barProgressWriter{} }

func (barProgressWriter) NewBytesProgress(total int64, description string) Progress {
	return &progressBarWrapper{bar: progressbar.DefaultBytes(total, description)}
}

type progressBarWrapper struct {
	bar *progressbar.ProgressBar
}

func (p *progressBarWrapper) Write(data []byte) (int, error) {
	return p.bar.Write(data)
}

func (p *progressBarWrapper) Add(n int) {
	p.bar.Add(n)
}

func (p *progressBarWrapper) Close() error {
	return p.bar.Close()
}

// noopProgressWriter discards everything.
type noopProgressWriter struct{}

// NewNoopProgressWriter returns a ProgressWriter whose trackers do nothing.
func NewNoopProgressWriter() ProgressWriter { return noopProgressWriter{} }

func (noopProgressWriter) NewBytesProgress(int64, string) Progress { return noopProgress{} }

type noopProgress struct{}

func (noopProgress) Write(data []byte) (int, error) { return len(data), nil }
func (noopProgress) Add(int)                        {}
func (noopProgress) Close() error                   { return nil }
