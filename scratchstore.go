// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ScratchStore is a fixed-size, block-addressed, random-access byte store
// backed by a temporary file (spec §4.2). All writes are synchronous with
// respect to subsequent reads in this process: a plain *os.File gives that
// for free on every platform the reference targets.
type ScratchStore struct {
	file      *os.File
	path      string
	blockSize int64
	detached  bool
}

// NewScratchStore allocates a scoped temp file in dir via the TempDir
// collaborator. The name template includes a random suffix (spec §4.2),
// generated with github.com/google/uuid rather than hand-rolled
// randomness.
func NewScratchStore(dir TempDir, blockSize int64) (*ScratchStore, error) {
	pattern := fmt.Sprintf("zsync-%s-*.part", uuid.NewString())
	f, path, err := dir.Create(pattern)
	if err != nil {
		return nil, newErr(ErrScratchIO, err, "failed creating scratch file")
	}
	return &ScratchStore{file: f, path: path, blockSize: blockSize}, nil
}

// Path returns the current on-disk path of the scratch file.
func (s *ScratchStore) Path() string { return s.path }

// WriteBlocks persists data — exactly (hi-lo+1)*blockSize bytes — at the
// block-aligned offset for blocks [lo, hi].
func (s *ScratchStore) WriteBlocks(lo, hi int64, data []byte) error {
	want := (hi - lo + 1) * s.blockSize
	if int64(len(data)) != want {
		return newErr(ErrScratchIO, nil, "write_blocks: expected %d bytes, got %d", want, len(data))
	}
	return s.WriteBytes(lo*s.blockSize, data)
}

// WriteBytes writes data at an arbitrary (possibly unaligned) offset.
// Writes beyond current EOF are allowed; the file gains a hole.
func (s *ScratchStore) WriteBytes(offset int64, data []byte) error {
	if _, err := s.file.WriteAt(data, offset); err != nil {
		return newErr(ErrScratchIO, err, "failed writing %d bytes at offset %d", len(data), offset)
	}
	return nil
}

// ReadBytes reads length bytes starting at offset.
func (s *ScratchStore) ReadBytes(offset int64, length int64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		return nil, newErr(ErrScratchIO, err, "failed reading %d bytes at offset %d", length, offset)
	}
	return buf, nil
}

// Truncate resizes the scratch file to exactly length bytes, used to fix up
// the final file size (spec §4.6 complete()).
func (s *ScratchStore) Truncate(length int64) error {
	if err := s.file.Truncate(length); err != nil {
		return newErr(ErrScratchIO, err, "failed truncating scratch file to %d bytes", length)
	}
	return nil
}

// Rename moves the scratch file to newPath, e.g. "<target>.part" once seeds
// have been ingested (spec §3 lifecycle).
func (s *ScratchStore) Rename(newPath string) error {
	if err := os.Rename(s.path, newPath); err != nil {
		return newErr(ErrScratchIO, err, "failed renaming scratch file to %s", newPath)
	}
	s.path = newPath
	return nil
}

// Detach marks the scratch file as transferred to the caller: Release will
// close the handle but not unlink the path.
func (s *ScratchStore) Detach() {
	s.detached = true
}

// Release closes the scratch file, unlinking it unless Detach was called.
func (s *ScratchStore) Release() error {
	err := s.file.Close()
	if !s.detached {
		if rmErr := os.Remove(s.path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	if err != nil {
		return newErr(ErrScratchIO, err, "failed releasing scratch file %s", s.path)
	}
	return nil
}
