// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/hooklift/assert"
)

const testBlockSize = 16

func blockMetaForTarget(target []byte, blockSize int64) []BlockMeta {
	blockCount := (int64(len(target)) + blockSize - 1) / blockSize
	blocks := make([]BlockMeta, blockCount)
	for i := int64(0); i < blockCount; i++ {
		start := i * blockSize
		end := start + blockSize
		var block []byte
		if end <= int64(len(target)) {
			block = target[start:end]
		} else {
			block = make([]byte, blockSize)
			copy(block, target[start:])
		}
		blocks[i] = BlockMeta{
			ID:     int32(i),
			Weak:   initRolling(block).weak(),
			Strong: strongSum(block, 8),
			nextID: noNext,
		}
	}
	return blocks
}

func newTestMatcher(blocks []BlockMeta, blockSize int64, seqMatches, rsumBytes int, store *ScratchStore) (*RollingMatcher, *RangeSet, *ChecksumIndex) {
	ranges := NewRangeSet()
	index := NewChecksumIndex(blocks, seqMatches, rsumBytes)
	shift := blockShiftOf(blockSize)
	m := NewRollingMatcher(blocks, blockSize, shift, seqMatches, rsumBytes, index, ranges, store, NewNoopLogger())
	return m, ranges, index
}

func TestRollingMatcherFullMatchIdenticalStream(t *testing.T) {
	rand.Seed(42)
	target := make([]byte, testBlockSize*12)
	rand.Read(target)

	blocks := blockMetaForTarget(target, testBlockSize)
	dir := t.TempDir()
	store, err := NewScratchStore(NewOSTempDir(dir), testBlockSize)
	assert.Ok(t, err)

	m, ranges, _ := newTestMatcher(blocks, testBlockSize, 1, 4, store)

	err = m.Scan(context.Background(), bytes.NewReader(target))
	assert.Ok(t, err)

	assert.Equals(t, int64(len(blocks)), ranges.Count())

	got, err := store.ReadBytes(0, int64(len(target)))
	assert.Ok(t, err)
	assert.Equals(t, target, got)
}

func TestRollingMatcherFindsShiftedMatches(t *testing.T) {
	rand.Seed(7)
	target := make([]byte, testBlockSize*8)
	rand.Read(target)

	// A seed that's the target with 3 garbage bytes prepended: every block
	// boundary in the seed is offset from the target's, so matches can only
	// be found by sliding byte-by-byte, not by chunked re-reads.
	seed := append([]byte{0xff, 0xfe, 0xfd}, target...)

	blocks := blockMetaForTarget(target, testBlockSize)
	dir := t.TempDir()
	store, err := NewScratchStore(NewOSTempDir(dir), testBlockSize)
	assert.Ok(t, err)

	m, ranges, _ := newTestMatcher(blocks, testBlockSize, 1, 4, store)

	err = m.Scan(context.Background(), bytes.NewReader(seed))
	assert.Ok(t, err)

	assert.Equals(t, int64(len(blocks)), ranges.Count())

	got, err := store.ReadBytes(0, int64(len(target)))
	assert.Ok(t, err)
	assert.Equals(t, target, got)
}

func TestRollingMatcherSeqMatchesTwoMatchesIdenticalStream(t *testing.T) {
	rand.Seed(99)
	target := make([]byte, testBlockSize*6)
	rand.Read(target)

	blocks := blockMetaForTarget(target, testBlockSize)
	dir := t.TempDir()
	store, err := NewScratchStore(NewOSTempDir(dir), testBlockSize)
	assert.Ok(t, err)

	m, ranges, _ := newTestMatcher(blocks, testBlockSize, 2, 4, store)

	err = m.Scan(context.Background(), bytes.NewReader(target))
	assert.Ok(t, err)
	assert.Equals(t, int64(len(blocks)), ranges.Count())
}

func TestRollingMatcherEmptySeedMatchesNothing(t *testing.T) {
	rand.Seed(3)
	target := make([]byte, testBlockSize*4)
	rand.Read(target)

	blocks := blockMetaForTarget(target, testBlockSize)
	dir := t.TempDir()
	store, err := NewScratchStore(NewOSTempDir(dir), testBlockSize)
	assert.Ok(t, err)

	m, ranges, _ := newTestMatcher(blocks, testBlockSize, 1, 4, store)

	err = m.Scan(context.Background(), bytes.NewReader(nil))
	assert.Ok(t, err)
	assert.Equals(t, int64(0), ranges.Count())
}
