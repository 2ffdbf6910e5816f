// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"testing"

	"github.com/hooklift/assert"
)

func buildBlocks(contents []string, seqMatches, rsumBytes, checksumLen int) []BlockMeta {
	blocks := make([]BlockMeta, len(contents))
	for i, s := range contents {
		block := []byte(s)
		blocks[i] = BlockMeta{
			ID:     int32(i),
			Weak:   initRolling(block).weak(),
			Strong: strongSum(block, checksumLen),
			nextID: noNext,
		}
	}
	return blocks
}

func TestChecksumIndexLookupFindsKnownBlock(t *testing.T) {
	blocks := buildBlocks([]string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}, 1, 4, 8)
	idx := NewChecksumIndex(blocks, 1, 4)
	idx.EnsureBuilt()

	w := blocks[1].Weak.masked(4)
	mixer := weakHashMixer(1, blocks[1].Weak.A, aMaskByBytes[4], 0, false)
	cand := idx.Lookup(w.B, mixer)

	found := false
	for c := cand; c != noNext; c = idx.Next(c) {
		if c == 1 {
			found = true
		}
	}
	assert.Cond(t, found, "block 1 should be reachable from its own bucket")
}

func TestChecksumIndexRemoveUnlinks(t *testing.T) {
	blocks := buildBlocks([]string{"aaaaaaaa", "bbbbbbbb"}, 1, 4, 8)
	idx := NewChecksumIndex(blocks, 1, 4)
	idx.EnsureBuilt()

	idx.Remove(0)

	w := blocks[0].Weak.masked(4)
	mixer := weakHashMixer(1, blocks[0].Weak.A, aMaskByBytes[4], 0, false)
	for c := idx.Lookup(w.B, mixer); c != noNext; c = idx.Next(c) {
		assert.Cond(t, c != 0, "removed block must not appear in its bucket chain")
	}
}

func TestChooseKShrinksForSmallTables(t *testing.T) {
	assert.Cond(t, chooseK(4) < chooseK(1_000_000), "k should grow with table size")
	assert.Cond(t, chooseK(1_000_000) <= 16, "k is capped at 16")
}
