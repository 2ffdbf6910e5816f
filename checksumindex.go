// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import "github.com/bits-and-blooms/bitset"

// noNext marks the end of a hash-chain bucket.
const noNext int32 = -1

// ChecksumIndex is the two-level weak-hash index over a stationary
// []BlockMeta slice (spec §4.3): a bit filter for fast negative lookups,
// and chained buckets for positive lookups. Buckets are represented as
// index-based linked lists through BlockMeta.nextID rather than pointers
// (spec §9).
type ChecksumIndex struct {
	blocks []BlockMeta // owned by SyncSession; not copied

	seqMatches int
	aMask      uint16

	hashMask uint32
	bitMask  uint32
	buckets  []int32 // bucket head, indexed by h&hashMask; noNext if empty
	bits     *bitset.BitSet

	built bool
}

// NewChecksumIndex constructs an (unbuilt) index over blocks.
func NewChecksumIndex(blocks []BlockMeta, seqMatches int, rsumBytes int) *ChecksumIndex {
	return &ChecksumIndex{
		blocks:     blocks,
		seqMatches: seqMatches,
		aMask:      aMaskByBytes[rsumBytes],
	}
}

// chooseK picks k per spec §4.3: start at 16, shrink while the resulting
// table would be more than twice as large as needed.
func chooseK(blockCount int) uint {
	k := uint(16)
	for k > 4 && (int64(2)<<(k-1)) > int64(blockCount) {
		k--
	}
	return k
}

// Build (re)constructs the index from scratch over the current blocks
// slice. Constructed lazily on first Match/Receive call (spec §3
// lifecycle).
func (idx *ChecksumIndex) Build() {
	blockCount := len(idx.blocks)
	k := chooseK(blockCount)
	idx.hashMask = uint32((2 << k) - 1)
	idx.bitMask = uint32((2 << (k + 3)) - 1)

	idx.buckets = make([]int32, idx.hashMask+1)
	for i := range idx.buckets {
		idx.buckets[i] = noNext
	}
	idx.bits = bitset.New(uint(idx.bitMask) + 1)

	// Iterate in reverse so prepending yields ascending BlockId within
	// each chain (spec §4.3).
	for b := blockCount - 1; b >= 0; b-- {
		idx.linkBlock(int32(b))
	}
	idx.built = true
}

// mixerFor computes the weakHash mixer half-word for block b, consulting
// the following block's weak sum when seqMatches>1 (spec §4.3's next_e).
func (idx *ChecksumIndex) mixerFor(b int32) uint16 {
	e := &idx.blocks[b]
	hasNext := idx.seqMatches > 1 && int(b)+1 < len(idx.blocks)
	var nextB uint16
	if hasNext {
		nextB = idx.blocks[b+1].Weak.B
	}
	return weakHashMixer(idx.seqMatches, e.Weak.A, idx.aMask, nextB, hasNext)
}

func (idx *ChecksumIndex) hashFor(b int32) uint32 {
	return weakHash(idx.blocks[b].Weak.B, idx.mixerFor(b))
}

func (idx *ChecksumIndex) linkBlock(b int32) {
	h := idx.hashFor(b)
	bucketIdx := h & idx.hashMask
	idx.blocks[b].nextID = idx.buckets[bucketIdx]
	idx.buckets[bucketIdx] = b
	idx.bits.Set(uint(h & idx.bitMask))
}

// EnsureBuilt builds the index on first use.
func (idx *ChecksumIndex) EnsureBuilt() {
	if !idx.built {
		idx.Build()
	}
}

// Invalidate drops the index; the next Match/Receive call rebuilds it
// (spec §4.3: mutation of any BlockMeta while an index exists invalidates
// it).
func (idx *ChecksumIndex) Invalidate() {
	idx.built = false
	idx.buckets = nil
	idx.bits = nil
}

// Remove unlinks block bid from its bucket chain (spec §4.3). The bit
// filter bit is never cleared (conservative: false positives allowed).
func (idx *ChecksumIndex) Remove(bid int32) {
	if !idx.built {
		return
	}
	h := idx.hashFor(bid)
	bucketIdx := h & idx.hashMask

	cur := idx.buckets[bucketIdx]
	if cur == bid {
		idx.buckets[bucketIdx] = idx.blocks[bid].nextID
		idx.blocks[bid].nextID = noNext
		return
	}
	for cur != noNext {
		next := idx.blocks[cur].nextID
		if next == bid {
			idx.blocks[cur].nextID = idx.blocks[bid].nextID
			idx.blocks[bid].nextID = noNext
			return
		}
		cur = next
	}
}

// Lookup returns the head of the bucket chain for the live rolling weak
// sum (selfB, mixer), or noNext if the bit filter rules it out.
func (idx *ChecksumIndex) Lookup(selfB, mixer uint16) int32 {
	idx.EnsureBuilt()
	h := weakHash(selfB, mixer)
	if !idx.bits.Test(uint(h & idx.bitMask)) {
		return noNext
	}
	return idx.buckets[h&idx.hashMask]
}

// Next returns the next candidate in a bucket chain following b.
func (idx *ChecksumIndex) Next(b int32) int32 {
	return idx.blocks[b].nextID
}
