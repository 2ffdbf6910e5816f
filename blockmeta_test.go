// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"math/rand"
	"testing"

	"github.com/hooklift/assert"
)

func TestRollingSumMatchesRecompute(t *testing.T) {
	rand.Seed(1)
	buf := make([]byte, 64+8)
	rand.Read(buf)

	const bs = 8
	r := initRolling(buf[0:bs])

	for x := int64(0); x+bs < int64(len(buf)); x++ {
		want := initRolling(buf[x+1 : x+1+bs])
		r = updateRolling(r, buf[x], buf[x+bs], 3) // blockShift=3 -> block_size=8
		assert.Equals(t, want.weak(), r.weak())
	}
}

func TestWeakSumMasked(t *testing.T) {
	w := WeakSum{A: 0xABCD, B: 0x1234}

	assert.Equals(t, WeakSum{A: 0x0000, B: 0x0034}, w.masked(1))
	assert.Equals(t, WeakSum{A: 0x0000, B: 0x1234}, w.masked(2))
	assert.Equals(t, WeakSum{A: 0x00CD, B: 0x1234}, w.masked(3))
	assert.Equals(t, WeakSum{A: 0xABCD, B: 0x1234}, w.masked(4))
}

func TestStrongSumDeterministicAndTruncated(t *testing.T) {
	block := []byte("the quick brown fox jumps over the lazy dog")

	full := strongSum(block, 16)
	again := strongSum(block, 16)
	assert.Equals(t, full, again)

	short := strongSum(block, 4)
	assert.Equals(t, full[:4], short)
}

func TestWeakHashMixer(t *testing.T) {
	// seqMatches==1: mixer is this block's A half, masked.
	m := weakHashMixer(1, 0xABCD, aMaskByBytes[3], 0x1111, false)
	assert.Equals(t, uint16(0x00CD), m)

	// seqMatches>1 with a following block: mixer is the next block's raw B.
	m = weakHashMixer(2, 0xABCD, aMaskByBytes[3], 0x7777, true)
	assert.Equals(t, uint16(0x7777), m)

	// seqMatches>1 but no following block (last block): falls back to A.
	m = weakHashMixer(2, 0xABCD, aMaskByBytes[3], 0x7777, false)
	assert.Equals(t, uint16(0x00CD), m)
}
