// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"golang.org/x/crypto/md4"
)

// rollingModulo is the modulus of the Adler-style rolling sum, matching
// rsync/zsync's 16-bit halves.
const rollingModulo = 1 << 16

// aMaskByBytes and bMaskByBytes give the masks selecting the significant low
// bits of the weak sum's two halves for a given rsum_bytes, indexed 1..4
// (index 0 is unused).
var (
	aMaskByBytes = [5]uint16{0, 0x0000, 0x0000, 0x00ff, 0xffff}
	bMaskByBytes = [5]uint16{0, 0x00ff, 0xffff, 0xffff, 0xffff}
)

// WeakSum is the rolling Adler-style checksum pair for a block.
type WeakSum struct {
	A, B uint16
}

// masked returns the weak sum with the insignificant high bytes zeroed out
// according to rsumBytes, so two sums compare equal iff their significant
// bytes agree.
func (w WeakSum) masked(rsumBytes int) WeakSum {
	return WeakSum{
		A: w.A & aMaskByBytes[rsumBytes],
		B: w.B & bMaskByBytes[rsumBytes],
	}
}

// BlockMeta is the precomputed (weak, strong) checksum pair for one block
// of the target file, plus the index-based hash-chain back-pointer used by
// ChecksumIndex. BlockMeta values are held in a stationary slice; nextID
// replaces the reference implementation's raw pointer arithmetic (spec §9).
type BlockMeta struct {
	ID     int32
	Weak   WeakSum
	Strong []byte

	// nextID is the next BlockMeta in this weak-hash bucket's chain, or -1.
	// Meaningful only while the block is present in the ChecksumIndex.
	nextID int32
}

// strongSum returns the first checksumBytes bytes of MD4 over block,
// matching zsync's truncated strong checksum (spec §3, §9: MD4 is kept
// solely for wire compatibility, never substituted).
func strongSum(block []byte, checksumBytes int) []byte {
	h := md4.New()
	h.Write(block)
	sum := h.Sum(nil)
	return sum[:checksumBytes]
}

// weakHash computes the zsync weak-hash index key (spec §4.3):
//
//	h = e.weak.b
//	h ^= ((seq_matches > 1 ? next_e.weak.b : e.weak.a & a_mask) << 3)
//
// mixer must already be either the next block's raw B half (seqMatches>1)
// or this block's A half masked by aMask (seqMatches==1); see
// weakHashMixer.
func weakHash(selfB, mixer uint16) uint32 {
	return uint32(selfB) ^ (uint32(mixer) << 3)
}

// weakHashMixer computes the "mixer" half-word weakHash needs, given
// whether a next block/window is available.
func weakHashMixer(seqMatches int, selfA uint16, aMask uint16, nextB uint16, hasNext bool) uint16 {
	if seqMatches > 1 && hasNext {
		return nextB
	}
	return selfA & aMask
}

// rollingState is the live rolling-sum state for one window position.
type rollingState struct {
	a, b uint32
}

// initRolling computes the initial rolling sum over block, following the
// reference rsync rolling-checksum definition (teacher's rollingHash in
// gsync.go/rsync.go, generalized to independent a/b halves without the
// combined r1+mod*r2 packing zsync doesn't use).
func initRolling(block []byte) rollingState {
	var a, b uint32
	l := uint32(len(block))
	for i, c := range block {
		a += uint32(c)
		b += (l - uint32(i)) * uint32(c)
	}
	return rollingState{a: a % rollingModulo, b: b % rollingModulo}
}

// updateRolling advances the rolling sum by one byte: old leaves the
// window, new enters it. blockShift is log2(block_size).
//
// This is the canonical rsync UPDATE_RSUM macro (spec §9, preserved
// exactly): the second line subtracts old<<blockShift from the *new* a,
// not the old one.
func updateRolling(s rollingState, old, new byte, blockShift uint) rollingState {
	a := (s.a + uint32(new) - uint32(old)) % rollingModulo
	b := (s.b + a - (uint32(old) << blockShift)) % rollingModulo
	return rollingState{a: a, b: b}
}

func (s rollingState) weak() WeakSum {
	return WeakSum{A: uint16(s.a), B: uint16(s.b)}
}
