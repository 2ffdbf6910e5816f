// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"bytes"
	"context"
	"io"
)

// RollingMatcher slides a window over an arbitrary byte stream, maintains
// one or two rolling weak sums, probes the ChecksumIndex, verifies
// candidates by strong hash, and writes matched blocks to the
// ScratchStore, updating the RangeSet as it goes (spec §4.4). It
// generalizes the teacher's buffered read-and-hash loop (gsync.go's
// rollingHash/rollingHash2, rsync_client.go's Sync) from a channel-based
// two-party handshake to a single-pass scan against a precomputed index.
type RollingMatcher struct {
	blocks     []BlockMeta
	blockSize  int64
	blockShift uint
	seqMatches int
	rsumBytes  int
	aMask      uint16

	index  *ChecksumIndex
	ranges *RangeSet
	store  *ScratchStore
	log    Logger
}

// NewRollingMatcher builds a matcher bound to the given session state.
func NewRollingMatcher(blocks []BlockMeta, blockSize int64, blockShift uint, seqMatches, rsumBytes int, index *ChecksumIndex, ranges *RangeSet, store *ScratchStore, log Logger) *RollingMatcher {
	if log == nil {
		log = NewNoopLogger()
	}
	return &RollingMatcher{
		blocks:     blocks,
		blockSize:  blockSize,
		blockShift: blockShift,
		seqMatches: seqMatches,
		rsumBytes:  rsumBytes,
		aMask:      aMaskByBytes[rsumBytes],
		index:      index,
		ranges:     ranges,
		store:      store,
		log:        log,
	}
}

// slidingBuffer maintains a compacting lookahead window over a reader:
// bytes behind the current scan cursor are discarded (never needed again,
// since rolling updates only ever read forward of the cursor), which
// serves the same purpose as the reference's fixed 16-block refill scheme
// without its rigid chunk size.
type slidingBuffer struct {
	r    io.Reader
	buf  []byte
	n    int64 // valid bytes in buf[0:n]
	x    int64 // scan cursor
	base int64 // absolute stream offset of buf[0]
	eof  bool
}

func newSlidingBuffer(r io.Reader, blockSize int64, seqMatches int) *slidingBuffer {
	context := blockSize * int64(seqMatches)
	cap := 16*blockSize + context + blockSize
	if cap < blockSize*4 {
		cap = blockSize * 4
	}
	return &slidingBuffer{r: r, buf: make([]byte, cap)}
}

// ensure guarantees at least need bytes are available ahead of the
// cursor, short of EOF.
func (s *slidingBuffer) ensure(need int64) error {
	for s.n-s.x < need && !s.eof {
		if s.x > 0 {
			kept := copy(s.buf, s.buf[s.x:s.n])
			s.n = int64(kept)
			s.base += s.x
			s.x = 0
		}
		if s.n == int64(len(s.buf)) {
			grown := make([]byte, len(s.buf)*2)
			copy(grown, s.buf[:s.n])
			s.buf = grown
		}
		read, err := s.r.Read(s.buf[s.n:])
		s.n += int64(read)
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			return errWrap(err, "failed reading seed stream")
		} else if read == 0 {
			s.eof = true
		}
	}
	return nil
}

// avail returns the number of valid bytes ahead of the cursor.
func (s *slidingBuffer) avail() int64 { return s.n - s.x }

// at returns the byte at cursor+off if resident, else 0 (zero padding for
// the final short window, spec §4.4's "at EOF the tail is zero-padded").
func (s *slidingBuffer) at(off int64) byte {
	p := s.x + off
	if p < s.n {
		return s.buf[p]
	}
	return 0
}

// block returns a blockSize-long slice starting at cursor+off, padding
// with zeros past EOF.
func (s *slidingBuffer) block(off, blockSize int64) []byte {
	start := s.x + off
	if start+blockSize <= s.n {
		return s.buf[start : start+blockSize]
	}
	out := make([]byte, blockSize)
	if start < s.n {
		copy(out, s.buf[start:s.n])
	}
	return out
}

// advance moves the cursor forward by n bytes.
func (s *slidingBuffer) advance(n int64) { s.x += n }

// Scan streams r through the matcher, writing every block it can
// recognize to the ScratchStore and updating the RangeSet.
func (m *RollingMatcher) Scan(ctx context.Context, r io.Reader) error {
	bs := m.blockSize
	lookahead := bs * int64(m.seqMatches+1)
	sb := newSlidingBuffer(r, bs, m.seqMatches)

	nextMatchID := int32(-1)

	var r1, r2 rollingState
	haveRolling := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := sb.ensure(lookahead); err != nil {
			return err
		}
		if sb.avail() <= 0 {
			break
		}

		if !haveRolling {
			r1 = initRolling(sb.block(0, bs))
			if m.seqMatches > 1 {
				r2 = initRolling(sb.block(bs, bs))
			}
			haveRolling = true
		}

		matchedID, matchedCount, firstBlock, secondBlock := m.tryMatch(sb, r1, r2, nextMatchID)
		if matchedID >= 0 {
			writeCount, newNextMatch := m.acceptMatch(matchedID, matchedCount)
			if err := m.writeAccepted(matchedID, writeCount, firstBlock, secondBlock); err != nil {
				return err
			}
			nextMatchID = newNextMatch
			sb.advance(bs * int64(matchedCount))
			haveRolling = false
			continue
		}

		nextMatchID = -1

		old := sb.at(0)
		newA := sb.at(bs)
		r1 = updateRolling(r1, old, newA, m.blockShift)
		if m.seqMatches > 1 {
			newB := sb.at(2 * bs)
			r2 = updateRolling(r2, newA, newB, m.blockShift)
		}
		sb.advance(1)
	}
	return nil
}

// tryMatch evaluates the current window against either the cached
// nextMatchID ("onlyone" fast path, spec §4.4 step 1) or, failing that,
// the general weak-hash bucket, and verifies by strong hash. It returns
// the matched BlockId and match count (1 or 2), or -1 if nothing matched.
func (m *RollingMatcher) tryMatch(sb *slidingBuffer, r1, r2 rollingState, nextMatchID int32) (matchedID int32, matchedCount int, firstBlock, secondBlock []byte) {
	bs := m.blockSize
	w1 := r1.weak().masked(m.rsumBytes)
	var w2 WeakSum
	if m.seqMatches > 1 {
		w2 = r2.weak().masked(m.rsumBytes)
	}

	// Strong hashes are expensive and identical across every candidate at
	// this scan position, so compute them at most once (lazily, since
	// most positions never get past the weak-sum check at all).
	var b1, b2 []byte
	var strong1, strong2 []byte

	check := func(cand int32) (int32, int, bool) {
		e := &m.blocks[cand]
		if e.Weak.masked(m.rsumBytes) != w1 {
			return 0, 0, false
		}
		need := 1
		if m.seqMatches > 1 {
			next := int(cand) + 1
			if next >= len(m.blocks) {
				return 0, 0, false
			}
			if m.blocks[next].Weak.masked(m.rsumBytes) != w2 {
				return 0, 0, false
			}
			need = 2
		}

		if b1 == nil {
			b1 = sb.block(0, bs)
			strong1 = strongSum(b1, len(e.Strong))
		}
		if !bytes.Equal(strong1, e.Strong) {
			return 0, 0, false
		}
		if need == 2 {
			if b2 == nil {
				b2 = sb.block(bs, bs)
				strong2 = strongSum(b2, len(m.blocks[cand+1].Strong))
			}
			if !bytes.Equal(strong2, m.blocks[cand+1].Strong) {
				return 0, 0, false
			}
		}
		return cand, need, true
	}

	if nextMatchID >= 0 {
		if id, n, ok := check(nextMatchID); ok {
			return id, n, b1, b2
		}
	}

	mixer := weakHashMixer(m.seqMatches, r1.weak().A, m.aMask, w2.B, m.seqMatches > 1)
	for cand := m.index.Lookup(w1.B, mixer); cand != noNext; cand = m.index.Next(cand) {
		if cand == nextMatchID {
			continue // already tried above
		}
		if id, n, ok := check(cand); ok {
			return id, n, b1, b2
		}
	}
	return -1, 0, nil, nil
}

// acceptMatch applies spec §4.4 step 5: decide how many of the matched
// blocks are actually new, and whether to cache a "next_match" rover for
// the following scan position.
func (m *RollingMatcher) acceptMatch(bid int32, matchedCount int) (writeCount int, nextMatchID int32) {
	blockCount := int64(len(m.blocks))
	afterMatch := int64(bid) + int64(matchedCount)
	nextKnown := m.ranges.NextKnown(afterMatch, blockCount)

	if nextKnown > afterMatch {
		writeCount = matchedCount
		if afterMatch < blockCount {
			nextMatchID = int32(afterMatch)
		} else {
			nextMatchID = -1
		}
	} else {
		writeCount = int(nextKnown - int64(bid))
		nextMatchID = -1
	}
	return writeCount, nextMatchID
}

// writeAccepted persists the first writeCount matched blocks (spec §4.4:
// "write_blocks(lo, hi, data)").
func (m *RollingMatcher) writeAccepted(bid int32, writeCount int, firstBlock, secondBlock []byte) error {
	if writeCount <= 0 {
		return nil
	}
	data := firstBlock
	if writeCount == 2 {
		data = append(append([]byte{}, firstBlock...), secondBlock...)
	}
	lo := int64(bid)
	hi := lo + int64(writeCount) - 1
	if err := m.store.WriteBlocks(lo, hi, data); err != nil {
		return err
	}
	for b := lo; b <= hi; b++ {
		m.index.Remove(int32(b))
		m.ranges.Insert(b)
	}
	return nil
}
