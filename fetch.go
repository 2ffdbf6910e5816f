// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
)

// remoteFetchAdapter translates missing-block ranges into remote byte
// ranges, drives the HttpRangeFetcher collaborator, and feeds returned
// bytes into the receive path (spec §4.7). It owns the one-block receive
// buffer that lets chunk boundaries disagree with block boundaries.
type remoteFetchAdapter struct {
	s *SyncSession

	outbuf     []byte
	outLen     int
	outBlockID int64
	lastOffset int64
	haveLast   bool
}

func newRemoteFetchAdapter(s *SyncSession) *remoteFetchAdapter {
	return &remoteFetchAdapter{s: s, outbuf: make([]byte, s.blockSize)}
}

// run implements the driver loop of spec §4.7: while the session isn't
// complete and at least one URL hasn't failed, pick a random non-failed
// URL, request all remaining byte ranges from it, and stream the result
// into the receive path. A fetch or corruption failure blacklists that URL
// for the rest of the session and tries another.
func (a *remoteFetchAdapter) run(ctx context.Context, fetcher HttpRangeFetcher, urls []string) error {
	if len(urls) == 0 {
		return newErr(ErrAllURLsExhausted, nil, "control file carries no URLs")
	}

	dead := make(map[string]bool, len(urls))

	for a.s.Status() != StatusComplete {
		url, ok := pickURL(urls, dead)
		if !ok {
			break
		}

		ranges := a.s.NeededByteRanges()
		if len(ranges) == 0 {
			break
		}

		a.resetBuffer()

		ch, err := fetcher.FetchRanges(ctx, url, ranges)
		if err != nil {
			dead[url] = true
			a.s.log.Warningf("fetch from %s failed: %v", url, newErr(ErrRemoteFetch, err, "FetchRanges failed"))
			continue
		}

		failed := false
		for chunk := range ch {
			if chunk.Err != nil {
				dead[url] = true
				failed = true
				a.s.log.Warningf("fetch from %s failed mid-stream: %v", url, newErr(ErrRemoteFetch, chunk.Err, "chunk read failed"))
				break
			}

			if err := a.receiveBytes(chunk.Offset, chunk.Data); err != nil {
				var syncErr *SyncError
				if errors.As(err, &syncErr) && syncErr.Kind == ErrCorruptRemoteBlock {
					dead[url] = true
					failed = true
					a.s.log.Warningf("discarding corrupt range from %s: %v", url, err)
					break
				}
				return err
			}
		}

		// The stream ended: flush a trailing partial (short final) block.
		if !failed {
			if err := a.receiveBytes(a.lastOffset, nil); err != nil {
				var syncErr *SyncError
				if !errors.As(err, &syncErr) || syncErr.Kind != ErrCorruptRemoteBlock {
					return err
				}
				dead[url] = true
				a.s.log.Warningf("discarding corrupt range from %s: %v", url, err)
			}
		}
	}

	if a.s.Status() != StatusComplete {
		return newErr(ErrAllURLsExhausted, nil, "all URLs exhausted before sync completed")
	}
	return nil
}

func (a *remoteFetchAdapter) resetBuffer() {
	a.outLen = 0
	a.haveLast = false
}

func pickURL(urls []string, dead map[string]bool) (string, bool) {
	var candidates []string
	for _, u := range urls {
		if !dead[u] {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// receiveBytes implements spec §4.7's three-phase assembly: continue a
// pending partial block if this chunk is contiguous with the last one,
// consume full blocks directly, then stash any new tail.
func (a *remoteFetchAdapter) receiveBytes(offset int64, chunk []byte) error {
	bs := a.s.blockSize
	pos := offset
	data := chunk

	// Phase 1: continue a pending partial block.
	if a.haveLast && pos == a.lastOffset && a.outLen > 0 && a.outLen < len(a.outbuf) {
		need := len(a.outbuf) - a.outLen
		n := need
		if n > len(data) {
			n = len(data)
		}
		copy(a.outbuf[a.outLen:], data[:n])
		a.outLen += n
		pos += int64(n)
		data = data[n:]

		if a.outLen == len(a.outbuf) {
			if err := a.submit(a.outbuf, a.outBlockID, a.outBlockID); err != nil {
				return err
			}
			a.outLen = 0
		}
	}

	// An explicit zero-length call flushes any trailing partial block,
	// zero-padded to a full block, instead of waiting for more data that
	// will never arrive.
	if len(chunk) == 0 {
		if a.outLen > 0 {
			padded := make([]byte, bs)
			copy(padded, a.outbuf[:a.outLen])
			if err := a.submit(padded, a.outBlockID, a.outBlockID); err != nil {
				return err
			}
			a.outLen = 0
		}
		a.lastOffset = offset
		a.haveLast = true
		return nil
	}

	// Phase 2: consume full blocks directly from the chunk.
	if len(data) > 0 && pos%bs == 0 {
		nFull := int64(len(data)) / bs
		if nFull > 0 {
			blockLo := pos / bs
			if err := a.submit(data[:nFull*bs], blockLo, blockLo+nFull-1); err != nil {
				return err
			}
			data = data[nFull*bs:]
			pos += nFull * bs
		}
	}

	// Phase 3: save the tail (< one block) for the next call.
	if len(data) > 0 {
		a.outBlockID = pos / bs
		a.outLen = copy(a.outbuf, data)
	}

	a.lastOffset = pos + int64(len(data))
	a.haveLast = true
	return nil
}

// submit verifies every block's strong sum against BlockMeta[b].Strong; on
// the first mismatch it writes the already-verified prefix and returns
// CorruptRemoteBlock so the caller can discard the rest and re-request it
// from another URL. On full success the whole range is written and
// removed from the ChecksumIndex (spec §4.7).
func (a *remoteFetchAdapter) submit(buf []byte, lo, hi int64) error {
	a.s.index.EnsureBuilt()
	bs := a.s.blockSize
	n := hi - lo + 1

	var verified int64
	for i := int64(0); i < n; i++ {
		bid := lo + i
		block := buf[i*bs : (i+1)*bs]
		want := a.s.ctrl.Blocks[bid].Strong
		if !bytes.Equal(strongSum(block, len(want)), want) {
			break
		}
		verified++
	}

	if verified > 0 {
		if err := a.s.store.WriteBlocks(lo, lo+verified-1, buf[:verified*bs]); err != nil {
			return err
		}
		for b := lo; b < lo+verified; b++ {
			a.s.index.Remove(int32(b))
			a.s.ranges.Insert(b)
		}
	}

	if verified < n {
		return newErr(ErrCorruptRemoteBlock, nil, "strong checksum mismatch at block %d", lo+verified)
	}
	return nil
}
