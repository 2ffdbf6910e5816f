// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import "sort"

// blockRange is a closed interval [Lo, Hi] of BlockIds.
type blockRange struct {
	Lo, Hi int64
}

// RangeSet is an ordered set of disjoint closed BlockId intervals (spec
// §4.1). It tracks which blocks are already known (materialized in the
// scratch file).
type RangeSet struct {
	ranges []blockRange
}

// NewRangeSet returns an empty RangeSet.
func NewRangeSet() *RangeSet {
	return &RangeSet{}
}

// Len returns the number of disjoint ranges currently held.
func (s *RangeSet) Len() int {
	return len(s.ranges)
}

// Count returns the total number of blocks covered by all ranges.
func (s *RangeSet) Count() int64 {
	var n int64
	for _, r := range s.ranges {
		n += r.Hi - r.Lo + 1
	}
	return n
}

// indexContaining returns the index of the range containing x, or the
// index at which a new range starting at or after x would be inserted,
// and whether x is contained in an existing range.
func (s *RangeSet) indexContaining(x int64) (int, bool) {
	i := sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].Hi >= x
	})
	if i < len(s.ranges) && s.ranges[i].Lo <= x {
		return i, true
	}
	return i, false
}

// Contains reports whether x lies inside some known range.
func (s *RangeSet) Contains(x int64) bool {
	_, ok := s.indexContaining(x)
	return ok
}

// NextKnown returns the smallest known y >= x, or limit if no such y
// exists below limit. x itself is returned if x is already known.
func (s *RangeSet) NextKnown(x, limit int64) int64 {
	i, ok := s.indexContaining(x)
	if ok {
		return x
	}
	if i < len(s.ranges) {
		return s.ranges[i].Lo
	}
	return limit
}

// Insert adds block x to the set, merging adjacent ranges per the exact
// tie-break order spec §4.1 fixes: interior membership is a no-op;
// bridging two existing ranges merges them into one; extending a single
// neighbor takes priority over creating a new singleton.
func (s *RangeSet) Insert(x int64) {
	i, ok := s.indexContaining(x)
	if ok {
		return
	}

	extendsPrev := i > 0 && s.ranges[i-1].Hi == x-1
	extendsNext := i < len(s.ranges) && s.ranges[i].Lo == x+1

	switch {
	case extendsPrev && extendsNext:
		s.ranges[i-1].Hi = s.ranges[i].Hi
		s.ranges = append(s.ranges[:i], s.ranges[i+1:]...)
	case extendsPrev:
		s.ranges[i-1].Hi = x
	case extendsNext:
		s.ranges[i].Lo = x
	default:
		s.ranges = append(s.ranges, blockRange{})
		copy(s.ranges[i+1:], s.ranges[i:])
		s.ranges[i] = blockRange{Lo: x, Hi: x}
	}
}

// Complement returns the half-open gaps not covered by the set within
// [from, to] inclusive, expressed as half-open [lo, hi) block ranges.
func (s *RangeSet) Complement(from, to int64) []blockRange {
	var gaps []blockRange
	cursor := from
	for _, r := range s.ranges {
		if r.Hi < from {
			continue
		}
		if r.Lo > to {
			break
		}
		lo := r.Lo
		if cursor < lo {
			gaps = append(gaps, blockRange{Lo: cursor, Hi: lo})
		}
		if r.Hi+1 > cursor {
			cursor = r.Hi + 1
		}
	}
	if cursor <= to {
		gaps = append(gaps, blockRange{Lo: cursor, Hi: to + 1})
	}
	return gaps
}
