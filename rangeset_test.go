// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"testing"

	"github.com/hooklift/assert"
)

func TestRangeSetInsertMerging(t *testing.T) {
	s := NewRangeSet()

	s.Insert(5)
	assert.Equals(t, int64(1), s.Count())
	assert.Cond(t, s.Contains(5), "5 should be known")
	assert.Cond(t, !s.Contains(4), "4 should not be known")

	// interior membership is a no-op
	s.Insert(5)
	assert.Equals(t, 1, s.Len())

	// extend the existing singleton forward
	s.Insert(6)
	assert.Equals(t, 1, s.Len())
	assert.Equals(t, int64(2), s.Count())

	// extend backward
	s.Insert(4)
	assert.Equals(t, 1, s.Len())
	assert.Equals(t, blockRange{Lo: 4, Hi: 6}, s.ranges[0])

	// disjoint singleton elsewhere
	s.Insert(10)
	assert.Equals(t, 2, s.Len())

	// bridge the gap, merging both ranges into one
	s.Insert(7)
	s.Insert(8)
	s.Insert(9)
	assert.Equals(t, 1, s.Len())
	assert.Equals(t, blockRange{Lo: 4, Hi: 10}, s.ranges[0])
}

func TestRangeSetComplementEmpty(t *testing.T) {
	s := NewRangeSet()
	gaps := s.Complement(0, 9)
	assert.Equals(t, 1, len(gaps))
	assert.Equals(t, blockRange{Lo: 0, Hi: 10}, gaps[0])
}

func TestRangeSetComplementWithHoles(t *testing.T) {
	s := NewRangeSet()
	for _, b := range []int64{2, 3, 4, 7} {
		s.Insert(b)
	}
	gaps := s.Complement(0, 9)
	assert.Equals(t, []blockRange{
		{Lo: 0, Hi: 2},
		{Lo: 5, Hi: 7},
		{Lo: 8, Hi: 10},
	}, gaps)
}

func TestRangeSetComplementFullyCovered(t *testing.T) {
	s := NewRangeSet()
	for b := int64(0); b <= 9; b++ {
		s.Insert(b)
	}
	gaps := s.Complement(0, 9)
	assert.Equals(t, 0, len(gaps))
}

func TestRangeSetNextKnown(t *testing.T) {
	s := NewRangeSet()
	s.Insert(3)
	s.Insert(4)
	s.Insert(8)

	assert.Equals(t, int64(3), s.NextKnown(0, 100))
	assert.Equals(t, int64(3), s.NextKnown(3, 100))
	assert.Equals(t, int64(8), s.NextKnown(5, 100))
	assert.Equals(t, int64(100), s.NextKnown(9, 100))
}
