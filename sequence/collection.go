package sequence

import (
	"sort"
	"strings"
)

// RangeCollection is a sorted set of disjoint, non-adjacent ranges. The zero
// value is empty and ready to use. Values never change once built; every
// merge returns a new collection.
type RangeCollection struct {
	ranges []Range
}

// Empty is the canonical collection with no ranges.
var Empty = RangeCollection{}

// NewRangeCollection normalizes the given ranges into a collection.
func NewRangeCollection(ranges ...Range) RangeCollection {
	out := Empty
	for _, r := range ranges {
		if r.Lower < 1 || r.Upper < r.Lower {
			continue
		}
		out = out.MergeRange(r)
	}
	return out
}

func (c RangeCollection) Count() int {
	return len(c.ranges)
}

// At returns the range at index i. It panics when i is out of bounds, like a
// slice index.
func (c RangeCollection) At(i int) Range {
	return c.ranges[i]
}

func (c RangeCollection) Ranges() []Range {
	if len(c.ranges) == 0 {
		return nil
	}
	return append([]Range(nil), c.ranges...)
}

// Lower returns the smallest number in the collection, or 0 when empty.
func (c RangeCollection) Lower() int64 {
	if len(c.ranges) == 0 {
		return 0
	}
	return c.ranges[0].Lower
}

// Upper returns the highest number in the collection, or 0 when empty.
func (c RangeCollection) Upper() int64 {
	if len(c.ranges) == 0 {
		return 0
	}
	return c.ranges[len(c.ranges)-1].Upper
}

func (c RangeCollection) Contains(number int64) bool {
	i := c.search(number)
	return i < len(c.ranges) && c.ranges[i].Contains(number)
}

// MergeWith returns a collection that also holds number. Numbers below 1 and
// numbers already present return the receiver unchanged.
func (c RangeCollection) MergeWith(number int64) RangeCollection {
	if number < 1 {
		return c
	}
	i := c.search(number)
	if i < len(c.ranges) && c.ranges[i].Contains(number) {
		return c
	}

	switch {
	case i < len(c.ranges) && c.ranges[i].Upper == number-1:
		if i+1 < len(c.ranges) && c.ranges[i+1].Lower-1 == number {
			next := make([]Range, 0, len(c.ranges)-1)
			next = append(next, c.ranges[:i]...)
			next = append(next, Range{Lower: c.ranges[i].Lower, Upper: c.ranges[i+1].Upper})
			next = append(next, c.ranges[i+2:]...)
			return RangeCollection{ranges: next}
		}
		next := c.Ranges()
		next[i].Upper = number
		return RangeCollection{ranges: next}
	case i < len(c.ranges) && c.ranges[i].Lower-1 == number:
		next := c.Ranges()
		next[i].Lower = number
		return RangeCollection{ranges: next}
	default:
		next := make([]Range, 0, len(c.ranges)+1)
		next = append(next, c.ranges[:i]...)
		next = append(next, Range{Lower: number, Upper: number})
		next = append(next, c.ranges[i:]...)
		return RangeCollection{ranges: next}
	}
}

// MergeRange returns a collection that also holds every number of r, fusing
// any overlapping or adjacent ranges.
func (c RangeCollection) MergeRange(r Range) RangeCollection {
	if r.Lower < 1 || r.Upper < r.Lower {
		return c
	}
	start := c.search(r.Lower)
	end := start
	merged := r
	for end < len(c.ranges) && c.ranges[end].Lower-1 <= r.Upper {
		if c.ranges[end].Lower < merged.Lower {
			merged.Lower = c.ranges[end].Lower
		}
		if c.ranges[end].Upper > merged.Upper {
			merged.Upper = c.ranges[end].Upper
		}
		end++
	}
	if end-start == 1 && c.ranges[start] == merged {
		return c
	}
	next := make([]Range, 0, len(c.ranges)-(end-start)+1)
	next = append(next, c.ranges[:start]...)
	next = append(next, merged)
	next = append(next, c.ranges[end:]...)
	return RangeCollection{ranges: next}
}

func (c RangeCollection) Equal(other RangeCollection) bool {
	if len(c.ranges) != len(other.ranges) {
		return false
	}
	for i := range c.ranges {
		if c.ranges[i] != other.ranges[i] {
			return false
		}
	}
	return true
}

func (c RangeCollection) String() string {
	parts := make([]string, 0, len(c.ranges))
	for _, r := range c.ranges {
		parts = append(parts, r.String())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// search returns the index of the first range whose upper bound touches or
// passes number.
func (c RangeCollection) search(number int64) int {
	return sort.Search(len(c.ranges), func(i int) bool {
		return c.ranges[i].Upper >= number-1
	})
}
