package sequence

import (
	"fmt"
	"strconv"
)

// Range is an inclusive span of sequence numbers.
type Range struct {
	Lower int64
	Upper int64
}

func NewRange(lower, upper int64) (Range, error) {
	if lower < 1 {
		return Range{}, fmt.Errorf("sequence: lower bound must be positive, got %d", lower)
	}
	if upper < lower {
		return Range{}, fmt.Errorf("sequence: upper bound %d is below lower bound %d", upper, lower)
	}
	return Range{Lower: lower, Upper: upper}, nil
}

func (r Range) Contains(number int64) bool {
	return number >= r.Lower && number <= r.Upper
}

func (r Range) ContainsRange(other Range) bool {
	return other.Lower >= r.Lower && other.Upper <= r.Upper
}

func (r Range) Count() int64 {
	if r.Upper < r.Lower {
		return 0
	}
	return r.Upper - r.Lower + 1
}

func (r Range) String() string {
	if r.Lower == r.Upper {
		return strconv.FormatInt(r.Lower, 10)
	}
	return strconv.FormatInt(r.Lower, 10) + "-" + strconv.FormatInt(r.Upper, 10)
}
