// Package rowrange turns row-number criteria into sets of row offset ranges so
// filters on row numbers can be answered by slicing instead of scanning.
package rowrange

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// Unbounded is the upper bound of an open-ended range. It only appears when
// the table size is unknown.
const Unbounded int64 = math.MaxInt64

// Range is the half-open interval [Lower, Upper) of 0-based row offsets.
type Range struct {
	Lower int64
	Upper int64
}

// Open reports whether the range has no upper bound.
func (r Range) Open() bool { return r.Upper == Unbounded }

// Empty reports whether the range contains no offset.
func (r Range) Empty() bool { return r.Upper <= r.Lower }

// Len returns the number of offsets, or -1 for an open range.
func (r Range) Len() int64 {
	if r.Open() {
		return -1
	}
	return max(0, r.Upper-r.Lower)
}

func (r Range) String() string {
	if r.Open() {
		return fmt.Sprintf("[%d,∞)", r.Lower)
	}
	return fmt.Sprintf("[%d,%d)", r.Lower, r.Upper)
}

// Set is a sorted list of disjoint, non-adjacent, non-empty ranges.
type Set []Range

// NewSet normalizes ranges into a Set.
func NewSet(ranges ...Range) Set {
	rs := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Lower < 0 {
			r.Lower = 0
		}
		if !r.Empty() {
			rs = append(rs, r)
		}
	}
	if len(rs) == 0 {
		return nil
	}
	slices.SortFunc(rs, func(a, b Range) int {
		switch {
		case a.Lower < b.Lower:
			return -1
		case a.Lower > b.Lower:
			return 1
		}
		return 0
	})

	out := Set{rs[0]}
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Lower <= last.Upper {
			last.Upper = max(last.Upper, r.Upper)
			continue
		}
		out = append(out, r)
	}
	return out
}

// All returns [0,size), or [0,∞) when size is negative (unknown).
func All(size int64) Set {
	if size < 0 {
		return Set{{Lower: 0, Upper: Unbounded}}
	}
	return NewSet(Range{Lower: 0, Upper: size})
}

// IsEmpty reports whether the set contains no offset.
func (s Set) IsEmpty() bool { return len(s) == 0 }

// Count returns the number of offsets, or -1 when the set is open-ended.
func (s Set) Count() int64 {
	var n int64
	for _, r := range s {
		if r.Open() {
			return -1
		}
		n += r.Len()
	}
	return n
}

// Contains reports whether offset i is in the set.
func (s Set) Contains(i int64) bool {
	k := sort.Search(len(s), func(k int) bool { return s[k].Upper > i })
	return k < len(s) && s[k].Lower <= i
}

// Union returns s ∪ o.
func (s Set) Union(o Set) Set {
	all := make([]Range, 0, len(s)+len(o))
	all = append(all, s...)
	all = append(all, o...)
	return NewSet(all...)
}

// Intersect returns s ∩ o.
func (s Set) Intersect(o Set) Set {
	var out Set
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		lo := max(s[i].Lower, o[j].Lower)
		hi := min(s[i].Upper, o[j].Upper)
		if lo < hi {
			out = append(out, Range{Lower: lo, Upper: hi})
		}
		if s[i].Upper < o[j].Upper {
			i++
		} else {
			j++
		}
	}
	return NewSet(out...)
}

// Complement returns All(size) minus s.
func (s Set) Complement(size int64) Set {
	var out Set
	cursor := int64(0)
	for _, r := range s {
		if r.Lower > cursor {
			out = append(out, Range{Lower: cursor, Upper: r.Lower})
		}
		cursor = r.Upper
	}
	end := Unbounded
	if size >= 0 {
		end = size
	}
	if cursor < end {
		out = append(out, Range{Lower: cursor, Upper: end})
	}
	return NewSet(out...).Intersect(All(size))
}

// Equal reports whether both sets contain the same offsets.
func (s Set) Equal(o Set) bool {
	return slices.Equal(s, o)
}

func (s Set) String() string {
	if len(s) == 0 {
		return "{}"
	}
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, " ∪ ") + "}"
}
