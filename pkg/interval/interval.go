package interval

import "sort"

// Interval is an inclusive integer range [Lo, Hi].
type Interval struct {
	Lo, Hi int
}

// Set is a sorted, disjoint collection of Intervals. A normalized Set
// never contains empty, overlapping, or out-of-order ranges; two
// adjacent ranges (Hi+1 == nextLo) are merged.
type Set []Interval

// FromIDs builds a normalized Set from an arbitrary collection of
// resource ids.
func FromIDs(ids []int) Set {
	if len(ids) == 0 {
		return Set{}
	}
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	out := Set{{Lo: sorted[0], Hi: sorted[0]}}
	for _, id := range sorted[1:] {
		last := &out[len(out)-1]
		if id == last.Hi || id == last.Hi+1 {
			if id > last.Hi {
				last.Hi = id
			}
			continue
		}
		out = append(out, Interval{Lo: id, Hi: id})
	}
	return out
}

// ToIDs expands a Set into its individual ids, in ascending order.
func (s Set) ToIDs() []int {
	ids := make([]int, 0, s.Size())
	for _, itv := range s {
		for id := itv.Lo; id <= itv.Hi; id++ {
			ids = append(ids, id)
		}
	}
	return ids
}

// Size returns the total number of ids covered by the set.
func (s Set) Size() int {
	n := 0
	for _, itv := range s {
		n += itv.Hi - itv.Lo + 1
	}
	return n
}

// Equal reports whether two sets cover exactly the same ids. Sets are
// expected to be normalized; Normalize if built by hand.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Normalize sorts and merges a possibly messy Set into canonical form.
func Normalize(s Set) Set {
	if len(s) == 0 {
		return Set{}
	}
	cp := append(Set(nil), s...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Lo < cp[j].Lo })

	out := Set{cp[0]}
	for _, itv := range cp[1:] {
		last := &out[len(out)-1]
		if itv.Lo > last.Hi+1 {
			out = append(out, itv)
			continue
		}
		if itv.Hi > last.Hi {
			last.Hi = itv.Hi
		}
	}
	return out
}

// Union returns the sorted union of a and b.
func Union(a, b Set) Set {
	return Normalize(append(append(Set(nil), a...), b...))
}

// Intersect returns the intersection of a and b, a two-pointer sweep
// linear in len(a)+len(b).
func Intersect(a, b Set) Set {
	var out Set
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := max(a[i].Lo, b[j].Lo)
		hi := min(a[i].Hi, b[j].Hi)
		if lo <= hi {
			out = append(out, Interval{Lo: lo, Hi: hi})
		}
		if a[i].Hi < b[j].Hi {
			i++
		} else {
			j++
		}
	}
	return out
}

// Subtract returns a with every id in b removed.
func Subtract(a, b Set) Set {
	var out Set
	j := 0
	for _, itv := range a {
		lo := itv.Lo
		for j < len(b) && b[j].Hi < lo {
			j++
		}
		k := j
		for k < len(b) && b[k].Lo <= itv.Hi {
			if b[k].Lo > lo {
				out = append(out, Interval{Lo: lo, Hi: b[k].Lo - 1})
			}
			if b[k].Hi+1 > lo {
				lo = b[k].Hi + 1
			}
			k++
		}
		if lo <= itv.Hi {
			out = append(out, Interval{Lo: lo, Hi: itv.Hi})
		}
	}
	return out
}

// Contains reports whether id is covered by the set.
func (s Set) Contains(id int) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].Hi >= id })
	return i < len(s) && s[i].Lo <= id
}
