package selection

import "sort"

// Set is an immutable selection of user ids. Every transform returns a
// new Set; callers never see their input mutated.
type Set map[int64]struct{}

// New builds a Set from ids
func New(ids ...int64) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) clone() Set {
	out := make(Set, len(s)+1)
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Contains reports whether id is selected
func (s Set) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// Count returns the selection size
func (s Set) Count() int {
	return len(s)
}

// IDs returns the selected ids in ascending order
func (s Set) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Toggle flips membership of one id
func Toggle(s Set, id int64) Set {
	out := s.clone()
	if _, ok := out[id]; ok {
		delete(out, id)
	} else {
		out[id] = struct{}{}
	}
	return out
}

// RangeSelect adds every id between the anchor and target positions,
// inclusive, in the currently visible page ordering. This is the
// shift-click: it is index-based on the visible rows, so changing
// filters or pages resets the anchor. Out-of-range indices are clamped
// to the visible rows; nothing outside visibleIDs is ever touched.
func RangeSelect(visibleIDs []int64, s Set, anchorIndex, targetIndex int) Set {
	if len(visibleIDs) == 0 {
		return s.clone()
	}

	lo, hi := anchorIndex, targetIndex
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(visibleIDs)-1 {
		hi = len(visibleIDs) - 1
	}
	if lo > len(visibleIDs)-1 || hi < 0 {
		return s.clone()
	}

	out := s.clone()
	for _, id := range visibleIDs[lo : hi+1] {
		out[id] = struct{}{}
	}
	return out
}

// SelectAllVisible adds every id on the current page
func SelectAllVisible(s Set, visibleIDs []int64) Set {
	out := s.clone()
	for _, id := range visibleIDs {
		out[id] = struct{}{}
	}
	return out
}

// DeselectAllVisible removes every id on the current page, leaving
// selections on other pages intact.
func DeselectAllVisible(s Set, visibleIDs []int64) Set {
	out := s.clone()
	for _, id := range visibleIDs {
		delete(out, id)
	}
	return out
}

// SelectAllMatching adds the full server-evaluated id set across all
// pages matching the active filters. The caller supplies the ids from
// the matching query; this transform just merges them.
func SelectAllMatching(s Set, matchingIDs []int64) Set {
	out := s.clone()
	for _, id := range matchingIDs {
		out[id] = struct{}{}
	}
	return out
}

// Clear returns the empty selection
func Clear() Set {
	return Set{}
}
