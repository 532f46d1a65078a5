package cache

import "slices"

// Delta partitions the changes between two listings. The three lists are
// sorted and pairwise disjoint.
type Delta struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Empty reports whether the delta has no changes.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Len returns the total number of changed paths.
func (d Delta) Len() int {
	return len(d.Added) + len(d.Removed) + len(d.Modified)
}

// Merge appends other's changes, keeping the lists sorted and disjoint.
// A later change to the same path replaces an earlier one.
func (d Delta) Merge(other Delta) Delta {
	state := make(map[string]int, d.Len()+other.Len())
	mark := func(paths []string, v int) {
		for _, p := range paths {
			prev, seen := state[p]
			switch {
			case !seen:
				state[p] = v
			case prev == added && v == removed:
				delete(state, p)
			case prev == removed && v == added:
				state[p] = modified
			case prev == added && v == modified:
				// still new relative to the first listing
			default:
				state[p] = v
			}
		}
	}
	mark(d.Added, added)
	mark(d.Removed, removed)
	mark(d.Modified, modified)
	mark(other.Added, added)
	mark(other.Removed, removed)
	mark(other.Modified, modified)

	var out Delta
	for p, v := range state {
		switch v {
		case added:
			out.Added = append(out.Added, p)
		case removed:
			out.Removed = append(out.Removed, p)
		case modified:
			out.Modified = append(out.Modified, p)
		}
	}
	out.sort()
	return out
}

const (
	added = iota + 1
	removed
	modified
)

func (d *Delta) sort() {
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Modified)
}

// Diff computes the delta from previous to current using map lookups, so cost
// is linear in the number of entries.
func Diff(previous, current map[string]Stat) Delta {
	var d Delta

	for p, cur := range current {
		prev, ok := previous[p]
		switch {
		case !ok:
			d.Added = append(d.Added, p)
		case !prev.Same(cur):
			d.Modified = append(d.Modified, p)
		}
	}

	for p := range previous {
		if _, ok := current[p]; !ok {
			d.Removed = append(d.Removed, p)
		}
	}

	d.sort()
	return d
}
