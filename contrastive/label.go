package contrastive

import (
	"fmt"
	"sort"
	"strings"
)

// Label is the augmentation state of one view along one dimension.
//
// The zero value is None: the transform was not applied. None is a distinct
// state and never collides with class index 0.
type Label struct {
	applied bool
	classes []int
}

// None returns the "not applied" label.
func None() Label {
	return Label{}
}

// Applied returns the label of a binary dimension whose transform was applied.
func Applied() Label {
	return Label{applied: true}
}

// Class returns the label of a one-hot or multi-hot dimension. Calling it
// with no classes yields None.
func Class(classes ...int) Label {
	if len(classes) == 0 {
		return None()
	}
	cs := append([]int(nil), classes...)
	sort.Ints(cs)
	out := cs[:1]
	for _, c := range cs[1:] {
		if c != out[len(out)-1] {
			out = append(out, c)
		}
	}
	return Label{applied: true, classes: out}
}

// IsApplied reports whether any transform was applied.
func (l Label) IsApplied() bool {
	return l.applied
}

// Classes returns a copy of the active class indices.
func (l Label) Classes() []int {
	return append([]int(nil), l.classes...)
}

// HasClass reports whether class c is active.
func (l Label) HasClass(c int) bool {
	i := sort.SearchInts(l.classes, c)
	return i < len(l.classes) && l.classes[i] == c
}

// SharesClass reports whether l and o have at least one active class in common.
func (l Label) SharesClass(o Label) bool {
	i, j := 0, 0
	for i < len(l.classes) && j < len(o.classes) {
		switch {
		case l.classes[i] == o.classes[j]:
			return true
		case l.classes[i] < o.classes[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// Equal reports whether both labels carry the same state.
func (l Label) Equal(o Label) bool {
	if l.applied != o.applied || len(l.classes) != len(o.classes) {
		return false
	}
	for i := range l.classes {
		if l.classes[i] != o.classes[i] {
			return false
		}
	}
	return true
}

func (l Label) String() string {
	switch {
	case !l.applied:
		return "none"
	case len(l.classes) == 0:
		return "applied"
	default:
		parts := make([]string, len(l.classes))
		for i, c := range l.classes {
			parts[i] = fmt.Sprint(c)
		}
		return "class(" + strings.Join(parts, ",") + ")"
	}
}

// ViewLabels holds the labels one augmentation pass produced for a single
// view, keyed by augmentation dimension. Missing dimensions read as None.
type ViewLabels map[string]Label

// Get returns the label for dim, None if absent.
func (v ViewLabels) Get(dim string) Label {
	if v == nil {
		return None()
	}
	return v[dim]
}
