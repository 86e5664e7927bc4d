// Package layout maps (item, view) coordinates of a batch onto the flat
// row index used by embeddings and contrastive matrices.
//
// A batch of B source items with N views each is flattened item-major:
// view n of item b sits on row b*N + n. Every component that flattens or
// unflattens views takes a Layout instead of recomputing the arithmetic.
package layout

import (
	"fmt"

	"github.com/Pliploop/MuLOOC/pkg/errors"
)

// Layout describes a batch of Items source items with Views views each.
type Layout struct {
	Items int
	Views int
}

// New returns a validated Layout.
func New(items, views int) (Layout, error) {
	l := Layout{Items: items, Views: views}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks that both extents are positive.
func (l Layout) Validate() error {
	if l.Items <= 0 {
		return errors.NewValidationError("items", "must be positive", l.Items)
	}
	if l.Views <= 0 {
		return errors.NewValidationError("views", "must be positive", l.Views)
	}
	return nil
}

// Size is the number of flattened rows, B*N.
func (l Layout) Size() int {
	return l.Items * l.Views
}

// Index returns the flat row of view n of item b.
func (l Layout) Index(b, n int) int {
	return b*l.Views + n
}

// Item returns the source item of flat row i.
func (l Layout) Item(i int) int {
	return i / l.Views
}

// View returns the view position of flat row i within its item.
func (l Layout) View(i int) int {
	return i % l.Views
}

// SameItem reports whether rows i and j come from the same source item.
func (l Layout) SameItem(i, j int) bool {
	return l.Item(i) == l.Item(j)
}

// CheckRows returns a DimensionError when rows does not match Size.
func (l Layout) CheckRows(op string, rows int) error {
	if rows != l.Size() {
		return errors.NewDimensionError(op, l.Size(), rows, 0)
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("%dx%d", l.Items, l.Views)
}
