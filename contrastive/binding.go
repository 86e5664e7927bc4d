package contrastive

import (
	"github.com/Pliploop/MuLOOC/pkg/errors"
)

// HeadSpec names a projection head and, optionally, the matrix it trains
// against. An empty Target binds the head to the matrix at its own position.
type HeadSpec struct {
	Name   string
	Target string
}

// Binding pairs the head at index Head with the matrix stored under Matrix.
type Binding struct {
	Head     int
	HeadName string
	Matrix   string
}

// Bind resolves every head to a matrix key. keys is the ordered key list a
// Builder will produce (see MatrixKeys). It fails with a
// HeadMatrixMismatchError when there are more heads than keys or an
// explicit target is not among keys, and with a ValueError when two heads
// share a matrix. Extra keys are left unbound.
func Bind(heads []HeadSpec, keys []string) ([]Binding, error) {
	if len(heads) > len(keys) {
		return nil, errors.NewHeadMatrixMismatchError(len(heads), len(keys), "")
	}

	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}

	bound := make(map[string]string, len(heads))
	bindings := make([]Binding, len(heads))
	for k, h := range heads {
		target := h.Target
		if target == "" {
			target = keys[k]
		} else if !known[target] {
			return nil, errors.NewHeadMatrixMismatchError(len(heads), len(keys), target)
		}
		if prev, ok := bound[target]; ok {
			return nil, errors.NewValueError("contrastive.Bind",
				"matrix '"+target+"' is bound to both '"+prev+"' and '"+h.Name+"'")
		}
		bound[target] = h.Name
		bindings[k] = Binding{Head: k, HeadName: h.Name, Matrix: target}
	}
	return bindings, nil
}
