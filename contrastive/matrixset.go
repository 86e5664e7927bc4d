package contrastive

import (
	"github.com/Pliploop/MuLOOC/core/layout"
	"gonum.org/v1/gonum/mat"
)

// MatrixSet is the ordered result of Builder.Build.
type MatrixSet struct {
	layout layout.Layout
	keys   []string
	mats   map[string]*mat.SymDense
}

func (s *MatrixSet) add(key string, m *mat.SymDense) {
	s.keys = append(s.keys, key)
	s.mats[key] = m
}

// Layout returns the batch layout the matrices were built for.
func (s *MatrixSet) Layout() layout.Layout {
	return s.layout
}

// Len returns the number of matrices, invariant included.
func (s *MatrixSet) Len() int {
	return len(s.keys)
}

// Keys returns the matrix keys in order, starting with InvariantKey.
func (s *MatrixSet) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Get returns the matrix stored under key.
func (s *MatrixSet) Get(key string) (*mat.SymDense, bool) {
	m, ok := s.mats[key]
	return m, ok
}

// At returns the k-th key and matrix.
func (s *MatrixSet) At(k int) (string, *mat.SymDense) {
	key := s.keys[k]
	return key, s.mats[key]
}

// Invariant returns the same-item matrix.
func (s *MatrixSet) Invariant() *mat.SymDense {
	return s.mats[InvariantKey]
}

// Positives counts the positive pairs (i < j) of the matrix under key.
func (s *MatrixSet) Positives(key string) int {
	m, ok := s.mats[key]
	if !ok {
		return 0
	}
	return CountPositives(m)
}

// CountPositives counts entries m[i,j] != 0 with i < j.
func CountPositives(m mat.Symmetric) int {
	n := m.SymmetricDim()
	count := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if m.At(i, j) != 0 {
				count++
			}
		}
	}
	return count
}
