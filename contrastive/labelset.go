package contrastive

import (
	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/Pliploop/MuLOOC/pkg/errors"
)

// InvariantKey is the matrix key of the same-source-item matrix. It is
// reserved and cannot name an augmentation dimension.
const InvariantKey = "invariant"

// NoneKey names the placeholder dimension used when no augmentation is configured.
const NoneKey = "none"

// Form is the encoding of an augmentation dimension.
type Form int

const (
	// Binary dimensions record applied or not, one scalar per view.
	Binary Form = iota
	// MultiHot dimensions record a set of active classes per view.
	MultiHot
)

func (f Form) String() string {
	if f == MultiHot {
		return "multi-hot"
	}
	return "binary"
}

// DimSpec declares an augmentation dimension before any labels exist.
type DimSpec struct {
	Name    string
	Form    Form
	Classes int // MultiHot only
}

// Dimension holds the labels of one augmentation dimension for a whole
// batch, in layout order.
type Dimension struct {
	DimSpec
	Labels []Label
}

// LabelSet is an ordered collection of augmentation dimensions. Its order
// determines the order of variant matrices.
type LabelSet struct {
	dims []Dimension
}

// NewLabelSet builds a LabelSet from dims, rejecting duplicate or reserved names.
func NewLabelSet(dims ...Dimension) (*LabelSet, error) {
	s := &LabelSet{}
	for _, d := range dims {
		if err := s.Add(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends a dimension.
func (s *LabelSet) Add(d Dimension) error {
	if d.Name == "" {
		return errors.NewValueError("LabelSet.Add", "dimension name is empty")
	}
	if d.Name == InvariantKey {
		return errors.NewValueError("LabelSet.Add", "dimension name 'invariant' is reserved")
	}
	if _, ok := s.Dim(d.Name); ok {
		return errors.NewValueError("LabelSet.Add", "duplicate dimension '"+d.Name+"'")
	}
	s.dims = append(s.dims, d)
	return nil
}

// Len returns the number of dimensions. A nil LabelSet is empty.
func (s *LabelSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.dims)
}

// Keys returns the dimension names in order.
func (s *LabelSet) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.dims))
	for i, d := range s.dims {
		keys[i] = d.Name
	}
	return keys
}

// Dims returns the dimensions in order.
func (s *LabelSet) Dims() []Dimension {
	if s == nil {
		return nil
	}
	return s.dims
}

// Dim looks up a dimension by name.
func (s *LabelSet) Dim(name string) (Dimension, bool) {
	if s == nil {
		return Dimension{}, false
	}
	for _, d := range s.dims {
		if d.Name == name {
			return d, true
		}
	}
	return Dimension{}, false
}

// MatrixKeys returns the ordered matrix keys a Builder produces for labels:
// the invariant key first, then one key per dimension.
func MatrixKeys(labels *LabelSet) []string {
	return append([]string{InvariantKey}, labels.Keys()...)
}

// Collect flattens per-view labels into a LabelSet. views must be in layout
// order; dimensions missing from a view read as None.
func Collect(l layout.Layout, specs []DimSpec, views []ViewLabels) (*LabelSet, error) {
	if err := l.CheckRows("contrastive.Collect", len(views)); err != nil {
		return nil, err
	}
	set := &LabelSet{}
	for _, spec := range specs {
		d := Dimension{DimSpec: spec, Labels: make([]Label, len(views))}
		for i, v := range views {
			lab := v.Get(spec.Name)
			if err := checkLabel(l, spec, lab); err != nil {
				return nil, err
			}
			d.Labels[i] = lab
		}
		if err := set.Add(d); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// NoneDimension returns a binary dimension in which no view was augmented.
func NoneDimension(l layout.Layout) Dimension {
	return Dimension{
		DimSpec: DimSpec{Name: NoneKey, Form: Binary},
		Labels:  make([]Label, l.Size()),
	}
}

// FromTensor converts a dense label tensor into a Dimension. Rank 2 tensors
// of shape (B, N) give a Binary dimension where any nonzero value means
// applied. Rank 3 tensors of shape (B, N, C) give a MultiHot dimension where
// class c is active when entry c is nonzero; an all-zero row is None.
func FromTensor(l layout.Layout, name string, shape []int, data []float64) (Dimension, error) {
	switch len(shape) {
	case 2, 3:
	default:
		return Dimension{}, errors.NewFeatureShapeError("labels", name, []int{l.Items, l.Views}, shape)
	}
	if shape[0] != l.Items || shape[1] != l.Views {
		expected := []int{l.Items, l.Views}
		if len(shape) == 3 {
			expected = append(expected, shape[2])
		}
		return Dimension{}, errors.NewFeatureShapeError("labels", name, expected, shape)
	}

	size := 1
	for _, s := range shape {
		size *= s
	}
	if len(data) != size {
		return Dimension{}, errors.NewFeatureShapeError("labels", name, shape, []int{len(data)})
	}

	d := Dimension{DimSpec: DimSpec{Name: name}, Labels: make([]Label, l.Size())}
	if len(shape) == 2 {
		d.Form = Binary
		for i, v := range data {
			if v != 0 {
				d.Labels[i] = Applied()
			}
		}
		return d, nil
	}

	classes := shape[2]
	if classes <= 0 {
		return Dimension{}, errors.NewFeatureShapeError("labels", name, []int{l.Items, l.Views, 1}, shape)
	}
	d.Form = MultiHot
	d.Classes = classes
	for i := range d.Labels {
		row := data[i*classes : (i+1)*classes]
		var active []int
		for c, v := range row {
			if v != 0 {
				active = append(active, c)
			}
		}
		d.Labels[i] = Class(active...)
	}
	return d, nil
}

func checkLabel(l layout.Layout, spec DimSpec, lab Label) error {
	if spec.Form != MultiHot {
		return nil
	}
	for _, c := range lab.classes {
		if c < 0 || c >= spec.Classes {
			return errors.NewFeatureShapeError("labels", spec.Name,
				[]int{l.Items, l.Views, spec.Classes}, []int{l.Items, l.Views, c + 1})
		}
	}
	return nil
}

func (d Dimension) validate(l layout.Layout) error {
	if len(d.Labels) != l.Size() {
		return errors.NewFeatureShapeError("labels", d.Name, []int{l.Size()}, []int{len(d.Labels)})
	}
	for _, lab := range d.Labels {
		if err := checkLabel(l, d.DimSpec, lab); err != nil {
			return err
		}
	}
	return nil
}
