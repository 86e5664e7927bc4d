package layout

import (
	"testing"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutRoundTrip(t *testing.T) {
	l, err := New(3, 4)
	require.NoError(t, err)
	assert.Equal(t, 12, l.Size())

	for b := 0; b < l.Items; b++ {
		for n := 0; n < l.Views; n++ {
			i := l.Index(b, n)
			assert.Equal(t, b, l.Item(i))
			assert.Equal(t, n, l.View(i))
		}
	}
}

func TestLayoutSameItem(t *testing.T) {
	l := Layout{Items: 2, Views: 2}

	assert.True(t, l.SameItem(0, 1))
	assert.True(t, l.SameItem(2, 3))
	assert.False(t, l.SameItem(1, 2))
	assert.False(t, l.SameItem(0, 3))
}

func TestLayoutValidate(t *testing.T) {
	_, err := New(0, 2)
	require.Error(t, err)

	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = New(2, -1)
	assert.Error(t, err)
}

func TestLayoutCheckRows(t *testing.T) {
	l := Layout{Items: 2, Views: 3}
	assert.NoError(t, l.CheckRows("Forward", 6))

	err := l.CheckRows("Forward", 5)
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 6, dimErr.Expected)
	assert.Equal(t, 5, dimErr.Got)
	assert.Equal(t, "2x3", l.String())
}
