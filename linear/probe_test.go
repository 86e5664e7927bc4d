package linear

import (
	"math"
	"testing"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestProbe_Multiclass(t *testing.T) {
	// three separated clusters, one-hot targets
	X := mat.NewDense(9, 2, []float64{
		2, 0, 2.2, 0.1, 1.8, -0.1,
		-2, 0, -2.1, 0.2, -1.9, -0.2,
		0, 2, 0.1, 2.1, -0.1, 1.9,
	})
	Y := mat.NewDense(9, 3, nil)
	for i := 0; i < 9; i++ {
		Y.Set(i, i/3, 1)
	}

	p := NewProbe(WithTask(Multiclass), WithLearningRate(0.5), WithEpochs(300))
	require.NoError(t, p.Fit(X, Y))
	assert.True(t, p.IsFitted())

	score, err := p.Score(X, Y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	pred, err := p.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		assert.InDelta(t, 1.0, floats.Sum(mat.Row(nil, i, pred)), 1e-9)
	}
}

func TestProbe_Multilabel(t *testing.T) {
	// label 0 is x0 > 0, label 1 is x1 > 0
	X := mat.NewDense(8, 2, []float64{
		1, 1, 2, 1, 1, -1, 2, -2,
		-1, 1, -2, 2, -1, -1, -2, -1,
	})
	Y := mat.NewDense(8, 2, nil)
	for i := 0; i < 8; i++ {
		if X.At(i, 0) > 0 {
			Y.Set(i, 0, 1)
		}
		if X.At(i, 1) > 0 {
			Y.Set(i, 1, 1)
		}
	}

	p := NewProbe(WithLearningRate(0.5), WithEpochs(200))
	require.NoError(t, p.Fit(X, Y))

	score, err := p.Score(X, Y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	pred, err := p.Predict(mat.NewDense(1, 2, []float64{3, -3}))
	require.NoError(t, err)
	assert.Greater(t, pred.At(0, 0), 0.5)
	assert.Less(t, pred.At(0, 1), 0.5)
}

func TestProbe_Regression(t *testing.T) {
	// y = 2*x1 - x2 + 1
	X := mat.NewDense(6, 2, []float64{
		-1, -1,
		-1, 1,
		0, 0.5,
		0.5, -0.5,
		1, -1,
		1, 1,
	})
	Y := mat.NewDense(6, 1, nil)
	for i := 0; i < 6; i++ {
		Y.Set(i, 0, 2*X.At(i, 0)-X.At(i, 1)+1)
	}

	p := NewProbe(WithTask(Regression), WithLearningRate(0.2), WithEpochs(3000), WithEarlyStopping(0, 0))
	require.NoError(t, p.Fit(X, Y))

	assert.InDelta(t, 2.0, p.Weights.At(0, 0), 1e-3)
	assert.InDelta(t, -1.0, p.Weights.At(1, 0), 1e-3)
	assert.InDelta(t, 1.0, p.Intercept[0], 1e-3)
	assert.Equal(t, 2999, p.BestEpoch)

	score, err := p.Score(X, Y)
	require.NoError(t, err)
	assert.Greater(t, score, 0.999)
}

func TestProbe_EarlyStoppingRestoresBestWeights(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{-2, -1, 1, 2})
	Y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	// validation labels disagree with training, so every step makes the
	// validation loss worse
	YVal := mat.NewDense(4, 1, []float64{1, 1, 0, 0})

	p := NewProbe(WithLearningRate(0.5), WithEpochs(100), WithEarlyStopping(3, 0))
	require.NoError(t, p.FitWithValidation(X, Y, X, YVal))

	assert.Equal(t, 0, p.BestEpoch)
	require.Len(t, p.History, 4)
	for i := 1; i < len(p.History); i++ {
		assert.Greater(t, p.History[i].Val, p.History[i-1].Val)
	}

	loss, err := p.Loss(X, YVal)
	require.NoError(t, err)
	assert.InDelta(t, p.History[0].Val, loss, 1e-12)
}

func TestProbe_NoValidationRecordsNaN(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{-1, 1})
	Y := mat.NewDense(2, 1, []float64{0, 1})

	p := NewProbe(WithEpochs(3))
	require.NoError(t, p.FitWithValidation(X, Y, nil, (*mat.Dense)(nil)))
	require.Len(t, p.History, 3)
	assert.True(t, math.IsNaN(p.History[0].Val))
}

func TestProbe_Errors(t *testing.T) {
	p := NewProbe()
	_, err := p.Predict(mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, errors.ErrNotFitted)

	X := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1})
	assert.Error(t, p.Fit(X, mat.NewDense(2, 1, nil)))
	assert.Error(t, p.Fit(X, mat.NewDense(3, 1, []float64{0, 2, 1})), "targets outside [0, 1]")
	assert.Error(t, NewProbe(WithTask(Multiclass)).Fit(X, mat.NewDense(3, 1, []float64{0, 1, 1})))
	assert.Error(t, NewProbe(WithLearningRate(0)).Fit(X, mat.NewDense(3, 1, nil)))
	assert.Error(t, p.FitWithValidation(X, mat.NewDense(3, 1, nil), mat.NewDense(1, 3, nil), mat.NewDense(1, 1, nil)))

	require.NoError(t, p.Fit(X, mat.NewDense(3, 1, []float64{1, 0, 1})))
	_, err = p.Predict(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
	_, err = p.Score(X, mat.NewDense(3, 2, nil))
	assert.Error(t, err)
}

func TestParseTask(t *testing.T) {
	tests := []struct {
		in   string
		want Task
		err  bool
	}{
		{"multilabel", Multilabel, false},
		{"", Multilabel, false},
		{" Multiclass ", Multiclass, false},
		{"regression", Regression, false},
		{"ranking", Multilabel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTask(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Task {
	t.Helper()
	task, err := ParseTask(s)
	require.NoError(t, err)
	return task
}

func TestGetParams(t *testing.T) {
	p := NewProbe(WithTask(Regression), WithL2(0.01), WithEarlyStopping(7, 1e-4))
	params := p.GetParams()
	assert.Equal(t, "regression", params["task"])
	assert.Equal(t, 0.01, params["l2"])
	assert.Equal(t, 7, params["patience"])
	assert.Equal(t, 1e-4, params["min_delta"])
	assert.Equal(t, 200, params["epochs"])
}

func TestSplit(t *testing.T) {
	train, val, test, err := Split(10, 0.2, 0.3, 42)
	require.NoError(t, err)
	assert.Len(t, train, 5)
	assert.Len(t, val, 2)
	assert.Len(t, test, 3)

	seen := make(map[int]bool)
	for _, set := range [][]int{train, val, test} {
		for _, i := range set {
			assert.False(t, seen[i], "index %d in two sets", i)
			seen[i] = true
		}
	}
	assert.Len(t, seen, 10)

	again, _, _, err := Split(10, 0.2, 0.3, 42)
	require.NoError(t, err)
	assert.Equal(t, train, again)

	_, _, _, err = Split(2, 0.5, 0.5, 0)
	assert.Error(t, err)
	_, _, _, err = Split(1, 0.4, 0.4, 0)
	require.NoError(t, err)
	_, _, _, err = Split(0, 0, 0, 0)
	assert.Error(t, err)
}

func TestRows(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	assert.Nil(t, Rows(m, nil))
	got := Rows(m, []int{2, 0})
	assert.Equal(t, []float64{5, 6, 1, 2}, got.RawMatrix().Data)
}
