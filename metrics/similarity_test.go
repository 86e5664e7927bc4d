package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// 4ビュー、2アイテム(0,1 と 2,3)の類似度と対照行列
func fixture() (*mat.SymDense, *mat.SymDense) {
	sims := mat.NewSymDense(4, []float64{
		1, 0.8, 0.1, 0.3,
		0.8, 1, 0.2, 0.0,
		0.1, 0.2, 1, 0.6,
		0.3, 0.0, 0.6, 1,
	})
	target := mat.NewSymDense(4, []float64{
		1, 1, 0, 0,
		1, 1, 0, 0,
		0, 0, 1, 1,
		0, 0, 1, 1,
	})
	return sims, target
}

func TestSimilarityStats(t *testing.T) {
	sims, target := fixture()

	tests := []struct {
		name    string
		sims    mat.Symmetric
		target  mat.Symmetric
		pos     float64
		neg     float64
		npos    int
		wantErr bool
	}{
		{
			name:   "two items",
			sims:   sims,
			target: target,
			pos:    0.7,       // (0.8 + 0.6) / 2
			neg:    0.6 / 4.0, // (0.1 + 0.3 + 0.2 + 0.0) / 4
			npos:   2,
		},
		{
			name:   "no positives",
			sims:   sims,
			target: mat.NewSymDense(4, nil),
			pos:    0,
			neg:    2.0 / 6.0,
			npos:   0,
		},
		{
			name:    "dimension mismatch",
			sims:    sims,
			target:  mat.NewSymDense(3, nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SimilarityStats(tt.sims, tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SimilarityStats() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if math.Abs(got.PositiveMean-tt.pos) > 1e-12 {
				t.Errorf("PositiveMean = %v, want %v", got.PositiveMean, tt.pos)
			}
			if math.Abs(got.NegativeMean-tt.neg) > 1e-12 {
				t.Errorf("NegativeMean = %v, want %v", got.NegativeMean, tt.neg)
			}
			if got.Positives != tt.npos || got.Positives+got.Negatives != 6 {
				t.Errorf("pair counts = %d/%d", got.Positives, got.Negatives)
			}
		})
	}
}

func TestAlignment(t *testing.T) {
	sims, target := fixture()
	got, err := Alignment(sims, target)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.6) > 1e-12 {
		t.Errorf("Alignment() = %v, want 0.6", got)
	}

	if _, err := Alignment(sims, mat.NewSymDense(4, nil)); err == nil {
		t.Error("expected error without positive pairs")
	}
}

func TestUniformity(t *testing.T) {
	// 同一ベクトルのみなら全距離0で最大値0
	same := mat.NewSymDense(3, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1})
	got, err := Uniformity(same, 2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got) > 1e-12 {
		t.Errorf("Uniformity(same) = %v, want 0", got)
	}

	// 対蹠点の2点は距離²=4
	opposite := mat.NewSymDense(2, []float64{1, -1, -1, 1})
	got, err = Uniformity(opposite, 2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got+8) > 1e-12 {
		t.Errorf("Uniformity(opposite) = %v, want -8", got)
	}

	if _, err := Uniformity(mat.NewSymDense(1, []float64{1}), 2); err == nil {
		t.Error("expected error for a single embedding")
	}
	if _, err := Uniformity(same, 0); err == nil {
		t.Error("expected error for t = 0")
	}
}

func TestRetrievalAccuracy(t *testing.T) {
	sims, target := fixture()
	got, err := RetrievalAccuracy(sims, target)
	if err != nil {
		t.Fatal(err)
	}
	// 最近傍: 0→1, 1→0, 2→3, 3→2 で全て正例
	if got != 1 {
		t.Errorf("RetrievalAccuracy() = %v, want 1", got)
	}

	sims.SetSym(0, 3, 0.9)
	got, err = RetrievalAccuracy(sims, target)
	if err != nil {
		t.Fatal(err)
	}
	// 0→3 と 3→0 が外れる
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("RetrievalAccuracy() = %v, want 0.5", got)
	}

	if _, err := RetrievalAccuracy(sims, mat.NewSymDense(4, nil)); err == nil {
		t.Error("expected error without positive pairs")
	}
}

func TestDiagnose(t *testing.T) {
	sims, target := fixture()
	d, err := Diagnose(sims, target)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d.Gap()-(0.7-0.15)) > 1e-12 {
		t.Errorf("Gap() = %v", d.Gap())
	}
	if d.Retrieval != 1 {
		t.Errorf("Retrieval = %v", d.Retrieval)
	}

	empty, err := Diagnose(sims, mat.NewSymDense(4, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(empty.Alignment) || !math.IsNaN(empty.Retrieval) {
		t.Errorf("expected NaN diagnostics without positives, got %+v", empty)
	}
}

func BenchmarkRetrievalAccuracy(b *testing.B) {
	n := 256
	sims := mat.NewSymDense(n, nil)
	target := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sims.SetSym(i, j, math.Cos(float64(i*j)))
			if i/4 == j/4 {
				target.SetSym(i, j, 1)
			}
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = RetrievalAccuracy(sims, target)
	}
}
