// Package metrics は類似度行列と対照行列から学習の診断指標を計算します。
package metrics

import (
	"math"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PairStats は正例ペアと負例ペアの平均類似度をまとめたものです。
type PairStats struct {
	PositiveMean float64
	NegativeMean float64
	Positives    int
	Negatives    int
}

// Gap は正例と負例の平均類似度の差を返す
func (s PairStats) Gap() float64 {
	return s.PositiveMean - s.NegativeMean
}

func checkSquare(op string, sims, target mat.Symmetric) (int, error) {
	n := sims.SymmetricDim()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty matrix")
	}
	if target.SymmetricDim() != n {
		return 0, errors.NewDimensionError(op, n, target.SymmetricDim(), 0)
	}
	return n, nil
}

// SimilarityStats は対角を除いた上三角ペア(i<j)について、
// target が 1 のペアと 0 のペアの平均類似度を計算する
func SimilarityStats(sims, target mat.Symmetric) (PairStats, error) {
	n, err := checkSquare("SimilarityStats", sims, target)
	if err != nil {
		return PairStats{}, err
	}

	var s PairStats
	var pos, neg float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if target.At(i, j) != 0 {
				pos += sims.At(i, j)
				s.Positives++
			} else {
				neg += sims.At(i, j)
				s.Negatives++
			}
		}
	}
	// ペアが存在しない側は 0 とする
	s.PositiveMean = errors.SafeDivide(pos, float64(s.Positives))
	s.NegativeMean = errors.SafeDivide(neg, float64(s.Negatives))
	return s, nil
}

// Alignment は正例ペア間の正規化埋め込みの二乗距離の平均を計算する
// 単位ベクトル同士では ||x-y||² = 2 - 2cos なので類似度行列から求められる
func Alignment(sims, target mat.Symmetric) (float64, error) {
	stats, err := SimilarityStats(sims, target)
	if err != nil {
		return 0, err
	}
	if stats.Positives == 0 {
		return 0, errors.NewValueError("Alignment", "no positive pairs")
	}
	return 2 - 2*stats.PositiveMean, nil
}

// Uniformity は log E[exp(-t||x-y||²)] を全ペア(i<j)で計算する
// 値が小さいほど埋め込みが超球面上で一様に分布している
func Uniformity(sims mat.Symmetric, t float64) (float64, error) {
	n := sims.SymmetricDim()
	if n < 2 {
		return 0, errors.NewValueError("Uniformity", "need at least two embeddings")
	}
	if t <= 0 {
		return 0, errors.NewValidationError("t", "must be positive", t)
	}

	values := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d2 := 2 - 2*sims.At(i, j)
			values = append(values, -t*d2)
		}
	}
	// log-mean-exp = LogSumExp - log(ペア数)
	return errors.LogSumExp(values) - math.Log(float64(len(values))), nil
}

// RetrievalAccuracy は各アンカーの自分以外の最近傍が正例である割合を計算する
// 正例を持たないアンカーは分母に含めない
func RetrievalAccuracy(sims, target mat.Symmetric) (float64, error) {
	n, err := checkSquare("RetrievalAccuracy", sims, target)
	if err != nil {
		return 0, err
	}

	var hits, anchors int
	for i := 0; i < n; i++ {
		hasPositive := false
		best, bestSim := -1, math.Inf(-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if target.At(i, j) != 0 {
				hasPositive = true
			}
			if s := sims.At(i, j); s > bestSim {
				best, bestSim = j, s
			}
		}
		if !hasPositive {
			continue
		}
		anchors++
		if best >= 0 && target.At(i, best) != 0 {
			hits++
		}
	}
	if anchors == 0 {
		return 0, errors.NewValueError("RetrievalAccuracy", "no anchor has a positive pair")
	}
	return float64(hits) / float64(anchors), nil
}

// Diagnostics はひとつのヘッドについての診断指標です。
type Diagnostics struct {
	PairStats
	Alignment float64
	Retrieval float64
}

// Diagnose はヘッドの類似度行列と対照行列から全ての指標を計算する
// 正例が存在しない場合 Alignment と Retrieval は NaN になる
func Diagnose(sims, target mat.Symmetric) (Diagnostics, error) {
	stats, err := SimilarityStats(sims, target)
	if err != nil {
		return Diagnostics{}, err
	}
	d := Diagnostics{PairStats: stats, Alignment: math.NaN(), Retrieval: math.NaN()}
	if stats.Positives == 0 {
		return d, nil
	}
	d.Alignment = 2 - 2*stats.PositiveMean
	d.Retrieval, err = RetrievalAccuracy(sims, target)
	if err != nil {
		return Diagnostics{}, err
	}
	return d, nil
}
