package model

import (
	"encoding/json"
	"fmt"
)

// HeadWeights はプロジェクションヘッドの重みを表す構造体（シリアライゼーション用）
//
// 重みは行優先で格納する:
//   - Hidden: InDim × InDim
//   - Output: InDim × OutDim
type HeadWeights struct {
	// Name はヘッド名
	Name string `json:"name"`

	// Target はヘッドが対応する対照行列のキー（空なら位置で対応）
	Target string `json:"target,omitempty"`

	// Version は互換性チェック用のバージョン
	Version string `json:"version"`

	InDim  int `json:"in_dim"`
	OutDim int `json:"out_dim"`

	Hidden []float64 `json:"hidden"`
	Output []float64 `json:"output"`
}

// WeightsVersion は現在のシリアライズ形式のバージョン
const WeightsVersion = "1"

// ToJSON はHeadWeightsをJSON形式にシリアライズ
func (hw *HeadWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(hw, "", "  ")
}

// FromJSON はJSON形式からHeadWeightsをデシリアライズ
func (hw *HeadWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, hw)
}

// Validate はHeadWeightsの妥当性を検証
func (hw *HeadWeights) Validate() error {
	if hw.Name == "" {
		return fmt.Errorf("name is required")
	}
	if hw.Version != WeightsVersion {
		return fmt.Errorf("unsupported weights version %q", hw.Version)
	}
	if hw.InDim <= 0 || hw.OutDim <= 0 {
		return fmt.Errorf("dimensions must be positive, got in=%d out=%d", hw.InDim, hw.OutDim)
	}
	if len(hw.Hidden) != hw.InDim*hw.InDim {
		return fmt.Errorf("hidden weights: expected %d values, got %d", hw.InDim*hw.InDim, len(hw.Hidden))
	}
	if len(hw.Output) != hw.InDim*hw.OutDim {
		return fmt.Errorf("output weights: expected %d values, got %d", hw.InDim*hw.OutDim, len(hw.Output))
	}
	return nil
}

// Clone はHeadWeightsのディープコピーを作成
func (hw *HeadWeights) Clone() *HeadWeights {
	clone := *hw
	clone.Hidden = append([]float64(nil), hw.Hidden...)
	clone.Output = append([]float64(nil), hw.Output...)
	return &clone
}

// Checkpoint はモデル全体のヘッド重みとハイパーパラメータを保持する
type Checkpoint struct {
	Model       string
	EncoderDim  int
	Temperature float64
	FeatureHead int
	Heads       []HeadWeights
}

// Validate はCheckpointの妥当性を検証
func (c *Checkpoint) Validate() error {
	if len(c.Heads) == 0 {
		return fmt.Errorf("checkpoint has no heads")
	}
	for i := range c.Heads {
		if err := c.Heads[i].Validate(); err != nil {
			return fmt.Errorf("head %d: %w", i, err)
		}
		if c.Heads[i].InDim != c.EncoderDim {
			return fmt.Errorf("head %d: in_dim %d does not match encoder dim %d", i, c.Heads[i].InDim, c.EncoderDim)
		}
	}
	return nil
}
