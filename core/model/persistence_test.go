package model

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCheckpoint() *Checkpoint {
	return &Checkpoint{
		Model:       "MuLOOC",
		EncoderDim:  2,
		Temperature: 0.1,
		FeatureHead: -1,
		Heads: []HeadWeights{{
			Name:    "head_0",
			Version: WeightsVersion,
			InDim:   2,
			OutDim:  3,
			Hidden:  []float64{1, 0, 0, 1},
			Output:  []float64{1, 2, 3, 4, 5, 6},
		}},
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heads.gob")
	require.NoError(t, SaveCheckpoint(sampleCheckpoint(), path))

	loaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, sampleCheckpoint(), loaded)
}

func TestSaveCheckpointRejectsInvalid(t *testing.T) {
	ckpt := sampleCheckpoint()
	ckpt.Heads[0].Output = ckpt.Heads[0].Output[:5]

	var buf bytes.Buffer
	assert.Error(t, SaveCheckpointToWriter(ckpt, &buf))

	ckpt = sampleCheckpoint()
	ckpt.EncoderDim = 4
	assert.Error(t, SaveCheckpointToWriter(ckpt, &buf))

	assert.Error(t, SaveCheckpointToWriter(&Checkpoint{}, &buf))
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}

func TestHeadWeightsJSON(t *testing.T) {
	hw := sampleCheckpoint().Heads[0]
	data, err := hw.ToJSON()
	require.NoError(t, err)

	var decoded HeadWeights
	require.NoError(t, decoded.FromJSON(data))
	assert.Equal(t, hw, decoded)

	clone := hw.Clone()
	clone.Hidden[0] = 42
	assert.Equal(t, 1.0, hw.Hidden[0])
}
