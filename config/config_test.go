package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Pliploop/MuLOOC/audio"
	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"github.com/Pliploop/MuLOOC/sampling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level: debug
model:
  head_dims: [16, 8]
  head_targets: ["", bitcrush]
  temperature: 0.2
  feat_extract_head: -2
  pair_rule: unapplied
encoder:
  frame_size: 64
  hop_size: 32
  bands: 8
data:
  target_len_s: 0.05
  target_sr: 8000
  n_augmentations: 3
  strategy_probs: {same: 0.5, adjacent: 0.25, random: 0.25}
  keep_anchor: true
  batch_size: 2
augmentations:
  base:
    - {name: gain, p: 0.5}
  var:
    - {name: bitcrush, p: 1}
monitor:
  render_every: 10
  patience: 3
`

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 59535, c.Data.TargetSamples())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []int{16, 8}, c.Model.HeadDims)
	assert.Equal(t, "unapplied", c.Model.PairRule)
	assert.Equal(t, sampling.Weights{Same: 0.5, Adjacent: 0.25, Random: 0.25}, c.Data.StrategyProbs)
	assert.Equal(t, 400, c.Data.TargetSamples())
	assert.Equal(t, 3, c.Monitor.Patience)
	// unset fields keep their defaults
	assert.Equal(t, 50, c.Monitor.LogEvery)
	assert.Equal(t, 10, c.Data.MaxRetries)

	data, err := c.Marshal()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestParseRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown field":  "model: {heads: 3}",
		"bad rule":       "model: {pair_rule: sometimes}",
		"probabilities":  "data: {strategy_probs: {same: 0.5}}",
		"no heads":       "model: {head_dims: []}",
		"bad selector":   "model: {feat_extract_head: 1}",
		"temperature":    "model: {temperature: 0}",
		"bad transform":  "augmentations: {var: [{name: reverb, p: 0.5}]}",
		"bad level":      "log_level: loud",
		"batch size":     "data: {batch_size: 0}",
		"too many heads": "model: {head_dims: [4], head_targets: [a, b]}",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}

	_, err := Parse([]byte("model: {temperature: -1}"))
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Data.NAugmentations)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildComponents(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	logger := log.GetLogger()

	m, err := c.NewModel(logger)
	require.NoError(t, err)
	assert.Equal(t, 24, m.EmbedDim())
	assert.Equal(t, contrastive.MatchUnapplied, m.Builder().Rule())
	assert.Equal(t, "bitcrush", m.HeadSpecs()[1].Target)
	assert.Equal(t, 0.2, m.GetParams()["temperature"])

	s, err := c.NewSampler(audio.NewWAVLoader(), logger)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Views())
	assert.Equal(t, 400, s.TargetSamples())

	p, err := c.NewPipeline(logger)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.KeepAnchor())
	require.Len(t, p.Specs(), 1)
	assert.Equal(t, "bitcrush", p.Specs()[0].Name)

	none, err := Default().NewPipeline(logger)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNewDataset(t *testing.T) {
	dir := t.TempDir()
	ch := make([]float64, 1200)
	for i := range ch {
		ch[i] = math.Sin(float64(i) / 5)
	}
	require.NoError(t, audio.WriteWAV(filepath.Join(dir, "a.wav"),
		&audio.Waveform{SampleRate: 8000, Channels: [][]float64{ch}}))
	manifest := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(manifest, []byte("file_path\na.wav\n"), 0o644))

	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	ds, err := c.NewDataset(manifest, true, false, log.GetLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, "bitcrush", ds.Specs()[0].Name)

	ex, err := ds.Get(0)
	require.NoError(t, err)
	r, cols := ex.Audio.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 400, cols)
}
