// Package config loads run configuration from YAML and turns it into the
// options of each component.
package config

import (
	"math"
	"os"

	"github.com/Pliploop/MuLOOC/audio"
	"github.com/Pliploop/MuLOOC/augment"
	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/dataset"
	"github.com/Pliploop/MuLOOC/models"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"github.com/Pliploop/MuLOOC/sampling"
	"github.com/goccy/go-yaml"
)

// Config is the top-level run configuration.
type Config struct {
	LogLevel      string        `yaml:"log_level"`
	Model         Model         `yaml:"model"`
	Encoder       Encoder       `yaml:"encoder"`
	Data          Data          `yaml:"data"`
	Augmentations Augmentations `yaml:"augmentations"`
	Monitor       Monitor       `yaml:"monitor"`
}

// Model configures the projection heads and the loss.
type Model struct {
	HeadDims []int `yaml:"head_dims"`
	// HeadTargets optionally names the matrix of each head; empty entries
	// bind positionally.
	HeadTargets     []string `yaml:"head_targets"`
	Temperature     float64  `yaml:"temperature"`
	FeatExtractHead int      `yaml:"feat_extract_head"`
	PairRule        string   `yaml:"pair_rule"`
	Seed            uint64   `yaml:"seed"`
	Checkpoint      string   `yaml:"checkpoint"`
}

// Encoder configures the spectral encoder.
type Encoder struct {
	FrameSize int `yaml:"frame_size"`
	HopSize   int `yaml:"hop_size"`
	Bands     int `yaml:"bands"`
}

// Data configures sampling and dataset loading.
type Data struct {
	Manifest       string           `yaml:"manifest"`
	ValManifest    string           `yaml:"val_manifest"`
	TargetLenS     float64          `yaml:"target_len_s"`
	TargetSR       int              `yaml:"target_sr"`
	TargetNSamples int              `yaml:"target_n_samples"`
	NAugmentations int              `yaml:"n_augmentations"`
	StrategyProbs  sampling.Weights `yaml:"strategy_probs"`
	KeepAnchor     bool             `yaml:"keep_anchor"`
	ReturnLabels   bool             `yaml:"return_labels"`
	NoneDimension  bool             `yaml:"none_dimension"`
	MaxRetries     int              `yaml:"max_retries"`
	BatchSize      int              `yaml:"batch_size"`
}

// Transform names one augmentation and its probability.
type Transform struct {
	Name string  `yaml:"name"`
	P    float64 `yaml:"p"`
}

// Augmentations lists the unlabelled base stage and the labelled var stage.
type Augmentations struct {
	Base []Transform `yaml:"base"`
	Var  []Transform `yaml:"var"`
}

// Monitor configures logging, heatmaps and early stopping.
type Monitor struct {
	LogEvery    int     `yaml:"log_every"`
	RenderEvery int     `yaml:"render_every"`
	HeatmapDir  string  `yaml:"heatmap_dir"`
	Patience    int     `yaml:"patience"`
	MinDelta    float64 `yaml:"min_delta"`
}

// Default returns the configuration used when a field is not set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Model: Model{
			HeadDims:        []int{128},
			Temperature:     0.1,
			FeatExtractHead: int(models.Superspace),
			PairRule:        contrastive.MatchApplied.String(),
		},
		Encoder: Encoder{FrameSize: 512, HopSize: 256, Bands: 32},
		Data: Data{
			TargetLenS:     2.7,
			TargetSR:       22050,
			NAugmentations: 2,
			StrategyProbs:  sampling.DefaultWeights,
			MaxRetries:     dataset.DefaultMaxRetries,
			BatchSize:      8,
		},
		Monitor: Monitor{LogEvery: 50, RenderEvery: 2000},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalWithOptions(data, c, yaml.Strict()); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Marshal encodes c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Validate checks every field that has a constrained domain.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("log_level", err.Error(), c.LogLevel)
	}
	if len(c.Model.HeadDims) == 0 {
		return errors.NewValidationError("model.head_dims", "at least one head is required", c.Model.HeadDims)
	}
	for _, d := range c.Model.HeadDims {
		if d <= 0 {
			return errors.NewValidationError("model.head_dims", "dimensions must be positive", c.Model.HeadDims)
		}
	}
	if len(c.Model.HeadTargets) > len(c.Model.HeadDims) {
		return errors.NewValidationError("model.head_targets", "more targets than heads", c.Model.HeadTargets)
	}
	if c.Model.Temperature <= 0 || math.IsNaN(c.Model.Temperature) || math.IsInf(c.Model.Temperature, 0) {
		return errors.NewValidationError("model.temperature", "must be positive and finite", c.Model.Temperature)
	}
	if sel := c.Model.FeatExtractHead; sel < int(models.Concatenated) || sel >= len(c.Model.HeadDims) {
		return errors.NewValidationError("model.feat_extract_head", "must be -2, -1 or a head index", sel)
	}
	if _, err := contrastive.ParsePairRule(c.Model.PairRule); err != nil {
		return err
	}
	if c.Data.TargetSR <= 0 {
		return errors.NewValidationError("data.target_sr", "must be positive", c.Data.TargetSR)
	}
	if c.Data.TargetNSamples < 0 || (c.Data.TargetNSamples == 0 && c.Data.TargetLenS <= 0) {
		return errors.NewValidationError("data.target_len_s", "a positive length is required", c.Data.TargetLenS)
	}
	if c.Data.NAugmentations <= 0 {
		return errors.NewValidationError("data.n_augmentations", "must be positive", c.Data.NAugmentations)
	}
	if err := c.Data.StrategyProbs.Validate(); err != nil {
		return err
	}
	if c.Data.MaxRetries < 0 {
		return errors.NewValidationError("data.max_retries", "must not be negative", c.Data.MaxRetries)
	}
	if c.Data.BatchSize <= 0 {
		return errors.NewValidationError("data.batch_size", "must be positive", c.Data.BatchSize)
	}
	for _, stage := range [][]Transform{c.Augmentations.Base, c.Augmentations.Var} {
		for _, t := range stage {
			if _, err := augment.FromName(t.Name, t.P); err != nil {
				return err
			}
		}
	}
	return nil
}

// TargetSamples returns the window length in samples.
func (d Data) TargetSamples() int {
	if d.TargetNSamples > 0 {
		return d.TargetNSamples
	}
	return int(math.Round(d.TargetLenS * float64(d.TargetSR)))
}

// NewEncoder builds the spectral encoder.
func (c *Config) NewEncoder() (*models.SpectralEncoder, error) {
	return models.NewSpectralEncoder(
		models.WithFrameSize(c.Encoder.FrameSize),
		models.WithHopSize(c.Encoder.HopSize),
		models.WithBands(c.Encoder.Bands),
	)
}

// NewModel builds the model around a fresh encoder and restores head
// weights from Model.Checkpoint when set.
func (c *Config) NewModel(logger log.Logger) (*models.MuLOOC, error) {
	enc, err := c.NewEncoder()
	if err != nil {
		return nil, err
	}
	rule, err := contrastive.ParsePairRule(c.Model.PairRule)
	if err != nil {
		return nil, err
	}
	opts := []models.Option{
		models.WithHeadDims(c.Model.HeadDims...),
		models.WithTemperature(c.Model.Temperature),
		models.WithFeatExtractHead(models.HeadSelector(c.Model.FeatExtractHead)),
		models.WithPairRule(rule),
		models.WithSeed(c.Model.Seed),
		models.WithLogger(logger),
	}
	if len(c.Model.HeadTargets) > 0 {
		opts = append(opts, models.WithHeadTargets(c.Model.HeadTargets...))
	}
	m, err := models.New(enc, opts...)
	if err != nil {
		return nil, err
	}
	if c.Model.Checkpoint != "" {
		if err := m.LoadHeadWeights(c.Model.Checkpoint); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewSampler builds a segment sampler over loader.
func (c *Config) NewSampler(loader audio.Loader, logger log.Logger) (*sampling.Sampler, error) {
	return sampling.New(loader,
		sampling.WithViews(c.Data.NAugmentations),
		sampling.WithSampleRate(c.Data.TargetSR),
		sampling.WithTargetLength(c.Data.TargetLenS),
		sampling.WithTargetSamples(c.Data.TargetNSamples),
		sampling.WithWeights(c.Data.StrategyProbs),
		sampling.WithLogger(logger),
	)
}

func transforms(ts []Transform) ([]augment.Transform, error) {
	out := make([]augment.Transform, 0, len(ts))
	for _, t := range ts {
		tr, err := augment.FromName(t.Name, t.P)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

// NewPipeline builds the augmentation pipeline, or returns nil when no
// transform is configured.
func (c *Config) NewPipeline(logger log.Logger) (*augment.Pipeline, error) {
	if len(c.Augmentations.Base) == 0 && len(c.Augmentations.Var) == 0 {
		return nil, nil
	}
	base, err := transforms(c.Augmentations.Base)
	if err != nil {
		return nil, err
	}
	vary, err := transforms(c.Augmentations.Var)
	if err != nil {
		return nil, err
	}
	return augment.NewPipeline(vary,
		augment.WithBase(base...),
		augment.WithKeepAnchor(c.Data.KeepAnchor),
		augment.WithLogger(logger),
	)
}

// NewDataset builds a dataset over the manifest at path. train selects
// whether augmentations run; full selects whole-recording mode.
func (c *Config) NewDataset(path string, train, full bool, logger log.Logger) (*dataset.AudioDataset, error) {
	items, err := dataset.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	loader := audio.NewWAVLoader(audio.WithLoaderLogger(logger))
	sampler, err := c.NewSampler(loader, logger)
	if err != nil {
		return nil, err
	}
	pipeline, err := c.NewPipeline(logger)
	if err != nil {
		return nil, err
	}
	opts := []dataset.Option{
		dataset.WithTrain(train),
		dataset.WithReturnFull(full),
		dataset.WithReturnLabels(c.Data.ReturnLabels),
		dataset.WithNoneDimension(c.Data.NoneDimension),
		dataset.WithMaxRetries(c.Data.MaxRetries),
		dataset.WithLogger(logger),
	}
	if pipeline != nil {
		opts = append(opts, dataset.WithAugmentations(pipeline))
	}
	return dataset.New(items, sampler, opts...)
}
