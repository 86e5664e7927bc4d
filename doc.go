// Package mulooc provides multi-head contrastive supervision for audio
// representation learning.
//
// A batch holds B source recordings with N views each. Every view may be
// augmented along several dimensions (gain, polarity, bitcrush, ...). MuLOOC
// turns the per-view augmentation labels into one equivalence matrix per
// dimension and trains one projection head per matrix, so that each head
// learns a space that is invariant to some transformations and sensitive to
// others.
//
// # Features
//
// - Contrastive matrices: one invariant matrix plus one variant matrix per augmentation dimension
// - Multi-head model: a shared encoder with one projection head bound to each matrix
// - Segment sampling: same, adjacent or random windows drawn from configured probabilities
// - Run monitoring: per-head losses, similarity heatmaps and early stopping
// - Feature extraction: chunked embeddings cached in a BadgerDB store
//
// # Quick Start
//
// Build the matrices of a labelled batch and compute one loss per head:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/Pliploop/MuLOOC/config"
//	    mlog "github.com/Pliploop/MuLOOC/pkg/log"
//	)
//
//	func main() {
//	    cfg, err := config.Load("run.yaml")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    m, err := cfg.NewModel(mlog.GetLogger())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    ds, err := cfg.NewDataset(cfg.Data.Manifest, true, false, mlog.GetLogger())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    batch, err := ds.Batch(context.Background(), []int{0, 1})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    out, err := m.ForwardWithLosses(batch)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(out.Losses)
//	}
//
// # Packages
//
// The library is organized into several packages:
//
//   - contrastive: labels, label sets, matrix construction and head binding
//   - models: the MuLOOC model, projection heads and the spectral encoder
//   - losses: the normalised temperature-scaled cross-entropy loss
//   - sampling: segment sampling strategies
//   - augment: labelled waveform augmentations
//   - dataset: manifests, the audio dataset and batch collation
//   - audio: WAV decoding, resampling and waveform utilities
//   - monitor: loss tracking, heatmaps and early stopping
//   - metrics: similarity diagnostics
//   - featstore: feature extraction and the feature store
//   - config: YAML run configuration
//   - core/layout: the (items, views) batch layout
//   - core/model: component interfaces and head checkpoints
//   - core/parallel: parallel processing utilities
//
// # Error Handling
//
// Errors carry stack traces and structured fields:
//
//	out, err := m.ForwardWithLosses(batch)
//	var mismatch *errors.HeadMatrixMismatchError
//	if errors.As(err, &mismatch) {
//	    // more heads than matrices, or a head bound to a missing matrix
//	}
//
// Undecodable recordings produce a recoverable DecodeError; the dataset skips
// them and logs a warning.
//
// # Command Line
//
// The cmd/mulooc tool exposes matrices, sample, step and extract commands.
package mulooc
