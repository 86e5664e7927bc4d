package featstore

import (
	"context"

	"github.com/Pliploop/MuLOOC/dataset"
	"github.com/Pliploop/MuLOOC/models"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Extractor maps views to embeddings under a head selector.
type Extractor interface {
	ExtractFeatures(views *mat.Dense, sel models.HeadSelector) (*mat.Dense, error)
}

// Source yields the examples to extract, typically an AudioDataset in
// return-full mode.
type Source interface {
	Len() int
	Get(idx int) (*dataset.Example, error)
}

// ExtractOptions configures Extract.
type ExtractOptions struct {
	Head models.HeadSelector
	// Overwrite recomputes records already present in the store.
	Overwrite bool
	// Progress is called once per item, extracted or skipped.
	Progress func()
}

// ExtractStats summarises an Extract run.
type ExtractStats struct {
	Extracted int
	Cached    int
	Failed    int
}

// Extract embeds every item of src with m and stores one record per
// recording. Items whose recording cannot be decoded, or for which src
// substituted another item, are logged and counted as failed.
func Extract(ctx context.Context, src Source, m Extractor, store *Store, opts ExtractOptions) (ExtractStats, error) {
	var stats ExtractStats
	head := opts.Head.String()
	logger := store.logger.With(log.OperationKey, log.OperationExtractFeatures, log.HeadKey, head)

	for i := 0; i < src.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := extractOne(ctx, src, m, store, opts, i, &stats, logger); err != nil {
			return stats, err
		}
		if opts.Progress != nil {
			opts.Progress()
		}
	}
	logger.Info("feature extraction finished",
		"extracted", stats.Extracted,
		"cached", stats.Cached,
		"failed", stats.Failed,
	)
	return stats, nil
}

func extractOne(ctx context.Context, src Source, m Extractor, store *Store, opts ExtractOptions,
	i int, stats *ExtractStats, logger log.Logger) error {
	ex, err := src.Get(i)
	if err != nil {
		var exhausted *errors.DatasetExhaustedError
		if errors.IsRecoverable(err) || errors.As(err, &exhausted) {
			stats.Failed++
			logger.Warn("skipping item", log.IndexKey, i, log.ErrAttrKey, err)
			return nil
		}
		return err
	}
	// Sources may substitute the next readable item; that item is visited
	// on its own index.
	if ex.Index != i {
		stats.Failed++
		logger.Warn("skipping substituted item",
			log.IndexKey, i,
			"substitute", ex.Index,
			log.PathKey, ex.Path,
		)
		return nil
	}
	head := opts.Head.String()
	if !opts.Overwrite {
		ok, err := store.Has(ctx, head, ex.Path)
		if err != nil {
			return err
		}
		if ok {
			stats.Cached++
			return nil
		}
	}

	feats, err := m.ExtractFeatures(ex.Audio, opts.Head)
	if err != nil {
		return err
	}
	chunks, dim := feats.Dims()
	rec := &Record{
		Path:     ex.Path,
		Head:     head,
		Dim:      dim,
		Chunks:   chunks,
		Features: make([]float64, 0, chunks*dim),
		Mean:     make([]float64, dim),
		Labels:   ex.Labels,
	}
	for r := 0; r < chunks; r++ {
		rec.Features = append(rec.Features, feats.RawRowView(r)...)
	}
	for c := 0; c < dim; c++ {
		rec.Mean[c] = stat.Mean(mat.Col(nil, c, feats), nil)
	}
	if err := store.Put(ctx, rec); err != nil {
		return err
	}
	stats.Extracted++
	logger.Debug("extracted features", log.PathKey, ex.Path, log.FeaturesKey, dim, "chunks", chunks)
	return nil
}
