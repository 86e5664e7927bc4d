// Package featstore caches extracted embeddings in BadgerDB so probes can
// be trained without re-running the encoder.
package featstore

import (
	"context"
	"fmt"
	"iter"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"github.com/Pliploop/MuLOOC/preprocessing"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("featstore: record not found")

const keyPrefix = "feat"

// Record holds the features of one recording under one head selector.
type Record struct {
	Path   string `msgpack:"path"`
	Head   string `msgpack:"head"`
	Dim    int    `msgpack:"dim"`
	Chunks int    `msgpack:"chunks"`
	// Features holds Chunks×Dim values, row-major.
	Features []float64 `msgpack:"features"`
	// Mean is the average over chunks.
	Mean   []float64 `msgpack:"mean"`
	Labels []float64 `msgpack:"labels,omitempty"`
}

// Matrix returns the per-chunk features as a Chunks×Dim matrix.
func (r *Record) Matrix() *mat.Dense {
	return mat.NewDense(r.Chunks, r.Dim, append([]float64(nil), r.Features...))
}

func (r *Record) validate() error {
	if r.Path == "" || r.Head == "" {
		return errors.NewValueError("Record.validate", "path and head are required")
	}
	if r.Dim <= 0 || r.Chunks <= 0 || len(r.Features) != r.Dim*r.Chunks {
		return errors.NewDimensionError("Record.validate", r.Dim*r.Chunks, len(r.Features), 1)
	}
	if len(r.Mean) != r.Dim {
		return errors.NewDimensionError("Record.validate", r.Dim, len(r.Mean), 1)
	}
	return nil
}

// Options configures a Store.
type Options struct {
	// Dir is the BadgerDB directory. Required unless InMemory is set.
	Dir string
	// InMemory keeps every record in memory.
	InMemory bool
	Logger   log.Logger
}

// Store is a BadgerDB-backed feature cache.
type Store struct {
	db     *badger.DB
	logger log.Logger
}

// Open opens or creates a Store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.NewValidationError("dir", "required for on-disk mode", opts.Dir)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = logger.With(log.ComponentKey, "featstore")

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open feature store")
	}
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(head, path string) []byte {
	return []byte(keyPrefix + ":" + head + ":" + path)
}

func headPrefix(head string) []byte {
	return []byte(keyPrefix + ":" + head + ":")
}

// Put stores rec, replacing any previous record for the same path and head.
func (s *Store) Put(_ context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode record")
	}
	return errors.WithStack(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.Head, rec.Path), data)
	}))
}

// Get returns the record of path under head.
func (s *Store) Get(_ context.Context, head, path string) (*Record, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(head, path))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var rec Record
	if err := msgpack.Unmarshal(val, &rec); err != nil {
		return nil, errors.Wrapf(err, "corrupt record for %s", path)
	}
	return &rec, nil
}

// Has reports whether a record exists for path under head.
func (s *Store) Has(ctx context.Context, head, path string) (bool, error) {
	_, err := s.Get(ctx, head, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// List yields every record stored under head in key order.
func (s *Store) List(_ context.Context, head string) iter.Seq2[*Record, error] {
	prefix := headPrefix(head)
	return func(yield func(*Record, error) bool) {
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				val, err := it.Item().ValueCopy(nil)
				if err != nil {
					if !yield(nil, errors.WithStack(err)) {
						return nil
					}
					continue
				}
				var rec Record
				if err := msgpack.Unmarshal(val, &rec); err != nil {
					if !yield(nil, errors.Wrap(err, "corrupt record")) {
						return nil
					}
					continue
				}
				if !yield(&rec, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(nil, errors.WithStack(err))
		}
	}
}

// Matrix stacks the mean features of every record under head, one row per
// recording, together with their paths.
func (s *Store) Matrix(ctx context.Context, head string) (*mat.Dense, []string, error) {
	var rows [][]float64
	var paths []string
	for rec, err := range s.List(ctx, head) {
		if err != nil {
			return nil, nil, err
		}
		if len(rows) > 0 && len(rec.Mean) != len(rows[0]) {
			return nil, nil, errors.NewDimensionError("Store.Matrix", len(rows[0]), len(rec.Mean), 1)
		}
		rows = append(rows, rec.Mean)
		paths = append(paths, rec.Path)
	}
	if len(rows) == 0 {
		return nil, nil, ErrNotFound
	}
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		out.SetRow(i, r)
	}
	return out, paths, nil
}

// Labels stacks the label vectors of every record under head in the row
// order of Matrix. Every record must carry labels of the same width.
func (s *Store) Labels(ctx context.Context, head string) (*mat.Dense, []string, error) {
	var rows [][]float64
	var paths []string
	for rec, err := range s.List(ctx, head) {
		if err != nil {
			return nil, nil, err
		}
		if len(rec.Labels) == 0 {
			return nil, nil, errors.NewValueError("Store.Labels", fmt.Sprintf("record %s has no labels", rec.Path))
		}
		if len(rows) > 0 && len(rec.Labels) != len(rows[0]) {
			return nil, nil, errors.NewDimensionError("Store.Labels", len(rows[0]), len(rec.Labels), 1)
		}
		rows = append(rows, rec.Labels)
		paths = append(paths, rec.Path)
	}
	if len(rows) == 0 {
		return nil, nil, ErrNotFound
	}
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		out.SetRow(i, r)
	}
	return out, paths, nil
}

// Standardized is Matrix with every feature column scaled to zero mean and
// unit variance. The fitted scaler is returned so that query features can be
// mapped into the same space.
func (s *Store) Standardized(ctx context.Context, head string) (*mat.Dense, []string, *preprocessing.StandardScaler, error) {
	m, paths, err := s.Matrix(ctx, head)
	if err != nil {
		return nil, nil, nil, err
	}
	scaler := preprocessing.NewStandardScalerDefault()
	out, err := scaler.FitTransform(m)
	if err != nil {
		return nil, nil, nil, err
	}
	return out, paths, scaler, nil
}

// badgerLogger routes badger output to the package logger, dropping its
// info and debug chatter.
type badgerLogger struct {
	logger log.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) { l.logger.Error(fmt.Sprintf(f, v...)) }

func (l badgerLogger) Warningf(f string, v ...interface{}) { l.logger.Warn(fmt.Sprintf(f, v...)) }

func (badgerLogger) Infof(string, ...interface{}) {}

func (badgerLogger) Debugf(string, ...interface{}) {}
