// Package model defines the collaborator interfaces of the contrastive
// engine: the shared encoder, the projection heads and the loss primitive.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Encoder maps a batch of mono views (rows) to shared embeddings (rows).
type Encoder interface {
	// Encode returns one EmbedDim-wide row per input row.
	Encode(views *mat.Dense) (*mat.Dense, error)

	// EmbedDim is the width of the encoder output.
	EmbedDim() int
}

// Head projects shared embeddings into a head-specific space.
type Head interface {
	Name() string

	// Project maps InDim-wide rows to OutDim-wide rows.
	Project(x *mat.Dense) (*mat.Dense, error)

	InDim() int
	OutDim() int
}

// ContrastiveLoss scores embeddings against a target equivalence matrix.
type ContrastiveLoss interface {
	// Loss returns the scalar loss of emb given the positives in target.
	// negMask marks pairs eligible as negatives; nil means every pair.
	Loss(emb *mat.Dense, target, negMask mat.Symmetric) (float64, error)

	// Similarities returns the pairwise similarity matrix of emb.
	Similarities(emb *mat.Dense) (*mat.SymDense, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// Persistable is the interface for models that can be saved and loaded.
type Persistable interface {
	// Save saves the model to a file.
	Save(path string) error

	// Load loads the model from a file.
	Load(path string) error
}
