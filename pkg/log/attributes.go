// Package log defines standard attribute keys for contrastive training operations.
//
// Using these keys across the sampler, the matrix builder and the loss
// aggregator keeps log lines filterable by the same fields regardless of
// which component emitted them.
//
// The attributes are organized into categories:
//   - Model and Operation Context
//   - Batch and View Shape
//   - Sampling and Dataset
//   - Losses and Diagnostics
//   - Error Context
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.batch_size").

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the model or collaborator emitting the log.
	// Examples: "MuLOOC", "SpectralEncoder", "NTXent"
	ModelNameKey = "model.name"

	// RunIDKey identifies one monitoring run.
	RunIDKey = "run.id"

	// OperationKey specifies the operation being performed.
	// Standard values: see Operation* constants below.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "sampling", "contrastive", "models", "dataset"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the run.
	// Examples: "training", "validation", "inference"
	PhaseKey = "ml.phase"
)

// Batch and View Shape
const (
	// BatchSizeKey is the number of source items B in a batch.
	BatchSizeKey = "data.batch_size"

	// ViewsKey is the number of views N per source item.
	ViewsKey = "data.views"

	// SamplesKey is the number of waveform samples per view.
	SamplesKey = "data.samples"

	// FeaturesKey is an embedding dimensionality.
	FeaturesKey = "data.features"

	// ChannelsKey is the number of channels of a decoded waveform.
	ChannelsKey = "data.channels"

	// SampleRateKey is a sample rate in Hz.
	SampleRateKey = "data.sample_rate"
)

// Sampling and Dataset
const (
	// StrategyKey is the segment sampling strategy drawn for an item.
	StrategyKey = "sampling.strategy"

	// PathKey is the path of a source recording.
	PathKey = "dataset.path"

	// IndexKey is an index in the source collection.
	IndexKey = "dataset.index"

	// RetryKey counts load attempts for one requested index.
	RetryKey = "dataset.retry"

	// AugmentationKey names an augmentation dimension.
	AugmentationKey = "augment.dimension"
)

// Losses and Diagnostics
const (
	// HeadKey names a projection head.
	HeadKey = "head.name"

	// MatrixKey names a contrastive matrix ("invariant" or an augmentation dimension).
	MatrixKey = "matrix.key"

	// LossKey records a loss value.
	LossKey = "metrics.loss"

	// PositivesKey counts positive off-diagonal pairs in a matrix.
	PositivesKey = "metrics.positives"

	// StepKey is the global step counter of a run.
	StepKey = "training.step"

	// EpochKey is the epoch counter of a run.
	EpochKey = "training.epoch"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides helpful suggestions for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationSample          = "sample"
	OperationBuildMatrices   = "build_matrices"
	OperationForward         = "forward"
	OperationForwardLosses   = "forward_with_losses"
	OperationExtractFeatures = "extract_features"
	OperationObserve         = "observe"
	OperationProbe           = "probe"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseInference  = "inference"

	ErrorDecode           = "DECODE_FAILED"
	ErrorDatasetExhausted = "DATASET_EXHAUSTED"
	ErrorHeadMismatch     = "HEAD_MATRIX_MISMATCH"
	ErrorShapeMismatch    = "SHAPE_MISMATCH"
)
