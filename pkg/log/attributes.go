package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "StandardScaler", "LogisticRegression"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score", "load", "save"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package produced the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the lifecycle phase.
	// Examples: "training", "inference", "preprocessing"
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"

	// FeatureKey names a single measurement key such as "radius_mean".
	FeatureKey = "data.feature"

	// ColumnKey names a CSV column.
	ColumnKey = "data.column"

	// RowKey is a 1-based data row.
	RowKey = "data.row"

	// PathKey is a filesystem path of a dataset or artifact.
	PathKey = "data.path"
)

// Metrics.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	AUCKey        = "metrics.auc"
	LossKey       = "metrics.loss"
	IterationKey  = "training.iteration"

	// RandomSeedKey records the seed used for splitting.
	RandomSeedKey = "config.random_seed"

	// TestSizeKey records the held-out fraction.
	TestSizeKey = "config.test_size"
)

// Prediction output.
const (
	// ClassKey is the predicted class label (0 benign, 1 malignant).
	ClassKey = "preds.class"

	// ProbabilityKey is the probability of the malignant class.
	ProbabilityKey = "preds.probability"
)

// Artifacts and serving.
const (
	// ArtifactKey names a persisted artifact such as "scaler.json".
	ArtifactKey = "artifact.name"

	// SchemaVersionKey is the schema version found in an artifact.
	SchemaVersionKey = "artifact.schema_version"

	TraceIDKey  = "http.trace_id"
	MethodKey   = "http.method"
	RouteKey    = "http.route"
	StatusKey   = "http.status"
	AddrKey     = "http.addr"
	RemoteIPKey = "http.remote_ip"
)

// Error context.
const (
	// ErrorTypeKey categorizes the error.
	// Examples: "DataShapeError", "ValidationError"
	ErrorTypeKey = "error.type"

	// ParamKey is the parameter or input key a ValidationError rejected.
	ParamKey = "error.param"
)

const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"
	OperationLoad      = "load"
	OperationSave      = "save"

	PhaseTraining      = "training"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
