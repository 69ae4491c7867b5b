package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	cerrors "github.com/YuminosukeSato/cytodash/pkg/errors"
)

// ErrFmtHandler is a slog handler that expands the ErrAttr of a record: the
// stacktrace from cockroachdb/errors, the error type and, for errors tied to
// the dataset, the feature, column or artifact they concern.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps a slog handler so that records carrying an
// ErrAttr also get the attributes returned by ErrorAttrs.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{
		handler: handler,
	}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var found error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == ErrAttrKey {
			if err, ok := attr.Value.Resolve().Any().(error); ok {
				found = err
			}
			return false
		}
		return true
	})
	if found != nil {
		r.AddAttrs(ErrorAttrs(found)...)
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// ErrorAttrs describes err for a log record. Every backend attaches the same
// keys, so a search on FeatureKey finds a degenerate feature whichever
// provider wrote it.
func ErrorAttrs(err error) []slog.Attr {
	var attrs []slog.Attr
	if st := extractStacktrace(err); st != "" {
		attrs = append(attrs, slog.String(StacktraceAttrKey, st))
	}

	var (
		shapeErr    *cerrors.DataShapeError
		degErr      *cerrors.DegenerateFeatureError
		numErr      *cerrors.NumericalInstabilityError
		valErr      *cerrors.ValidationError
		artifactErr *cerrors.ArtifactMismatchError
		fitErr      *cerrors.NotFittedError
		dimErr      *cerrors.DimensionError
		valueErr    *cerrors.ValueError
		modelErr    *cerrors.ModelError
		panicErr    *cerrors.PanicError
	)
	switch {
	case errors.As(err, &shapeErr):
		attrs = append(attrs, slog.String(ErrorTypeKey, "DataShapeError"))
		if shapeErr.Column != "" {
			attrs = append(attrs, slog.String(ColumnKey, shapeErr.Column))
		}
		if shapeErr.Row > 0 {
			attrs = append(attrs, slog.Int(RowKey, shapeErr.Row))
		}
	case errors.As(err, &degErr):
		attrs = append(attrs,
			slog.String(ErrorTypeKey, "DegenerateFeatureError"),
			slog.String(FeatureKey, degErr.Feature),
		)
	case errors.As(err, &numErr):
		attrs = append(attrs, slog.String(ErrorTypeKey, "NumericalInstabilityError"))
		if numErr.Feature != "" {
			attrs = append(attrs, slog.String(FeatureKey, numErr.Feature))
		}
		if numErr.Row > 0 {
			attrs = append(attrs, slog.Int(RowKey, numErr.Row))
		}
	case errors.As(err, &valErr):
		attrs = append(attrs,
			slog.String(ErrorTypeKey, "ValidationError"),
			slog.String(ParamKey, valErr.ParamName),
		)
	case errors.As(err, &artifactErr):
		attrs = append(attrs,
			slog.String(ErrorTypeKey, "ArtifactMismatchError"),
			slog.String(ArtifactKey, artifactErr.Artifact),
		)
	case errors.As(err, &fitErr):
		attrs = append(attrs,
			slog.String(ErrorTypeKey, "NotFittedError"),
			slog.String(ModelNameKey, fitErr.ModelName),
		)
	case errors.As(err, &dimErr):
		attrs = append(attrs, slog.String(ErrorTypeKey, "DimensionError"))
	case errors.As(err, &valueErr):
		attrs = append(attrs, slog.String(ErrorTypeKey, "ValueError"))
	case errors.As(err, &modelErr):
		attrs = append(attrs, slog.String(ErrorTypeKey, "ModelError"))
	case errors.As(err, &panicErr):
		attrs = append(attrs, slog.String(ErrorTypeKey, "PanicError"))
	}
	return attrs
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
