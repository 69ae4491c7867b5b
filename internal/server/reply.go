package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Error codes returned in errorResponse.Code.
const (
	codeValidation = "validation_error"
	codeNotFound   = "not_found"
	codeInternal   = "internal_error"
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	SupportID string `json:"supportId"`
}

func handler(f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			replyError(r.Context(), w, err)
		}
	}
}

func replyJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger(ctx).Error("json.Encode", err)
	}
}

func replyError(ctx context.Context, w http.ResponseWriter, err error) {
	response := errorResponse{
		Message:   err.Error(),
		SupportID: supportID(ctx),
	}

	switch {
	case isBadRequest(err):
		logger(ctx).Warn("bad request", "error", err.Error())
		response.Code = codeValidation
		replyJSON(ctx, w, http.StatusBadRequest, response)
	default:
		logger(ctx).Error("request failed", err)
		response.Code = codeInternal
		response.Message = "internal server error"
		replyJSON(ctx, w, http.StatusInternalServerError, response)
	}
}

// isBadRequest reports whether err was caused by the request itself.
// ValueError and DimensionError describe server-side state and stay 500.
func isBadRequest(err error) bool {
	var (
		validationErr *errors.ValidationError
		shapeErr      *errors.DataShapeError
	)
	return errors.As(err, &validationErr) || errors.As(err, &shapeErr)
}

func supportID(ctx context.Context) string {
	traceID, ok := traceIDFromContext(ctx)
	if !ok {
		return "unsupported"
	}

	return traceID
}

// read decodes a JSON body into dest and validates its struct tags.
func read(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.NewValidationError("body", fmt.Errorf("json.Decode: %w", err).Error(), nil)
	}

	if err := validate.StructCtx(r.Context(), dest); err != nil {
		return errors.NewValidationError("body", err.Error(), nil)
	}

	return nil
}

func notFound(w http.ResponseWriter, r *http.Request) {
	replyJSON(r.Context(), w, http.StatusNotFound, errorResponse{
		Code:      codeNotFound,
		Message:   fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
		SupportID: supportID(r.Context()),
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
