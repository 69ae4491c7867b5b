package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"

	"github.com/YuminosukeSato/cytodash/pkg/log"
)

const headerNameTraceID = "X-Trace-Id"

type ctxKey int

const (
	ctxKeyTraceID ctxKey = iota
	ctxKeyLogger
)

func withTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, traceID)
}

func traceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyTraceID).(string)
	return id, ok && id != ""
}

func withLogger(ctx context.Context, l log.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, l)
}

func logger(ctx context.Context) log.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(log.Logger); ok {
		return l
	}
	return log.GetLoggerWithName("server")
}

// TraceID reuses the caller's X-Trace-Id or generates a new one, and echoes it back.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(headerNameTraceID)

		if traceID == "" {
			traceID = xid.New().String()
		}

		ctx := withTraceID(r.Context(), traceID)

		w.Header().Set(headerNameTraceID, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger attaches a request-scoped logger and writes one access record per request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		traceID, _ := traceIDFromContext(ctx)

		l := logger(ctx).With(
			log.TraceIDKey, traceID,
			log.MethodKey, r.Method,
			log.RemoteIPKey, r.RemoteAddr,
		)
		ctx = withLogger(ctx, l)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		l.Info("request served",
			log.RouteKey, routePattern(r),
			log.StatusKey, status(ww),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	})
}

// Recovery turns a handler panic into a bare 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger(ctx).Error("panic in handler",
					"panic", rec,
					"stack", string(debug.Stack()),
				)

				w.WriteHeader(http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func status(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
