package handlers

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/alem-hub/cf-progress-tracker/pkg/logger"
)

// RequestLogger logs every request once it completes and attaches a
// request-scoped logger to the context. It expects middleware.RequestID to
// run before it.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLog := log.WithRequestID(middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			r = r.WithContext(logger.WithContext(r.Context(), reqLog))

			defer func() {
				reqLog.Info("http request",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("query", r.URL.RawQuery),
					logger.String("ip", r.RemoteAddr),
					logger.Int("status", ww.Status()),
					logger.Int("bytes", ww.BytesWritten()),
					logger.Latency(time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Recovery turns a panic into a JSON 500 response.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				log.Error("panic recovered",
					logger.Any("error", rvr),
					logger.String("stack", string(debug.Stack())),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String(logger.RequestIDKey, middleware.GetReqID(r.Context())),
				)

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"success":false,"error":{"code":"internal_error","message":"Internal server error"}}`))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
