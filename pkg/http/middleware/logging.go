package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/pkg/logging"
)

// RequestLogger logs every request once it completes
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger).Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status_code", status),
				zap.Int("response_bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			}

			switch {
			case status >= 500:
				logger.Error("HTTP request completed with error", fields...)
			case status >= 400:
				logger.Warn("HTTP request completed with warning", fields...)
			default:
				logger.Info("HTTP request completed", fields...)
			}
		})
	}
}
