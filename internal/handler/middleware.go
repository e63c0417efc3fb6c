package handler

import (
	"log/slog"
	"net/http"

	sloghttp "github.com/samber/slog-http"
)

// Logger returns the structured access log middleware.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return sloghttp.NewWithConfig(
		logger, sloghttp.Config{
			DefaultLevel:     slog.LevelInfo,
			ClientErrorLevel: slog.LevelWarn,
			ServerErrorLevel: slog.LevelError,
			WithUserAgent:    true,
			WithRequestID:    true,
			WithTraceID:      true,
			WithSpanID:       true,
		},
	)
}

// CORS allows any origin to call the API.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
