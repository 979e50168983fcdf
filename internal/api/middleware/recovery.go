package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/godseye3002/godseye/internal/api/response"
)

// Recovery turns handler panics into 500 envelopes. Panics inside an upgraded
// progress stream cannot be answered this way; the write below is a no-op once
// the connection is hijacked and the client sees the stream drop instead.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
