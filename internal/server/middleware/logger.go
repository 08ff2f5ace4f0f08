package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger logs every request hitting a relay or matchmaker listener
// before it is handled. Upgrade handlers block for the connection's lifetime,
// so logging happens on the way in rather than around the handler.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ""
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
			}
			logger.Info("HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("ip", ip),
			)
			next.ServeHTTP(w, r)
		})
	}
}
