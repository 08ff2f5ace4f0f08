package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/emberfn/uplink/internal/ticket"
)

// NewTicketAuthMiddleware gates the matchmaker upgrade. The Authorization
// header's 4th whitespace-separated token is the signed matchmaking ticket
// issued by the HTTP matchmaking endpoint; anything absent or malformed is
// rejected with 400 before the upgrade.
func NewTicketAuthMiddleware(logger *slog.Logger, signer *ticket.Signer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			authorization := r.Header.Get("Authorization")
			if authorization == "" {
				logger.Warn("Matchmaker upgrade without Authorization header", slog.String("ip", reqMeta.IP))
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}

			parts := strings.Fields(authorization)
			if len(parts) < 4 {
				logger.Warn("Matchmaker Authorization header malformed", slog.String("ip", reqMeta.IP))
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}

			claims, err := signer.Verify(parts[3])
			if err != nil {
				logger.Warn("Invalid matchmaking ticket presented",
					slog.String("ip", reqMeta.IP),
					slog.Any("error", err),
				)
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}
			if claims.Playlist == "" || claims.Region == "" {
				logger.Warn("Matchmaking ticket missing playlist/region", slog.String("ip", reqMeta.IP))
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}

			reqMeta.Ticket = claims
			next.ServeHTTP(w, r)
		})
	}
}
