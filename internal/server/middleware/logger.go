package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

// NewRequestLogger logs every handshake attempt before it is authenticated.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			var ip string
			if ok {
				ip = reqMeta.IP
			}

			logger.Info("Incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("ip", ip),
				slog.String("userAgent", r.UserAgent()),
				slog.Bool("upgrade", strings.EqualFold(r.Header.Get("Upgrade"), "websocket")),
			)
			next.ServeHTTP(w, r)
		})
	}
}
