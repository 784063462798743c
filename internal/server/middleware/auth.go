package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-essam23/collab-dispatch/pkg/auth"
	"github.com/a-essam23/collab-dispatch/pkg/protocol"
)

const (
	// AuthErrorHeader carries the rejection code, readable even by clients that
	// only see the status of a failed upgrade.
	AuthErrorHeader = "X-Auth-Error"

	tokenQueryParam = "token"
	tokenCookie     = "session-token"
)

// NewAuthMiddleware rejects the handshake before upgrade unless it carries a
// valid bearer credential. The reason (missing, malformed, expired) is reported
// so that clients know whether refreshing the token can help.
func NewAuthMiddleware(logger *slog.Logger, verifier auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Auth middleware could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			identity, err := verifier.Verify(extractToken(r))
			if err != nil {
				code, message := classify(err)
				logger.Warn("Handshake rejected",
					slog.String("ip", reqMeta.IP),
					slog.String("code", string(code)),
					slog.Any("error", err),
				)
				writeAuthError(w, code, message)
				return
			}

			reqMeta.UserID = identity.UserID
			reqMeta.TokenExpiry = identity.Expiry
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken looks at the Authorization header, then the token query
// parameter (browsers cannot set headers on a websocket upgrade), then the
// session cookie.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get(tokenQueryParam); token != "" {
		return token
	}
	if cookie, err := r.Cookie(tokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func classify(err error) (protocol.ErrorCode, string) {
	switch {
	case errors.Is(err, auth.ErrTokenMissing):
		return protocol.CodeAuthMissing, "authentication token missing"
	case errors.Is(err, auth.ErrTokenExpired):
		return protocol.CodeAuthExpired, "authentication token expired"
	default:
		return protocol.CodeAuthMalformed, "authentication token invalid"
	}
}

func writeAuthError(w http.ResponseWriter, code protocol.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(AuthErrorHeader, string(code))
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(protocol.Error{Code: code, Message: message})
}
