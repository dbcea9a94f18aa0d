package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"query-streamer/internal/security"
	"query-streamer/internal/transport"
)

// maxSignedBody bounds how much of a body is read to check its signature.
const maxSignedBody = 1 << 20

// Auth accepts a request carrying either a valid HS256 bearer token or an
// X-Timestamp/X-Signature HMAC pair. WebSocket clients may pass the token as
// the token query parameter. An empty secret disables authentication.
func Auth(secret string) Middleware {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearer(r); token != "" {
				if _, err := security.VerifyToken(secret, token); err != nil {
					deny(w, r, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				transport.Error(w, http.StatusBadRequest, "failed to read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = security.VerifyHMAC(secret, r.Method, r.URL.Path, string(body),
				r.Header.Get("X-Timestamp"), r.Header.Get("X-Signature"))
			if err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func deny(w http.ResponseWriter, r *http.Request, err error) {
	slog.WarnContext(r.Context(), "unauthorized request", "path", r.URL.Path, "error", err)
	transport.Error(w, http.StatusUnauthorized, "unauthorized")
}
