package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hxplabs/hxpd/internal/config"
)

type agentCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
	"/hxp":          true,
}

// Auth returns middleware that validates Bearer API keys against the
// configured set. Keys may be stored as bcrypt hashes or, for development,
// as plaintext. When authEnabled is false, a default agent identity is
// injected so handlers always see a caller.
func Auth(cfg config.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				ctx := context.WithValue(r.Context(), agentCtxKey{}, "default-agent")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			// WebSocket clients cannot set headers, so /ws accepts the key
			// via a ?token= query parameter instead.
			var key string
			if r.URL.Path == "/ws" {
				key = r.URL.Query().Get("token")
			} else {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					unauthorized(w, "authorization required")
					return
				}
				key = strings.TrimPrefix(authHeader, "Bearer ")
				if key == authHeader {
					unauthorized(w, "invalid authorization header")
					return
				}
			}
			if key == "" {
				unauthorized(w, "authorization required")
				return
			}

			agentID, ok := matchKey(cfg.Keys, key)
			if !ok {
				unauthorized(w, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), agentCtxKey{}, agentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// matchKey checks the presented key against each configured credential.
// Hashed entries use bcrypt; plaintext entries use a constant-time compare.
func matchKey(keys []config.AgentKey, presented string) (string, bool) {
	for _, k := range keys {
		if k.Hash != "" {
			if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(presented)) == nil {
				return k.AgentID, true
			}
			continue
		}
		if k.Key != "" && subtle.ConstantTimeCompare([]byte(k.Key), []byte(presented)) == 1 {
			return k.AgentID, true
		}
	}
	return "", false
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"` + msg + `"}`))
}

// AgentFromContext returns the authenticated agent ID from the request
// context, or the empty string when no agent is attached.
func AgentFromContext(ctx context.Context) string {
	id, _ := ctx.Value(agentCtxKey{}).(string)
	return id
}
