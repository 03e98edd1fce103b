package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/apikey"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

type ctxKey int

const (
	apiKeyCtxKey ctxKey = iota
	ownerCtxKey
)

// keyFromContext returns the authenticated API key, or nil.
func keyFromContext(ctx context.Context) *apikey.Key {
	k, _ := ctx.Value(apiKeyCtxKey).(*apikey.Key)
	return k
}

// ownerFromContext returns the authenticated owner address (lower-case),
// or "".
func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerCtxKey).(string)
	return owner
}

// presentedKey pulls the API key from X-API-Key or a Bearer token.
func presentedKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}

// authCacheTTL bounds how long a validated key skips the store lookup; a
// revocation takes at most this long to bite on a hot key.
const authCacheTTL = 30 * time.Second

// requireAPIKey authenticates the presented key and attaches it (and its
// owner) to the request context. Missing or revoked keys answer 401.
// Validated keys are cached briefly, keyed by a hash of the presented
// value so the plaintext never sits in the cache.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		full := presentedKey(r)
		if full == "" {
			s.writeError(w, r, svcerrors.Unauthorized("API key required"))
			return
		}

		sum := sha256.Sum256([]byte(full))
		cacheKey := hex.EncodeToString(sum[:])

		var key *apikey.Key
		if cached, ok := s.authCache.GetToken(cacheKey); ok {
			key = cached.(*apikey.Key)
		} else {
			authenticated, err := apikey.Authenticate(r.Context(), s.keys, full, time.Now().UTC())
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			key = authenticated
			s.authCache.SetToken(cacheKey, key, authCacheTTL)
		}

		ctx := context.WithValue(r.Context(), apiKeyCtxKey, key)
		ctx = context.WithValue(ctx, ownerCtxKey, strings.ToLower(key.Owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
