package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/lexdex/internal/logger"
)

// Health checks and scrapes stay reachable without a key.
var publicPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// apiKey keeps only the digest of a configured key.
type apiKey struct {
	digest [sha256.Size]byte
	id     string
}

// BearerAuthMiddleware guards the API with static keys sent as
// "Authorization: Bearer <key>" or "X-API-Key: <key>". An empty key list
// disables auth. The matched key's short id is added to the request log.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := make([]apiKey, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k == "" {
			continue
		}
		d := sha256.Sum256([]byte(k))
		keys = append(keys, apiKey{digest: d, id: hex.EncodeToString(d[:4])})
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			token, msg := presentedKey(r)
			if msg == "" {
				if id, ok := matchKey(keys, token); ok {
					logpkg.Annotate(r.Context(), zap.String("api_key", id))
					next.ServeHTTP(w, r)
					return
				}
				msg = "api key not recognized"
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="lexdex"`)
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
		})
	}
}

// presentedKey extracts the credential, or returns a reason it is unusable.
func presentedKey(r *http.Request) (string, string) {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k, ""
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "api key required"
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "authorization must use the Bearer scheme"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "api key required"
	}
	return token, ""
}

// matchKey compares digests in constant time and checks every key so the
// position of a match does not leak through timing.
func matchKey(keys []apiKey, token string) (string, bool) {
	d := sha256.Sum256([]byte(token))
	var id string
	for _, k := range keys {
		if subtle.ConstantTimeCompare(d[:], k.digest[:]) == 1 {
			id = k.id
		}
	}
	return id, id != ""
}
