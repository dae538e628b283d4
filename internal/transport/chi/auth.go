package chi

import (
	"net/http"
	"strings"
)

// BearerAuthMiddleware validates Bearer tokens against the configured API
// keys. An empty key set disables authentication entirely. Health and
// metrics stay reachable without a token so probes and scrapers work.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized,
					"Bearer token required")
				return
			}
			if _, known := keys[token]; !known {
				writeError(w, http.StatusUnauthorized, codeUnauthorized,
					"invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
