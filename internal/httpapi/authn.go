package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"neplus.org/internal/authn"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// actorHeader identifies the caller when token auth is disabled.
	// Only honored in that mode; never trusted alongside real tokens.
	actorHeader = "X-Actor"
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || !a.auth {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := authn.ParseAndValidate(token)
		if err != nil {
			switch {
			case errors.Is(err, authn.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := authn.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actor resolves the caller identity. With auth enabled it is the token
// subject; with auth disabled (tests, smoke runs) the X-Actor header
// stands in.
func (a *API) actor(r *http.Request) string {
	if id, ok := authn.UserIDFromContext(r.Context()); ok {
		return id
	}
	if !a.auth {
		return strings.TrimSpace(r.Header.Get(actorHeader))
	}
	return ""
}

// requireActor resolves the caller or writes a 401.
func (a *API) requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := a.actor(r)
	if actor == "" {
		writeError(w, r, http.StatusUnauthorized, "caller identity is required")
		return "", false
	}
	return actor, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
