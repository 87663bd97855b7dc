package api

import (
	"net/http"
	"os"
	"strings"
)

type principal struct {
	userID string
}

// authorizer maps bearer tokens to user identities. Token entries come
// from LUGGO_API_TOKENS as "token:userID" pairs separated by commas. When
// no tokens are configured auth runs disabled and the caller's identity is
// taken from the X-User-ID header, which keeps local development and tests
// free of token plumbing.
type authorizer struct {
	enabled bool
	tokens  map[string]principal
}

func newAuthorizerFromEnv() *authorizer {
	raw := strings.TrimSpace(os.Getenv("LUGGO_API_TOKENS"))
	if raw == "" {
		return &authorizer{enabled: false, tokens: map[string]principal{}}
	}
	tokens := make(map[string]principal)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		token := strings.TrimSpace(parts[0])
		userID := strings.TrimSpace(parts[1])
		if token == "" || userID == "" {
			continue
		}
		tokens[token] = principal{userID: userID}
	}
	if len(tokens) == 0 {
		return &authorizer{enabled: false, tokens: map[string]principal{}}
	}
	return &authorizer{enabled: true, tokens: tokens}
}

// authorize resolves the calling user. The status is http.StatusOK on
// success; otherwise the message explains the rejection.
func (a *authorizer) authorize(r *http.Request) (principal, int, string) {
	if !a.enabled {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			return principal{}, http.StatusUnauthorized, "missing X-User-ID header"
		}
		return principal{userID: userID}, http.StatusOK, ""
	}
	token := bearerToken(r)
	if token == "" {
		return principal{}, http.StatusUnauthorized, "missing bearer token"
	}
	p, ok := a.tokens[token]
	if !ok {
		return principal{}, http.StatusUnauthorized, "invalid token"
	}
	return p, http.StatusOK, ""
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return strings.TrimSpace(r.Header.Get("X-Luggo-Token"))
}
