package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

type Permission string

const (
	PermTranscribe   Permission = "transcribe"
	PermSynthesize   Permission = "synthesize"
	PermDatasetRead  Permission = "dataset:read"
	PermDatasetWrite Permission = "dataset:write"
	PermRAG          Permission = "rag"
	PermWildcard     Permission = "*"
)

// Scopes is the token's scope claim. It accepts both the space separated
// string form and a JSON array.
type Scopes []string

func (s *Scopes) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = strings.Fields(str)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

func (s Scopes) Has(perm Permission) bool {
	for _, p := range s {
		if Permission(p) == perm || Permission(p) == PermWildcard {
			return true
		}
	}
	return false
}

// RequirePermission rejects authenticated requests whose token lacks perm.
// With authentication disabled it lets everything through.
func (m *JWTMiddleware) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "missing authorization token")
				return
			}
			if !claims.Scopes.Has(perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
