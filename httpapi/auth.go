package httpapi

import (
	"context"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of the session JWT issued by the auth
// frontend. The GitHub token is mandatory; Vercel credentials are
// optional.
type SessionClaims struct {
	GitHubToken  string `json:"github_token"`
	VercelToken  string `json:"vercel_token,omitempty"`
	VercelTeamID string `json:"vercel_team_id,omitempty"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// claimsFrom returns the verified session claims for the request.
func claimsFrom(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(claimsKey{}).(*SessionClaims)
	return claims
}

// withAuth verifies the Bearer session token and rejects requests that
// lack a usable GitHub token with 401 before any stream is opened.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			writeErr(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := &SessionClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			writeErr(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		if claims.GitHubToken == "" {
			writeErr(w, http.StatusUnauthorized, "session has no repository access token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next(w, r.WithContext(ctx))
	}
}
