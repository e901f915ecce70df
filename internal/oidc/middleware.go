package oidc

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey struct{}

// RequireBearer rejects requests without a valid access token and stores the
// token's subject in the request context. Tokens issued before the identity
// signed out are rejected.
func (p *Provider) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		id, err := p.Resolve(r.Context(), strings.TrimSpace(auth[7:]))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": ErrInvalidToken.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), id.ID)))
	})
}

// WithSubject returns ctx carrying the authenticated identity id.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKey{}, sub)
}

// SubjectFrom returns the authenticated identity id, or "" when absent.
func SubjectFrom(ctx context.Context) string {
	sub, _ := ctx.Value(ctxKey{}).(string)
	return sub
}
