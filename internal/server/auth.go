package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"choreline/internal/credentials"
	"choreline/internal/domain"

	"github.com/danielgtaylor/huma/v2"
)

type AuthConfig struct {
	TokenSecret string
	Now         func() time.Time
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p credentials.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (credentials.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(credentials.Principal)
	return p, ok
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware attaches the token principal when an Authorization header
// is present. Requests without one pass through anonymously; a malformed or
// invalid token is rejected.
func newAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_token", "invalid credentials", nil))
				return
			}
			principal, err := credentials.ParseToken(token, cfg.TokenSecret, cfg.Now)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_token", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

// actingUser resolves the user a request acts as. A body id must match the
// token subject when both are present; with no token the body id is used.
func actingUser(ctx context.Context, bodyID int64, field string) (int64, error) {
	p, authed := principalFromContext(ctx)
	switch {
	case authed && bodyID != 0 && bodyID != p.UserID:
		return 0, domain.ErrActorMismatch.WithMessage("%s %d does not match the authenticated user %d", field, bodyID, p.UserID)
	case authed:
		return p.UserID, nil
	case bodyID != 0:
		return bodyID, nil
	}
	return 0, domain.ErrInvalidInput.WithMessage("%s is required", field)
}

// tokenUser returns the token subject, or zero for anonymous requests.
// Permission-gated operations only trust identities proven by a token.
func tokenUser(ctx context.Context) int64 {
	if p, ok := principalFromContext(ctx); ok {
		return p.UserID
	}
	return 0
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
