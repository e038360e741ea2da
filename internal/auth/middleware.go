// Package auth authenticates requests against the identity provider
// and makes the caller's user id available to handlers.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware verifies bearer tokens against the OIDC issuer. When
// OIDC_ISSUER is unset the signature check is skipped and only the sub
// claim is extracted; that mode is for local development behind a
// trusted gateway.
func Middleware() func(http.Handler) http.Handler {
	issuer := os.Getenv("OIDC_ISSUER")

	var verifier *oidc.IDTokenVerifier
	if issuer != "" {
		provider, err := oidc.NewProvider(context.Background(), issuer)
		if err != nil {
			panic(fmt.Sprintf("failed to create OIDC provider: %v", err))
		}
		verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			var userID string
			if verifier != nil {
				idToken, err := verifier.Verify(r.Context(), rawToken)
				if err != nil {
					http.Error(w, fmt.Sprintf("invalid token: %v", err), http.StatusUnauthorized)
					return
				}
				var claims struct {
					Sub string `json:"sub"`
				}
				if err := idToken.Claims(&claims); err != nil {
					http.Error(w, "failed to parse claims", http.StatusUnauthorized)
					return
				}
				userID = claims.Sub
			} else {
				userID, err = ExtractUserIDFromJWT(rawToken)
				if err != nil {
					http.Error(w, fmt.Sprintf("invalid token: %v", err), http.StatusUnauthorized)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID stores the caller's id on the context. Exported so handler
// tests can authenticate requests without minting tokens.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID extracts the caller's id in handlers.
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}
