package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopmind-ai/shopmind/internal/api"
)

type contextKey string

const OwnerIDKey contextKey = "owner_id"

// OwnerValidator resolves a bearer token to the owner it belongs to. All
// data access downstream is scoped to that owner.
type OwnerValidator interface {
	ValidateOwnerToken(ctx context.Context, token string) (string, error)
}

func OwnerAuth(validator OwnerValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			ownerID, err := validator.ValidateOwnerToken(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid owner token")
				return
			}

			ctx := context.WithValue(r.Context(), OwnerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOwnerID(ctx context.Context) string {
	ownerID, _ := ctx.Value(OwnerIDKey).(string)
	return ownerID
}
