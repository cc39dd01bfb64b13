package tgauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Header carries initData on every WebApp request.
const Header = "X-TG-INIT-DATA"

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user stored by Middleware.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}

// Middleware rejects requests without valid initData with 401 and stores
// the authenticated user in the request context.
func Middleware(botToken string, maxAge time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := strings.TrimSpace(r.Header.Get(Header))
			if initData == "" {
				unauthorized(w, ErrMissingInitData)
				return
			}
			u, err := Validate(initData, botToken, maxAge, time.Now())
			if err != nil {
				unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
