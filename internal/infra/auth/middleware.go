package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/sloguard/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — проверка токена оператора
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.OperatorClaims, error)
}

type ctxKey struct{}

// ClaimsFromContext — claims, положенные middleware
func ClaimsFromContext(ctx context.Context) (*domain.OperatorClaims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*domain.OperatorClaims)
	return c, ok
}

// RequireScope пропускает только токены с нужным scope
func RequireScope(v TokenValidator, scope string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !claims.Allows(scope) {
				logger.Warn("scope denied", zap.String("sub", claims.Subject), zap.String("scope", scope))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
