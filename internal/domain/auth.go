package domain

import "github.com/golang-jwt/jwt/v5"

// ScopeResolveAlerts — право снимать алерты вручную
const ScopeResolveAlerts = "alerts.resolve"

// OperatorClaims — токен оператора, выпускается внешним IdP (RS256)
type OperatorClaims struct {
	Scopes map[string]bool `json:"scopes"` // "admin": true или "alerts.resolve": true
	jwt.RegisteredClaims
}

// Allows — admin имеет все права
func (c *OperatorClaims) Allows(scope string) bool {
	return c.Scopes["admin"] || c.Scopes[scope]
}
