package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/sloguard/internal/domain"
)

// DefaultAudience — aud, который должен стоять в токене оператора sloguard
const DefaultAudience = "sloguard"

// ValidatorOptions — требования к токенам операторов. Пустой Issuer не проверяется.
type ValidatorOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// OperatorValidator проверяет RS256 токены операторов консоли алертов.
// Токен без exp, без sub или выпущенный для другого сервиса (aud) отклоняется.
type OperatorValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewOperatorValidator(pubKey *rsa.PublicKey, opts ValidatorOptions) *OperatorValidator {
	if opts.Audience == "" {
		opts.Audience = DefaultAudience
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(opts.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	return &OperatorValidator{publicKey: pubKey, parser: jwt.NewParser(parserOpts...)}
}

// VerifyToken реализует интерфейс auth.TokenValidator.
func (v *OperatorValidator) VerifyToken(tokenStr string) (*domain.OperatorClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

	claims := &domain.OperatorClaims{}
	if _, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	// sub попадает в лог ручного снятия алерта, без него не знаем, кто снял
	if claims.Subject == "" {
		return nil, errors.New("invalid token: missing operator subject")
	}
	return claims, nil
}

// ParseRSAPublicKey превращает PEM в ключ для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
