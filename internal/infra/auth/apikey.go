package auth

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HeaderIngestKey — ключ сервиса-источника для записи счетчиков
const HeaderIngestKey = "X-SLO-Key"

// KeyRing хранит только bcrypt-хэши ключей ingestion, сами ключи в конфиг не попадают.
type KeyRing struct {
	hashes [][]byte
}

func NewKeyRing(hashes []string) (*KeyRing, error) {
	kr := &KeyRing{}
	for i, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("ingest key hash #%d: %w", i, err)
		}
		kr.hashes = append(kr.hashes, []byte(h))
	}
	return kr, nil
}

// Enabled — без хэшей ingestion открыт
func (k *KeyRing) Enabled() bool {
	return len(k.hashes) > 0
}

func (k *KeyRing) Verify(key string) bool {
	if key == "" {
		return false
	}
	for _, h := range k.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// HashKey — для утилит выпуска ключей и тестов
func HashKey(key string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// RequireIngestKey проверяет X-SLO-Key, если ключи настроены
func RequireIngestKey(k *KeyRing, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if k.Enabled() && !k.Verify(r.Header.Get(HeaderIngestKey)) {
				logger.Warn("ingest key rejected", zap.String("remote", r.RemoteAddr))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
