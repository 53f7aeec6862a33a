package authutils

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"blog-web/shared/models"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWTVerifier проверяет подпись access-токена общим секретом бэкенда.
//
// Секрет приходит либо в base64, либо сырой строкой. Формат угадываем не по
// виду строки (сырая строка тоже бывает валидным base64), а проверкой подписи:
// сначала ключ из base64, затем сырые байты.
type JWTVerifier struct {
	keys   [][]byte
	logger *zap.Logger
	parser *jwt.Parser
}

// NewJWTVerifier создает верификатор. Логгер может быть nil.
func NewJWTVerifier(secret string, logger *zap.Logger) (*JWTVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JWTVerifier{
		keys:   candidateKeys(secret),
		logger: logger.Named("JWTVerifier"),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}, nil
}

// candidateKeys возвращает ключи в порядке проверки.
func candidateKeys(secret string) [][]byte {
	keys := make([][]byte, 0, 2)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		decoded, err := enc.DecodeString(secret)
		if err == nil && len(decoded) > 0 {
			keys = append(keys, decoded)
			break
		}
	}
	return append(keys, []byte(secret))
}

// VerifyToken проверяет подпись и срок действия, возвращает claims.
// Ошибки: models.ErrTokenExpired, models.ErrTokenMalformed, models.ErrTokenInvalid.
func (v *JWTVerifier) VerifyToken(ctx context.Context, tokenString string) (*models.Claims, error) {
	log := v.logger.With(zap.String("tokenSnippet", tokenSnippet(tokenString)))
	if tokenString == "" {
		return nil, models.ErrTokenMissing
	}

	var lastErr error
	for i, key := range v.keys {
		claims := &models.Claims{}
		token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err == nil && token.Valid {
			log.Debug("Token verified", zap.Int("keyIndex", i), zap.String("subject", claims.Subject))
			return claims, nil
		}
		lastErr = err
		// Неверная подпись - возможно, не тот формат секрета, пробуем следующий ключ
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			continue
		}
		break
	}

	log.Debug("Token verification failed", zap.Error(lastErr))
	switch {
	case errors.Is(lastErr, jwt.ErrTokenExpired):
		return nil, models.ErrTokenExpired
	case errors.Is(lastErr, jwt.ErrTokenMalformed):
		return nil, models.ErrTokenMalformed
	case lastErr == nil:
		return nil, models.ErrTokenInvalid
	default:
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, lastErr)
	}
}

// ExpirationUnverified читает exp без проверки подписи.
// Клиенту секрет недоступен, а время истечения нужно только как подсказка для
// проактивного обновления.
func ExpirationUnverified(tokenString string) (time.Time, error) {
	claims := &models.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", models.ErrTokenMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: exp claim missing", models.ErrTokenMalformed)
	}
	return claims.ExpiresAt.Time, nil
}

// ExpirationOrDefault - как ExpirationUnverified, но при ошибке возвращает now+fallback.
func ExpirationOrDefault(tokenString string, now time.Time, fallback time.Duration) time.Time {
	exp, err := ExpirationUnverified(tokenString)
	if err != nil {
		return now.Add(fallback)
	}
	return exp
}

// tokenSnippet возвращает безопасную для логов часть токена.
func tokenSnippet(tokenString string) string {
	limit := 15
	if len(tokenString) > limit {
		return tokenString[:limit] + "..."
	}
	return tokenString
}
