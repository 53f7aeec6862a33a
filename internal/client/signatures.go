package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"blog-web/shared/models"
)

// defaultLegacyMessages - фрагменты сообщений, которыми бэкенд исторически
// сообщал об истёкшем или отсутствующем access-токене.
var defaultLegacyMessages = []string{
	"access token expired",
	"access token has expired",
	"expired access token",
	"token expired",
	"token has expired",
	"jwt expired",
	"access token is missing",
	"access token not found",
	"authorization header missing",
}

// ExpiredTokenMatcher распознаёт 401 "access-токен истёк/отсутствует".
// Сначала сверяются стабильные коды ошибок; сопоставление по тексту сообщения -
// устаревший путь, включается флагом LegacyMessageMatch.
type ExpiredTokenMatcher struct {
	Codes              []string
	LegacyMessageMatch bool
	LegacyMessages     []string
}

// DefaultExpiredTokenMatcher - код J004 плюс устаревшие сообщения.
func DefaultExpiredTokenMatcher() ExpiredTokenMatcher {
	return ExpiredTokenMatcher{
		Codes:              []string{models.CodeAccessTokenExpired},
		LegacyMessageMatch: true,
		LegacyMessages:     defaultLegacyMessages,
	}
}

// Matches проверяет тело ответа 401.
func (m ExpiredTokenMatcher) Matches(body []byte) bool {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		// Не JSON: остаётся только текстовое сопоставление
		return m.LegacyMessageMatch && m.containsLegacy(string(body))
	}

	// Некоторые эндпоинты заворачивают ошибку в data
	if nested, ok := payload["data"].(map[string]interface{}); ok {
		for k, v := range nested {
			if _, exists := payload[k]; !exists {
				payload[k] = v
			}
		}
	}

	if code, ok := payload["code"]; ok && code != nil {
		codeStr := fmt.Sprint(code)
		for _, known := range m.Codes {
			if strings.EqualFold(codeStr, known) {
				return true
			}
		}
	}

	if !m.LegacyMessageMatch {
		return false
	}
	for _, field := range []string{"message", "error", "detail"} {
		if s, ok := payload[field].(string); ok && m.containsLegacy(s) {
			return true
		}
	}
	return false
}

func (m ExpiredTokenMatcher) containsLegacy(s string) bool {
	s = strings.ToLower(s)
	for _, msg := range m.LegacyMessages {
		if msg != "" && strings.Contains(s, strings.ToLower(msg)) {
			return true
		}
	}
	return false
}
