package models

// Коды ошибок в ответах бэкенда и session-check.
const (
	// CodeAccessTokenExpired - стабильный код бэкенда "access token истёк".
	CodeAccessTokenExpired = "J004"
	// CodeRefreshTokenExpired - ответ session-check, когда refresh-кука протухла.
	CodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
)

// APIResponse - конверт ответов бэкенда: { "data": ... } либо { "code", "message" }.
type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReissueData - полезная нагрузка POST /api/auth/reissue.
type ReissueData struct {
	Authorization string `json:"authorization"`
}

// APIError - тело ошибки бэкенда. Форма не всегда одинаковая,
// поэтому error тоже разбираем.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// SessionCheckResponse - ответ POST /api/auth/session-check.
type SessionCheckResponse struct {
	Success       bool         `json:"success"`
	Code          string       `json:"code,omitempty"`
	Message       string       `json:"message,omitempty"`
	Authorization string       `json:"authorization,omitempty"`
	UserProfile   *UserProfile `json:"userProfile,omitempty"`
}
