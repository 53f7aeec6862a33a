package models

import "errors"

// Ошибки, общие для edge-сервиса и клиента.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// Access token
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMissing   = errors.New("token is missing")

	// Refresh flow
	// ErrRefreshTokenInvalid - refresh-кука недействительна или истекла, нужен полный логаут.
	// Эту ошибку нельзя глотать по дороге: её ждёт Session Synchronizer.
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid or expired")
	// ErrRefreshUnavailable - временный сбой обновления (сеть, 5xx, кривой ответ).
	ErrRefreshUnavailable = errors.New("access token refresh unavailable")
	// ErrAccessTokenRefreshFailed - реактивное обновление не удалось, исходный запрос прерван.
	ErrAccessTokenRefreshFailed = errors.New("access token refresh failed")
	// ErrRefreshTokenExpired - session-check сообщил REFRESH_TOKEN_EXPIRED.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrNoRefreshToken - refresh-куки нет вовсе.
	ErrNoRefreshToken = errors.New("no refresh token available")

	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInvalidProfile     = errors.New("invalid user profile")
)
