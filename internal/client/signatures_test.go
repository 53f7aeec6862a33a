package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpiredTokenMatcher(t *testing.T) {
	m := DefaultExpiredTokenMatcher()
	strict := DefaultExpiredTokenMatcher()
	strict.LegacyMessageMatch = false

	tests := []struct {
		name       string
		body       string
		want       bool
		wantStrict bool
	}{
		{"stable code", `{"code":"J004"}`, true, true},
		{"stable code lower case", `{"code":"j004","message":"whatever"}`, true, true},
		{"code nested in data", `{"data":{"code":"J004"}}`, true, true},
		{"legacy message", `{"message":"Access token expired"}`, true, false},
		{"legacy error field", `{"error":"JWT expired at 2024-01-01"}`, true, false},
		{"missing token", `{"message":"Access token is missing"}`, true, false},
		{"plain text", `token expired`, true, false},
		{"other code", `{"code":"A001","message":"invalid credentials"}`, false, false},
		{"numeric code", `{"code":401,"message":"unauthorized"}`, false, false},
		{"empty", ``, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches([]byte(tt.body)))
			assert.Equal(t, tt.wantStrict, strict.Matches([]byte(tt.body)))
		})
	}
}

func TestExpiredTokenMatcher_CustomCodes(t *testing.T) {
	m := ExpiredTokenMatcher{Codes: []string{"AUTH_EXPIRED", "4011"}}
	assert.True(t, m.Matches([]byte(`{"code":"AUTH_EXPIRED"}`)))
	assert.True(t, m.Matches([]byte(`{"code":4011}`)))
	assert.False(t, m.Matches([]byte(`{"code":"J004"}`)))
}
