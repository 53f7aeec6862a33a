package messaging

import (
	"time"

	"github.com/google/uuid"
)

// EventType - тип события сессии.
type EventType string

const (
	// EventSessionRefreshed - session-check выдал новый access-токен.
	EventSessionRefreshed EventType = "session.refreshed"
	// EventSessionRefreshExpired - refresh-кука отклонена бэкендом.
	EventSessionRefreshExpired EventType = "session.refresh_expired"
	// EventAccessForbidden - не-админ пришёл на админский путь.
	EventAccessForbidden EventType = "access.forbidden"
)

// SessionEvent - сообщение в очередь событий сессии.
type SessionEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	UserID     uint64    `json:"user_id,omitempty"`
	Path       string    `json:"path,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewSessionEvent заполняет ID и время.
func NewSessionEvent(eventType EventType, userID uint64, path string) SessionEvent {
	return SessionEvent{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		Path:       path,
		OccurredAt: time.Now().UTC(),
	}
}
