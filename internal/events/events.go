// Package events carries identity state changes to downstream services.
// Delivery is best effort: publishers log and count failures, they never
// fail the mutation that produced the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"elibrary-users/internal/identity/models"
)

// Type tags a user event for consumers.
type Type string

const (
	TypeUserRegistered    Type = "USER_REGISTERED"
	TypeUserRoleChanged   Type = "USER_ROLE_CHANGED"
	TypeUserStatusChanged Type = "USER_STATUS_CHANGED"
	TypeUserDeleted       Type = "USER_DELETED"

	// Lifecycle notifications, emitted only when lifecycle notify is on.
	TypeAccountExpired       Type = "ACCOUNT_EXPIRED"
	TypeAccountExpiryWarning Type = "ACCOUNT_EXPIRY_WARNING"
	TypeAccountPurged        Type = "ACCOUNT_PURGED"
)

// UserEvent is the record published on the user-events topic.
type UserEvent struct {
	EventID   string    `json:"event_id"`
	EventType Type      `json:"event_type"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserEvent builds an event about identity with a fresh event id.
func NewUserEvent(eventType Type, identity *models.Identity, message string, now time.Time) UserEvent {
	return UserEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		UserID:    identity.ID.String(),
		Email:     identity.Email,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Message:   message,
		Timestamp: now,
	}
}

// Publisher hands events to the bus. A returned error means the event was
// not accepted for delivery; delivery failures after acceptance are only
// logged.
type Publisher interface {
	Publish(ctx context.Context, event UserEvent) error
}
