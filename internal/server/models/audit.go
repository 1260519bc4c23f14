package models

import "time"

// EventType enumerates auditable share lifecycle events.
type EventType string

const (
	EventCreated            EventType = "CREATED"
	EventAccepted           EventType = "ACCEPTED"
	EventDeclined           EventType = "DECLINED"
	EventRevoked            EventType = "REVOKED"
	EventExpired            EventType = "EXPIRED"
	EventAccessed           EventType = "ACCESSED"
	EventPermissionUpdated  EventType = "PERMISSION_UPDATED"
	EventExpirationExtended EventType = "EXPIRATION_EXTENDED"
)

// AuditEvent is one immutable entry of the append-only audit log. Events
// outlive the share they describe; revoking or declining a share never
// removes its trail.
type AuditEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	ShareID       string            `json:"share_id"`
	ActorUserID   string            `json:"actor_user_id"`
	ActorUsername string            `json:"actor_username"`
	ContainerID   string            `json:"container_id"`
	ContainerName string            `json:"container_name"`
	Details       map[string]string `json:"details,omitempty"`
	ClientMeta    map[string]string `json:"client_meta,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// AuditFilter selects events for queries and summaries. StartDate/EndDate
// bound a half-open [StartDate, EndDate) range. Zero values mean "any".
type AuditFilter struct {
	ShareID     string
	ContainerID string
	UserID      string
	EventType   EventType
	StartDate   time.Time
	EndDate     time.Time
	Limit       int
	Offset      int
}

// AuditSummary holds per-event-type counts over a date range.
type AuditSummary struct {
	Counts map[EventType]int `json:"counts"`
	Total  int               `json:"total"`
}
