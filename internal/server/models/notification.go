package models

import "time"

// NotificationType enumerates user-facing lifecycle notifications.
type NotificationType string

const (
	NotificationShareCreated  NotificationType = "share-created"
	NotificationShareAccepted NotificationType = "share-accepted"
	NotificationShareDeclined NotificationType = "share-declined"
	NotificationShareRevoked  NotificationType = "share-revoked"
	NotificationShareExpired  NotificationType = "share-expired"
)

// Notification is a single message addressed to one user. The read flag is
// owned exclusively by the addressee.
type Notification struct {
	ID            string           `json:"id"`
	Type          NotificationType `json:"type"`
	ShareID       string           `json:"share_id"`
	FromUsername  string           `json:"from_username"`
	ToUsername    string           `json:"to_username"`
	ContainerName string           `json:"container_name"`
	Message       string           `json:"message,omitempty"`
	Read          bool             `json:"read"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NotificationPreferences is a per-user singleton gating notification
// creation (per lifecycle category) and delivery (per channel). A user
// without a stored row gets DefaultPreferences.
type NotificationPreferences struct {
	Username     string `json:"username"`
	OnCreated    bool   `json:"on_created"`
	OnAccepted   bool   `json:"on_accepted"`
	OnDeclined   bool   `json:"on_declined"`
	OnRevoked    bool   `json:"on_revoked"`
	OnExpired    bool   `json:"on_expired"`
	PushEnabled  bool   `json:"push_enabled"`
	EmailEnabled bool   `json:"email_enabled"`
}

// DefaultPreferences returns the all-enabled defaults for username.
func DefaultPreferences(username string) NotificationPreferences {
	return NotificationPreferences{
		Username:     username,
		OnCreated:    true,
		OnAccepted:   true,
		OnDeclined:   true,
		OnRevoked:    true,
		OnExpired:    true,
		PushEnabled:  true,
		EmailEnabled: true,
	}
}

// Allows reports whether the per-category toggle permits creating a
// notification of type t. Channel toggles are evaluated later by the
// delivery collaborator, not here.
func (p NotificationPreferences) Allows(t NotificationType) bool {
	switch t {
	case NotificationShareCreated:
		return p.OnCreated
	case NotificationShareAccepted:
		return p.OnAccepted
	case NotificationShareDeclined:
		return p.OnDeclined
	case NotificationShareRevoked:
		return p.OnRevoked
	case NotificationShareExpired:
		return p.OnExpired
	default:
		return false
	}
}

// PreferencesUpdate is a partial update; nil fields keep stored values.
type PreferencesUpdate struct {
	OnCreated    *bool `json:"on_created,omitempty"`
	OnAccepted   *bool `json:"on_accepted,omitempty"`
	OnDeclined   *bool `json:"on_declined,omitempty"`
	OnRevoked    *bool `json:"on_revoked,omitempty"`
	OnExpired    *bool `json:"on_expired,omitempty"`
	PushEnabled  *bool `json:"push_enabled,omitempty"`
	EmailEnabled *bool `json:"email_enabled,omitempty"`
}

// Apply overlays non-nil fields of u onto p.
func (p NotificationPreferences) Apply(u PreferencesUpdate) NotificationPreferences {
	if u.OnCreated != nil {
		p.OnCreated = *u.OnCreated
	}
	if u.OnAccepted != nil {
		p.OnAccepted = *u.OnAccepted
	}
	if u.OnDeclined != nil {
		p.OnDeclined = *u.OnDeclined
	}
	if u.OnRevoked != nil {
		p.OnRevoked = *u.OnRevoked
	}
	if u.OnExpired != nil {
		p.OnExpired = *u.OnExpired
	}
	if u.PushEnabled != nil {
		p.PushEnabled = *u.PushEnabled
	}
	if u.EmailEnabled != nil {
		p.EmailEnabled = *u.EmailEnabled
	}
	return p
}
