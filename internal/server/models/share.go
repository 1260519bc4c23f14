package models

import (
	"sort"
	"time"

	"github.com/avolkovs/vaultshare/internal/common"
)

// Status is the stored lifecycle state of a share.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
	StatusRevoked  Status = "REVOKED"
	StatusExpired  Status = "EXPIRED"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusDeclined || s == StatusRevoked || s == StatusExpired
}

// Permission is a single capability attached to a share.
type Permission string

const (
	PermissionRead  Permission = "READ"
	PermissionWrite Permission = "WRITE"
	PermissionShare Permission = "SHARE"
)

// NormalizePermissions validates and canonicalizes a permission list:
// the set must be non-empty and contain only known tokens. Duplicates are
// collapsed and the result is sorted so set equality survives storage
// round-trips.
func NormalizePermissions(perms []Permission) ([]Permission, error) {
	if len(perms) == 0 {
		return nil, common.ErrInvalidPermissions
	}
	seen := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		switch p {
		case PermissionRead, PermissionWrite, PermissionShare:
			seen[p] = struct{}{}
		default:
			return nil, common.ErrInvalidPermissions
		}
	}
	out := make([]Permission, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ShareRecord is the canonical stored form of a grant. Owner and recipient
// views are projections of this one record.
type ShareRecord struct {
	ID                string       `json:"id"`
	ContainerID       string       `json:"container_id"`
	ContainerName     string       `json:"container_name"`
	OwnerUsername     string       `json:"owner_username"`
	RecipientUsername string       `json:"recipient_username"`
	Permissions       []Permission `json:"permissions"`
	Status            Status       `json:"status"`
	Message           string       `json:"message,omitempty"`
	MaxAccess         *int         `json:"max_access,omitempty"`
	AccessCount       int          `json:"access_count"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
	LastAccessedAt    *time.Time   `json:"last_accessed_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// EffectiveStatus derives the status a reader must see at instant now.
// A PENDING or ACCEPTED record whose expiry has passed reads as EXPIRED;
// every other combination reads as the stored status. All read paths apply
// this identically; there is no background sweep.
func EffectiveStatus(stored Status, expiresAt *time.Time, now time.Time) Status {
	if stored != StatusPending && stored != StatusAccepted {
		return stored
	}
	if expiresAt == nil {
		return stored
	}
	if !expiresAt.After(now) {
		return StatusExpired
	}
	return stored
}

// Effective returns a copy of r with Status replaced by its effective value
// at now.
func (r ShareRecord) Effective(now time.Time) ShareRecord {
	r.Status = EffectiveStatus(r.Status, r.ExpiresAt, now)
	return r
}

// ShareStats summarizes a user's shares for the dashboard.
type ShareStats struct {
	TotalShared   int `json:"total_shared"`
	TotalReceived int `json:"total_received"`
	ActiveShares  int `json:"active_shares"`
	PendingShares int `json:"pending_shares"`
}

// ShareStatusUpdate is one entry of a status-poll response.
type ShareStatusUpdate struct {
	Status       Status     `json:"status"`
	LastActivity time.Time  `json:"last_activity"`
	AccessCount  int        `json:"access_count"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}
