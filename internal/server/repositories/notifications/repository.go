package notifications

import (
	"context"

	"github.com/avolkovs/vaultshare/internal/server/models"
)

// Repository is the storage contract for user notifications. Read-state
// mutations are scoped by addressee so one user can never touch another's
// notifications.
type Repository interface {
	// Create inserts a notification. It reports false without error when an
	// unread notification for the same (share, type, addressee) already
	// exists, which makes repeated dispatch attempts idempotent.
	Create(ctx context.Context, notification *models.Notification) (bool, error)
	ListByUser(ctx context.Context, username string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, username string) error
	// MarkAllRead returns the number of notifications flipped.
	MarkAllRead(ctx context.Context, username string) (int, error)
}
