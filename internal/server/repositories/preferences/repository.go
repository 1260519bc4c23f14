package preferences

import (
	"context"

	"github.com/avolkovs/vaultshare/internal/server/models"
)

// Repository stores per-user notification preferences. Users without a
// stored row read as models.DefaultPreferences.
type Repository interface {
	Get(ctx context.Context, username string) (*models.NotificationPreferences, error)
	Upsert(ctx context.Context, prefs *models.NotificationPreferences) error
}
