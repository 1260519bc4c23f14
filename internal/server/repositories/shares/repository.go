package shares

import (
	"context"
	"time"

	"github.com/avolkovs/vaultshare/internal/server/models"
)

// Repository is the storage contract for share records. Mutating methods
// with a fromStatus guard return common.ErrConflict when the guard misses,
// which gives transitions their at-most-one-winner semantics.
type Repository interface {
	Create(ctx context.Context, record *models.ShareRecord) error
	GetByID(ctx context.Context, id string) (*models.ShareRecord, error)
	// GetByIDForUpdate locks the row for the current transaction. Must be
	// called on a transactional DBTX.
	GetByIDForUpdate(ctx context.Context, id string) (*models.ShareRecord, error)
	ListByOwner(ctx context.Context, owner string) ([]models.ShareRecord, error)
	ListByRecipient(ctx context.Context, recipient string) ([]models.ShareRecord, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.ShareRecord, error)
	UpdateStatus(ctx context.Context, id string, from, to models.Status, now time.Time) error
	UpdatePermissions(ctx context.Context, id string, from models.Status, perms []models.Permission, now time.Time) error
	UpdateExpiration(ctx context.Context, id string, from models.Status, expiresAt time.Time, now time.Time) error
	RecordAccess(ctx context.Context, id string, now time.Time) error
	CountActiveByOwner(ctx context.Context, owner string, now time.Time) (int, error)
	HasActivePair(ctx context.Context, containerID, recipient string) (bool, error)
	Stats(ctx context.Context, username string, now time.Time) (*models.ShareStats, error)
}
