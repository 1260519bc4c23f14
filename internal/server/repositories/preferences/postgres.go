// Package preferences provides the PostgreSQL-backed repository for
// notification preferences.
package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avolkovs/vaultshare/internal/dbx"
	"github.com/avolkovs/vaultshare/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the stored preferences, or the all-enabled defaults when the
// user has never saved any.
func (r *PostgresRepository) Get(ctx context.Context, username string) (*models.NotificationPreferences, error) {
	query := `
		SELECT username, on_created, on_accepted, on_declined, on_revoked, on_expired,
			push_enabled, email_enabled
		FROM notification_preferences
		WHERE username = $1
	`
	prefs := &models.NotificationPreferences{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&prefs.Username, &prefs.OnCreated, &prefs.OnAccepted, &prefs.OnDeclined,
		&prefs.OnRevoked, &prefs.OnExpired, &prefs.PushEnabled, &prefs.EmailEnabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			defaults := models.DefaultPreferences(username)
			return &defaults, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return prefs, nil
}

// Upsert writes the full preference row for prefs.Username.
func (r *PostgresRepository) Upsert(ctx context.Context, prefs *models.NotificationPreferences) error {
	query := `
		INSERT INTO notification_preferences (username, on_created, on_accepted, on_declined,
			on_revoked, on_expired, push_enabled, email_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (username)
		DO UPDATE SET
			on_created = EXCLUDED.on_created,
			on_accepted = EXCLUDED.on_accepted,
			on_declined = EXCLUDED.on_declined,
			on_revoked = EXCLUDED.on_revoked,
			on_expired = EXCLUDED.on_expired,
			push_enabled = EXCLUDED.push_enabled,
			email_enabled = EXCLUDED.email_enabled
	`
	if _, err := r.db.ExecContext(ctx, query,
		prefs.Username, prefs.OnCreated, prefs.OnAccepted, prefs.OnDeclined,
		prefs.OnRevoked, prefs.OnExpired, prefs.PushEnabled, prefs.EmailEnabled); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
