// Package notifications provides the PostgreSQL-backed repository for user
// notifications, with insert-time dedup over the unread unique index.
package notifications

import (
	"context"
	"fmt"

	"github.com/avolkovs/vaultshare/internal/common"
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

// Create inserts a notification, deduplicating against the partial unique
// index on unread (share_id, type, to_username) rows.
func (r *PostgresRepository) Create(ctx context.Context, n *models.Notification) (bool, error) {
	query := `
		INSERT INTO notifications (id, type, share_id, from_username, to_username,
			container_name, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
		ON CONFLICT (share_id, type, to_username) WHERE NOT read DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		n.ID, n.Type, n.ShareID, n.FromUsername, n.ToUsername,
		n.ContainerName, n.Message, n.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return affected == 1, nil
}

// ListByUser returns the addressee's notifications, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, username string, unreadOnly bool) ([]models.Notification, error) {
	query := `
		SELECT id, type, share_id, from_username, to_username, container_name, message, read, created_at
		FROM notifications
		WHERE to_username = $1
	`
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.ShareID, &n.FromUsername, &n.ToUsername,
			&n.ContainerName, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// MarkRead flips one notification owned by username. Marking an already-read
// notification is a no-op; only an unknown id or a foreign addressee yields
// common.ErrorNotFound.
func (r *PostgresRepository) MarkRead(ctx context.Context, id, username string) error {
	query := `UPDATE notifications SET read = true WHERE id = $1 AND to_username = $2`
	res, err := r.db.ExecContext(ctx, query, id, username)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// MarkAllRead flips every unread notification addressed to username.
func (r *PostgresRepository) MarkAllRead(ctx context.Context, username string) (int, error) {
	query := `UPDATE notifications SET read = true WHERE to_username = $1 AND NOT read`
	res, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return int(affected), nil
}
