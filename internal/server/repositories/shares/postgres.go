// Package shares provides the PostgreSQL-backed repository for share
// records, including the status-guarded updates the state machine relies on.
package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avolkovs/vaultshare/internal/common"
	"github.com/avolkovs/vaultshare/internal/dbx"
	"github.com/avolkovs/vaultshare/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const shareColumns = `id, container_id, container_name, owner_username, recipient_username,
		permissions, status, message, max_access, access_count, expires_at, last_accessed_at,
		created_at, updated_at`

// Create inserts a new record. A violation of the active-pair unique index
// maps to common.ErrShareAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, record *models.ShareRecord) error {
	query := `
		INSERT INTO shares (id, container_id, container_name, owner_username, recipient_username,
			permissions, status, message, max_access, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.ContainerID, record.ContainerName, record.OwnerUsername,
		record.RecipientUsername, joinPermissions(record.Permissions), record.Status,
		record.Message, record.MaxAccess, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrShareAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the record or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// ListByOwner returns all records created by owner, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string) ([]models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE owner_username = $1 ORDER BY created_at DESC`
	return r.scanMany(ctx, query, owner)
}

// ListByRecipient returns all records addressed to recipient, newest first.
func (r *PostgresRepository) ListByRecipient(ctx context.Context, recipient string) ([]models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE recipient_username = $1 ORDER BY created_at DESC`
	return r.scanMany(ctx, query, recipient)
}

// ListByIDs returns the records matching ids. Missing ids are simply absent
// from the result.
func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []string) ([]models.ShareRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	return r.scanMany(ctx, query, args...)
}

// UpdateStatus applies from → to. Zero rows affected means another writer
// got there first (or the id is gone) and yields common.ErrConflict.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to models.Status, now time.Time) error {
	query := `UPDATE shares SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	return r.guardedExec(ctx, query, to, now, id, from)
}

// UpdatePermissions replaces the permission set on a record still in status from.
func (r *PostgresRepository) UpdatePermissions(ctx context.Context, id string, from models.Status, perms []models.Permission, now time.Time) error {
	query := `UPDATE shares SET permissions = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	return r.guardedExec(ctx, query, joinPermissions(perms), now, id, from)
}

// UpdateExpiration moves the expiry on a record still in status from.
func (r *PostgresRepository) UpdateExpiration(ctx context.Context, id string, from models.Status, expiresAt time.Time, now time.Time) error {
	query := `UPDATE shares SET expires_at = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	return r.guardedExec(ctx, query, expiresAt, now, id, from)
}

// RecordAccess bumps the access counter. Only valid on ACCEPTED records;
// the guard keeps a concurrent revoke from losing the race silently.
func (r *PostgresRepository) RecordAccess(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE shares SET access_count = access_count + 1, last_accessed_at = $1, updated_at = $1
		WHERE id = $2 AND status = $3
	`
	return r.guardedExec(ctx, query, now, id, models.StatusAccepted)
}

// CountActiveByOwner counts the owner's non-terminal, non-expired records.
func (r *PostgresRepository) CountActiveByOwner(ctx context.Context, owner string, now time.Time) (int, error) {
	query := `
		SELECT count(*) FROM shares
		WHERE owner_username = $1 AND status IN ($2, $3)
			AND (expires_at IS NULL OR expires_at > $4)
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, owner, models.StatusPending, models.StatusAccepted, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// HasActivePair reports whether a non-terminal record already exists for
// (containerID, recipient).
func (r *PostgresRepository) HasActivePair(ctx context.Context, containerID, recipient string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM shares
			WHERE container_id = $1 AND recipient_username = $2 AND status IN ($3, $4)
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, containerID, recipient, models.StatusPending, models.StatusAccepted).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Stats aggregates dashboard counters for username in a single query.
func (r *PostgresRepository) Stats(ctx context.Context, username string, now time.Time) (*models.ShareStats, error) {
	query := `
		SELECT
			count(*) FILTER (WHERE owner_username = $1),
			count(*) FILTER (WHERE recipient_username = $1),
			count(*) FILTER (WHERE status = $2 AND (expires_at IS NULL OR expires_at > $3)),
			count(*) FILTER (WHERE status = $4 AND (expires_at IS NULL OR expires_at > $3))
		FROM shares
		WHERE owner_username = $1 OR recipient_username = $1
	`
	stats := &models.ShareStats{}
	err := r.db.QueryRowContext(ctx, query, username, models.StatusAccepted, now, models.StatusPending).
		Scan(&stats.TotalShared, &stats.TotalReceived, &stats.ActiveShares, &stats.PendingShares)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stats, nil
}

func (r *PostgresRepository) guardedExec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanOne(row rowScanner) (*models.ShareRecord, error) {
	record := &models.ShareRecord{}
	var perms string
	err := row.Scan(
		&record.ID, &record.ContainerID, &record.ContainerName, &record.OwnerUsername,
		&record.RecipientUsername, &perms, &record.Status, &record.Message, &record.MaxAccess,
		&record.AccessCount, &record.ExpiresAt, &record.LastAccessedAt,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	record.Permissions = splitPermissions(perms)
	return record, nil
}

func (r *PostgresRepository) scanMany(ctx context.Context, query string, args ...any) ([]models.ShareRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.ShareRecord
	for rows.Next() {
		record, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func joinPermissions(perms []models.Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func splitPermissions(s string) []models.Permission {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	perms := make([]models.Permission, len(parts))
	for i, p := range parts {
		perms[i] = models.Permission(p)
	}
	return perms
}
