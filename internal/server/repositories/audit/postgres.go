// Package audit provides the PostgreSQL-backed repository for the
// append-only audit log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

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

const eventColumns = `id, event_type, share_id, actor_user_id, actor_username,
		container_id, container_name, details, client_meta, created_at`

// Append inserts one immutable event.
func (r *PostgresRepository) Append(ctx context.Context, event *models.AuditEvent) error {
	details, err := marshalMeta(event.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	clientMeta, err := marshalMeta(event.ClientMeta)
	if err != nil {
		return fmt.Errorf("marshal client meta: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, event_type, share_id, actor_user_id, actor_username,
			container_id, container_name, details, client_meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.db.ExecContext(ctx, query,
		event.ID, event.Type, event.ShareID, event.ActorUserID, event.ActorUsername,
		event.ContainerID, event.ContainerName, details, clientMeta, event.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Query returns matching events plus the pre-pagination total. Results come
// newest first, except when the filter names a share: that is a trail read,
// and trails are always in ascending creation order.
func (r *PostgresRepository) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error) {
	where, args := buildWhere(filter)

	var total int
	countQuery := `SELECT count(*) FROM audit_events` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	order := "DESC"
	if filter.ShareID != "" {
		order = "ASC"
	}
	query := `SELECT ` + eventColumns + ` FROM audit_events` + where +
		fmt.Sprintf(` ORDER BY created_at %s LIMIT $%d OFFSET $%d`, order, len(args)+1, len(args)+2)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	events, err := r.scanMany(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// TrailByShare returns the share's full trail in ascending creation order.
func (r *PostgresRepository) TrailByShare(ctx context.Context, shareID string) ([]models.AuditEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE share_id = $1 ORDER BY created_at ASC`
	return r.scanMany(ctx, query, shareID)
}

// Summary aggregates per-type counts for the filtered range.
func (r *PostgresRepository) Summary(ctx context.Context, filter models.AuditFilter) (*models.AuditSummary, error) {
	where, args := buildWhere(filter)
	query := `SELECT event_type, count(*) FROM audit_events` + where + ` GROUP BY event_type`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	summary := &models.AuditSummary{Counts: map[models.EventType]int{}}
	for rows.Next() {
		var eventType models.EventType
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		summary.Counts[eventType] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return summary, nil
}

func buildWhere(filter models.AuditFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ShareID != "" {
		add("share_id = $%d", filter.ShareID)
	}
	if filter.ContainerID != "" {
		add("container_id = $%d", filter.ContainerID)
	}
	if filter.UserID != "" {
		add("actor_user_id = $%d", filter.UserID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", filter.EventType)
	}
	// half-open [StartDate, EndDate)
	if !filter.StartDate.IsZero() {
		add("created_at >= $%d", filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		add("created_at < $%d", filter.EndDate)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *PostgresRepository) scanMany(ctx context.Context, query string, args ...any) ([]models.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.AuditEvent
	for rows.Next() {
		var event models.AuditEvent
		var details, clientMeta []byte
		if err := rows.Scan(
			&event.ID, &event.Type, &event.ShareID, &event.ActorUserID, &event.ActorUsername,
			&event.ContainerID, &event.ContainerName, &details, &clientMeta, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if err := unmarshalMeta(details, &event.Details); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
		if err := unmarshalMeta(clientMeta, &event.ClientMeta); err != nil {
			return nil, fmt.Errorf("unmarshal client meta: %w", err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func marshalMeta(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMeta(b []byte, dst *map[string]string) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
