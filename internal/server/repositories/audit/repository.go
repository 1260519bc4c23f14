package audit

import (
	"context"

	"github.com/avolkovs/vaultshare/internal/server/models"
)

// Repository is the append-only storage contract for audit events. There is
// no update or delete path; events outlive the shares they describe.
type Repository interface {
	Append(ctx context.Context, event *models.AuditEvent) error
	// Query returns a page of events matching filter plus the total count
	// before pagination, newest first.
	Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error)
	// TrailByShare returns all events for one share in ascending creation
	// order. Reordering is never permitted.
	TrailByShare(ctx context.Context, shareID string) ([]models.AuditEvent, error)
	// Summary aggregates per-event-type counts over filter's date range.
	Summary(ctx context.Context, filter models.AuditFilter) (*models.AuditSummary, error)
}
