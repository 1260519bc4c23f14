package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avolkovs/vaultshare/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func eventRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "event_type", "share_id", "actor_user_id",
		"actor_username", "container_id", "container_name", "details", "client_meta", "created_at"})
	for _, id := range ids {
		rows.AddRow(id, "CREATED", "s-1", "u-1", "alice", "c-1", "vault",
			[]byte(`{"permissions":"READ"}`), nil, time.Now())
	}
	return rows
}

func TestAppend(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+audit_events`).
		WithArgs("e-1", models.EventCreated, "s-1", "u-1", "alice", "c-1", "vault",
			[]byte(`{"permissions":"READ"}`), nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), &models.AuditEvent{
		ID:            "e-1",
		Type:          models.EventCreated,
		ShareID:       "s-1",
		ActorUserID:   "u-1",
		ActorUsername: "alice",
		ContainerID:   "c-1",
		ContainerName: "vault",
		Details:       map[string]string{"permissions": "READ"},
		CreatedAt:     now,
	})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
}

func TestQuery_FilterAndPagination(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+count\(\*\)\s+FROM\s+audit_events\s+WHERE\s+share_id\s*=\s*\$1\s*$`).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+audit_events\s+WHERE\s+share_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+ASC\s+LIMIT\s+\$2\s+OFFSET\s+\$3\s*$`).
		WithArgs("s-1", 10, 5).
		WillReturnRows(eventRows("e-1", "e-2"))

	events, total, err := repo.Query(context.Background(), models.AuditFilter{
		ShareID: "s-1",
		Limit:   10,
		Offset:  5,
	})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if total != 12 {
		t.Fatalf("want total 12, got %d", total)
	}
	if len(events) != 2 || events[0].Details["permissions"] != "READ" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestQuery_DefaultLimit(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+count\(\*\)\s+FROM\s+audit_events\s*$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+audit_events\s+ORDER\s+BY`).
		WithArgs(50, 0).
		WillReturnRows(eventRows())

	if _, _, err := repo.Query(context.Background(), models.AuditFilter{}); err != nil {
		t.Fatalf("Query error: %v", err)
	}
}

func TestQuery_NewestFirstWithoutShareFilter(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+count\(\*\)\s+FROM\s+audit_events\s+WHERE\s+actor_user_id\s*=\s*\$1\s*$`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+audit_events\s+WHERE\s+actor_user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$2\s+OFFSET\s+\$3\s*$`).
		WithArgs("u-1", 50, 0).
		WillReturnRows(eventRows("e-2", "e-1"))

	if _, _, err := repo.Query(context.Background(), models.AuditFilter{UserID: "u-1"}); err != nil {
		t.Fatalf("Query error: %v", err)
	}
}

func TestTrailByShare_AscendingOrder(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+audit_events\s+WHERE\s+share_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+ASC\s*$`).
		WithArgs("s-1").
		WillReturnRows(eventRows("e-1", "e-2", "e-3"))

	events, err := repo.TrailByShare(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("TrailByShare error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("want 3 events, got %d", len(events))
	}
}

func TestSummary(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"event_type", "count"}).
		AddRow("CREATED", 7).
		AddRow("REVOKED", 2)

	mock.ExpectQuery(`(?s)^SELECT\s+event_type,\s*count\(\*\)\s+FROM\s+audit_events\s+WHERE\s+created_at\s*>=\s*\$1\s+AND\s+created_at\s*<\s*\$2\s+GROUP\s+BY\s+event_type\s*$`).
		WithArgs(start, end).
		WillReturnRows(rows)

	summary, err := repo.Summary(context.Background(), models.AuditFilter{StartDate: start, EndDate: end})
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	if summary.Total != 9 || summary.Counts[models.EventCreated] != 7 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
