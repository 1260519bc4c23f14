package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avolkovs/vaultshare/internal/common"
	"github.com/avolkovs/vaultshare/internal/dbx"
	"github.com/avolkovs/vaultshare/internal/logging"
	"github.com/avolkovs/vaultshare/internal/server/collab"
	sc "github.com/avolkovs/vaultshare/internal/server/config"
	"github.com/avolkovs/vaultshare/internal/server/models"
	"github.com/avolkovs/vaultshare/internal/server/repositories/audit"
	"github.com/avolkovs/vaultshare/internal/server/repositories/notifications"
	"github.com/avolkovs/vaultshare/internal/server/repositories/preferences"
	"github.com/avolkovs/vaultshare/internal/server/repositories/shares"
)

// In-memory fakes standing in for the PostgreSQL repositories. The fromStatus
// guards behave exactly like the SQL versions so transition semantics can be
// tested without a database.

type fakeShareRepo struct {
	mu      sync.Mutex
	records map[string]*models.ShareRecord
}

func newFakeShareRepo() *fakeShareRepo {
	return &fakeShareRepo{records: map[string]*models.ShareRecord{}}
}

func (f *fakeShareRepo) put(record *models.ShareRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *record
	f.records[record.ID] = &clone
}

func (f *fakeShareRepo) get(id string) *models.ShareRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[id]; ok {
		clone := *record
		return &clone
	}
	return nil
}

func (f *fakeShareRepo) Create(ctx context.Context, record *models.ShareRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.records {
		if existing.ContainerID == record.ContainerID &&
			existing.RecipientUsername == record.RecipientUsername &&
			!existing.Status.Terminal() {
			return common.ErrShareAlreadyExists
		}
	}
	clone := *record
	f.records[record.ID] = &clone
	return nil
}

func (f *fakeShareRepo) GetByID(ctx context.Context, id string) (*models.ShareRecord, error) {
	if record := f.get(id); record != nil {
		return record, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeShareRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.ShareRecord, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeShareRepo) ListByOwner(ctx context.Context, owner string) ([]models.ShareRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.ShareRecord
	for _, record := range f.records {
		if record.OwnerUsername == owner {
			result = append(result, *record)
		}
	}
	return result, nil
}

func (f *fakeShareRepo) ListByRecipient(ctx context.Context, recipient string) ([]models.ShareRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.ShareRecord
	for _, record := range f.records {
		if record.RecipientUsername == recipient {
			result = append(result, *record)
		}
	}
	return result, nil
}

func (f *fakeShareRepo) ListByIDs(ctx context.Context, ids []string) ([]models.ShareRecord, error) {
	var result []models.ShareRecord
	for _, id := range ids {
		if record := f.get(id); record != nil {
			result = append(result, *record)
		}
	}
	return result, nil
}

func (f *fakeShareRepo) UpdateStatus(ctx context.Context, id string, from, to models.Status, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok || record.Status != from {
		return common.ErrConflict
	}
	record.Status = to
	record.UpdatedAt = now
	return nil
}

func (f *fakeShareRepo) UpdatePermissions(ctx context.Context, id string, from models.Status, perms []models.Permission, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok || record.Status != from {
		return common.ErrConflict
	}
	record.Permissions = perms
	record.UpdatedAt = now
	return nil
}

func (f *fakeShareRepo) UpdateExpiration(ctx context.Context, id string, from models.Status, expiresAt time.Time, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok || record.Status != from {
		return common.ErrConflict
	}
	record.ExpiresAt = &expiresAt
	record.UpdatedAt = now
	return nil
}

func (f *fakeShareRepo) RecordAccess(ctx context.Context, id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok || record.Status != models.StatusAccepted {
		return common.ErrConflict
	}
	record.AccessCount++
	record.LastAccessedAt = &now
	record.UpdatedAt = now
	return nil
}

func (f *fakeShareRepo) CountActiveByOwner(ctx context.Context, owner string, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, record := range f.records {
		if record.OwnerUsername == owner && !record.Status.Terminal() &&
			(record.ExpiresAt == nil || record.ExpiresAt.After(now)) {
			n++
		}
	}
	return n, nil
}

func (f *fakeShareRepo) HasActivePair(ctx context.Context, containerID, recipient string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range f.records {
		if record.ContainerID == containerID && record.RecipientUsername == recipient &&
			!record.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeShareRepo) Stats(ctx context.Context, username string, now time.Time) (*models.ShareStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.ShareStats{}
	for _, record := range f.records {
		if record.OwnerUsername == username {
			stats.TotalShared++
		}
		if record.RecipientUsername == username {
			stats.TotalReceived++
		}
	}
	return stats, nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (f *fakeAuditRepo) Append(ctx context.Context, event *models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeAuditRepo) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AuditEvent(nil), f.events...), len(f.events), nil
}

func (f *fakeAuditRepo) TrailByShare(ctx context.Context, shareID string) ([]models.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.AuditEvent
	for _, event := range f.events {
		if event.ShareID == shareID {
			result = append(result, event)
		}
	}
	return result, nil
}

func (f *fakeAuditRepo) Summary(ctx context.Context, filter models.AuditFilter) (*models.AuditSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary := &models.AuditSummary{Counts: map[models.EventType]int{}}
	for _, event := range f.events {
		summary.Counts[event.Type]++
		summary.Total++
	}
	return summary, nil
}

func (f *fakeAuditRepo) byType(t models.EventType) []models.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.AuditEvent
	for _, event := range f.events {
		if event.Type == t {
			result = append(result, event)
		}
	}
	return result
}

type fakeNotificationRepo struct {
	mu    sync.Mutex
	items []models.Notification
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *models.Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.ShareID == n.ShareID && existing.Type == n.Type &&
			existing.ToUsername == n.ToUsername && !existing.Read {
			return false, nil
		}
	}
	f.items = append(f.items, *n)
	return true, nil
}

func (f *fakeNotificationRepo) ListByUser(ctx context.Context, username string, unreadOnly bool) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Notification
	for _, n := range f.items {
		if n.ToUsername == username && (!unreadOnly || !n.Read) {
			result = append(result, n)
		}
	}
	return result, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.items {
		if n.ID == id && n.ToUsername == username {
			f.items[i].Read = true
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, username string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for i, n := range f.items {
		if n.ToUsername == username && !n.Read {
			f.items[i].Read = true
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) forUser(username string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Notification
	for _, n := range f.items {
		if n.ToUsername == username {
			result = append(result, n)
		}
	}
	return result
}

type fakePreferencesRepo struct {
	mu    sync.Mutex
	saved map[string]models.NotificationPreferences
}

func newFakePreferencesRepo() *fakePreferencesRepo {
	return &fakePreferencesRepo{saved: map[string]models.NotificationPreferences{}}
}

func (f *fakePreferencesRepo) Get(ctx context.Context, username string) (*models.NotificationPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prefs, ok := f.saved[username]; ok {
		return &prefs, nil
	}
	defaults := models.DefaultPreferences(username)
	return &defaults, nil
}

func (f *fakePreferencesRepo) Upsert(ctx context.Context, prefs *models.NotificationPreferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[prefs.Username] = *prefs
	return nil
}

type fakeRepoManager struct {
	shareRepo *fakeShareRepo
	auditRepo *fakeAuditRepo
	notifRepo *fakeNotificationRepo
	prefsRepo *fakePreferencesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		shareRepo: newFakeShareRepo(),
		auditRepo: &fakeAuditRepo{},
		notifRepo: &fakeNotificationRepo{},
		prefsRepo: newFakePreferencesRepo(),
	}
}

func (m *fakeRepoManager) Shares(db dbx.DBTX) shares.Repository                 { return m.shareRepo }
func (m *fakeRepoManager) Audit(db dbx.DBTX) audit.Repository                   { return m.auditRepo }
func (m *fakeRepoManager) Notifications(db dbx.DBTX) notifications.Repository   { return m.notifRepo }
func (m *fakeRepoManager) Preferences(db dbx.DBTX) preferences.Repository       { return m.prefsRepo }
func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error  { return nil }

type fakeContainers struct {
	info         *collab.ContainerInfo
	authorizeErr error
	lookupErr    error
}

func (f *fakeContainers) Authorize(ctx context.Context, containerID, username string) (*collab.ContainerInfo, error) {
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	return f.info, nil
}

func (f *fakeContainers) Lookup(ctx context.Context, containerID string) (*collab.ContainerInfo, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.info, nil
}

type fakeDirectory struct {
	users   map[string]bool
	matches []models.User
}

func (f *fakeDirectory) Exists(ctx context.Context, username string) (bool, error) {
	return f.users[username], nil
}

func (f *fakeDirectory) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	return f.matches, nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	items []models.Notification
}

func (f *fakeDispatcher) Enqueue(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeDelivery struct {
	mu       sync.Mutex
	failures int
	sent     []collab.DeliveryMessage
}

func (f *fakeDelivery) Send(ctx context.Context, msg collab.DeliveryMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeDelivery) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig() *sc.Config {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	cfg.DispatchRetryBase = time.Millisecond
	cfg.DispatchMaxRetries = 3
	return cfg
}

type shareServiceEnv struct {
	service    *ShareService
	manager    *fakeRepoManager
	containers *fakeContainers
	directory  *fakeDirectory
	dispatcher *fakeDispatcher
	config     *sc.Config
	mock       sqlmock.Sqlmock
	db         *sql.DB
	now        time.Time
}

func newShareServiceEnv(t *testing.T) *shareServiceEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)

	manager := newFakeRepoManager()
	containers := &fakeContainers{info: &collab.ContainerInfo{ID: "c-1", Name: "vault"}}
	directory := &fakeDirectory{users: map[string]bool{"alice": true, "bob": true}}
	dispatcher := &fakeDispatcher{}
	cfg := testConfig()

	service := NewShareService(db, manager, containers, directory, dispatcher, cfg, testLogger())
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	return &shareServiceEnv{
		service:    service,
		manager:    manager,
		containers: containers,
		directory:  directory,
		dispatcher: dispatcher,
		config:     cfg,
		mock:       mock,
		db:         db,
		now:        now,
	}
}

// expectTx queues n transaction begin expectations; commits and rollbacks
// are matched loosely since fakes decide the outcome.
func (e *shareServiceEnv) expectTx(commits, rollbacks int) {
	for i := 0; i < commits; i++ {
		e.mock.ExpectBegin()
		e.mock.ExpectCommit()
	}
	for i := 0; i < rollbacks; i++ {
		e.mock.ExpectBegin()
		e.mock.ExpectRollback()
	}
}

func (e *shareServiceEnv) seedShare(t *testing.T, status models.Status, expiresAt *time.Time) *models.ShareRecord {
	t.Helper()
	record := &models.ShareRecord{
		ID:                "s-1",
		ContainerID:       "c-1",
		ContainerName:     "vault",
		OwnerUsername:     "alice",
		RecipientUsername: "bob",
		Permissions:       []models.Permission{models.PermissionRead},
		Status:            status,
		ExpiresAt:         expiresAt,
		CreatedAt:         e.now.Add(-time.Hour),
		UpdatedAt:         e.now.Add(-time.Hour),
	}
	e.manager.shareRepo.put(record)
	return record
}

var (
	alice = Identity{UserID: "u-alice", Username: "alice"}
	bob   = Identity{UserID: "u-bob", Username: "bob"}
	eve   = Identity{UserID: "u-eve", Username: "eve"}
)
