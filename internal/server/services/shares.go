// Package services contains the server-side business logic: the share state
// machine, the bulk coordinator, audit queries and export, and notification
// handling.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avolkovs/vaultshare/internal/common"
	"github.com/avolkovs/vaultshare/internal/dbx"
	"github.com/avolkovs/vaultshare/internal/logging"
	"github.com/avolkovs/vaultshare/internal/server/collab"
	"github.com/avolkovs/vaultshare/internal/server/config"
	"github.com/avolkovs/vaultshare/internal/server/models"
	"github.com/avolkovs/vaultshare/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Identity is the authenticated caller, extracted from the access token by
// the HTTP layer. It is never taken from request bodies.
type Identity struct {
	UserID   string
	Username string
}

// Dispatcher hands freshly committed notifications to the asynchronous
// delivery worker. Enqueue must not block the request path.
type Dispatcher interface {
	Enqueue(n models.Notification)
}

// CreateShareRequest carries the owner's parameters for a new grant.
type CreateShareRequest struct {
	ContainerID       string
	RecipientUsername string
	Permissions       []models.Permission
	ExpiresAt         *time.Time
	Message           string
	MaxAccess         *int
	ClientMeta        map[string]string
}

// ShareService implements the share registry and its state machine. Every
// successful transition commits exactly one audit event and at most one
// notification in the same transaction as the status change.
type ShareService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	containers  collab.Containers
	directory   collab.Directory
	dispatcher  Dispatcher
	config      *config.Config
	logger      logging.Logger

	now func() time.Time
}

// NewShareService constructs a ShareService.
func NewShareService(db *sql.DB, m repomanager.RepositoryManager, containers collab.Containers,
	directory collab.Directory, dispatcher Dispatcher, cfg *config.Config, logger logging.Logger) *ShareService {
	return &ShareService{
		db:          db,
		repomanager: m,
		containers:  containers,
		directory:   directory,
		dispatcher:  dispatcher,
		config:      cfg,
		logger:      logger.With("module", "share_service"),
		now:         time.Now,
	}
}

// Create makes a new PENDING grant from actor to req.RecipientUsername.
func (s *ShareService) Create(ctx context.Context, actor Identity, req CreateShareRequest) (*models.ShareRecord, error) {
	if !s.config.SharingEnabled {
		return nil, common.ErrSharingDisabled
	}

	perms, err := models.NormalizePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("expiry must be in the future: %w", common.ErrInvalidPermissions)
	}
	if req.MaxAccess != nil && *req.MaxAccess <= 0 {
		return nil, fmt.Errorf("max access must be positive: %w", common.ErrInvalidPermissions)
	}
	if req.RecipientUsername == actor.Username {
		return nil, fmt.Errorf("cannot share with yourself: %w", common.ErrInvalidPermissions)
	}

	// The single synchronous collaborator check per mutating call.
	container, err := s.containers.Authorize(ctx, req.ContainerID, actor.Username)
	if err != nil {
		return nil, err
	}

	exists, err := s.directory.Exists(ctx, req.RecipientUsername)
	if err != nil {
		return nil, fmt.Errorf("recipient lookup: %w", err)
	}
	if !exists {
		return nil, common.ErrUserNotFound
	}

	record := &models.ShareRecord{
		ID:                uuid.New().String(),
		ContainerID:       container.ID,
		ContainerName:     container.Name,
		OwnerUsername:     actor.Username,
		RecipientUsername: req.RecipientUsername,
		Permissions:       perms,
		Status:            models.StatusPending,
		Message:           req.Message,
		MaxAccess:         req.MaxAccess,
		ExpiresAt:         req.ExpiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var queued []models.Notification
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Shares(tx)

		active, err := repo.CountActiveByOwner(ctx, actor.Username, now)
		if err != nil {
			return err
		}
		if active >= s.config.MaxActiveShares {
			return common.ErrShareLimitExceeded
		}

		duplicate, err := repo.HasActivePair(ctx, record.ContainerID, record.RecipientUsername)
		if err != nil {
			return err
		}
		if duplicate {
			return common.ErrShareAlreadyExists
		}

		// The partial unique index backstops the check above under races.
		if err := repo.Create(ctx, record); err != nil {
			return err
		}

		if err := s.appendAudit(ctx, tx, record, actor, models.EventCreated, map[string]string{
			"permissions": permissionsString(perms),
		}, req.ClientMeta, now); err != nil {
			return err
		}

		queued, err = s.notify(ctx, tx, record, models.NotificationShareCreated, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.enqueue(queued)
	s.logger.Info(ctx, "share created", "share_id", record.ID, "container_id", record.ContainerID,
		"owner", record.OwnerUsername, "recipient", record.RecipientUsername)
	return record, nil
}

// Accept moves a PENDING grant to ACCEPTED. Only the recipient may accept.
func (s *ShareService) Accept(ctx context.Context, actor Identity, shareID string) error {
	return s.transition(ctx, actor, shareID, models.StatusAccepted)
}

// Decline moves a PENDING grant to DECLINED. Only the recipient may decline.
func (s *ShareService) Decline(ctx context.Context, actor Identity, shareID string) error {
	return s.transition(ctx, actor, shareID, models.StatusDeclined)
}

// Revoke moves a PENDING or ACCEPTED grant to REVOKED. Only the owner may
// revoke. The record persists in its terminal status for audit queries.
func (s *ShareService) Revoke(ctx context.Context, actor Identity, shareID string) error {
	return s.transition(ctx, actor, shareID, models.StatusRevoked)
}

func (s *ShareService) transition(ctx context.Context, actor Identity, shareID string, target models.Status) error {
	if !s.config.SharingEnabled {
		return common.ErrSharingDisabled
	}
	now := s.now()

	var expired bool
	var queued []models.Notification
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Shares(tx)
		record, err := repo.GetByIDForUpdate(ctx, shareID)
		if err != nil {
			return translateNotFound(err)
		}
		// Non-parties get the same answer regardless of record state, so a
		// foreign share id leaks nothing and triggers no finalization.
		if !isParty(actor, record) {
			return common.ErrInsufficientPermissions
		}

		// Stale records are finalized to EXPIRED inside this transaction,
		// which then commits even though the caller's operation fails.
		if models.EffectiveStatus(record.Status, record.ExpiresAt, now) == models.StatusExpired &&
			record.Status != models.StatusExpired {
			queued, err = s.finalizeExpired(ctx, tx, record, now)
			if err != nil {
				return err
			}
			expired = true
			return nil
		}

		if err := authorizeTransition(actor, record, target); err != nil {
			return err
		}

		if err := repo.UpdateStatus(ctx, shareID, record.Status, target, now); err != nil {
			return err
		}

		eventType, notifType := transitionEffects(target)
		if err := s.appendAudit(ctx, tx, record, actor, eventType, map[string]string{
			"from": string(record.Status),
			"to":   string(target),
		}, nil, now); err != nil {
			return err
		}

		queued, err = s.notify(ctx, tx, record, notifType, now)
		return err
	})
	if err != nil {
		return err
	}
	if expired {
		s.enqueue(queued)
		return common.ErrShareExpired
	}

	s.enqueue(queued)
	s.logger.Info(ctx, "share transition", "share_id", shareID, "status", string(target), "actor", actor.Username)
	return nil
}

func authorizeTransition(actor Identity, record *models.ShareRecord, target models.Status) error {
	switch target {
	case models.StatusAccepted, models.StatusDeclined:
		if actor.Username != record.RecipientUsername {
			return common.ErrInsufficientPermissions
		}
		if record.Status != models.StatusPending {
			return common.ErrInvalidTransition
		}
	case models.StatusRevoked:
		if actor.Username != record.OwnerUsername {
			return common.ErrInsufficientPermissions
		}
		if record.Status.Terminal() {
			return common.ErrInvalidTransition
		}
	default:
		return fmt.Errorf("unsupported transition target %q", target)
	}
	return nil
}

func transitionEffects(target models.Status) (models.EventType, models.NotificationType) {
	switch target {
	case models.StatusAccepted:
		return models.EventAccepted, models.NotificationShareAccepted
	case models.StatusDeclined:
		return models.EventDeclined, models.NotificationShareDeclined
	default:
		return models.EventRevoked, models.NotificationShareRevoked
	}
}

// finalizeExpired persists the EXPIRED transition for a stale record:
// status change, one EXPIRED audit event, owner notification.
func (s *ShareService) finalizeExpired(ctx context.Context, tx dbx.DBTX, record *models.ShareRecord, now time.Time) ([]models.Notification, error) {
	repo := s.repomanager.Shares(tx)
	if err := repo.UpdateStatus(ctx, record.ID, record.Status, models.StatusExpired, now); err != nil {
		return nil, err
	}

	system := Identity{UserID: "system", Username: "system"}
	if err := s.appendAudit(ctx, tx, record, system, models.EventExpired, map[string]string{
		"from": string(record.Status),
	}, nil, now); err != nil {
		return nil, err
	}

	record.Status = models.StatusExpired
	return s.notify(ctx, tx, record, models.NotificationShareExpired, now)
}

// RecordAccess counts one container access through an ACCEPTED grant.
func (s *ShareService) RecordAccess(ctx context.Context, actor Identity, shareID string) error {
	if !s.config.SharingEnabled {
		return common.ErrSharingDisabled
	}
	now := s.now()

	var expired bool
	var queued []models.Notification
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Shares(tx)
		record, err := repo.GetByIDForUpdate(ctx, shareID)
		if err != nil {
			return translateNotFound(err)
		}
		if !isParty(actor, record) {
			return common.ErrInsufficientPermissions
		}

		if models.EffectiveStatus(record.Status, record.ExpiresAt, now) == models.StatusExpired &&
			record.Status != models.StatusExpired {
			queued, err = s.finalizeExpired(ctx, tx, record, now)
			if err != nil {
				return err
			}
			expired = true
			return nil
		}

		if actor.Username != record.RecipientUsername {
			return common.ErrInsufficientPermissions
		}
		if record.Status != models.StatusAccepted {
			if record.Status.Terminal() {
				return common.ErrInvalidTransition
			}
			return common.ErrInsufficientPermissions
		}
		if record.MaxAccess != nil && record.AccessCount >= *record.MaxAccess {
			return common.ErrShareLimitExceeded
		}

		container, err := s.containers.Lookup(ctx, record.ContainerID)
		if err != nil {
			return err
		}
		if container.Locked {
			return common.ErrContainerNotAccessible
		}

		if err := repo.RecordAccess(ctx, shareID, now); err != nil {
			return err
		}

		return s.appendAudit(ctx, tx, record, actor, models.EventAccessed, map[string]string{
			"access_count": fmt.Sprintf("%d", record.AccessCount+1),
		}, nil, now)
	})
	if err != nil {
		return err
	}
	if expired {
		s.enqueue(queued)
		return common.ErrShareExpired
	}
	return nil
}

// UpdatePermissions replaces the permission set on a non-terminal grant.
// Owner only.
func (s *ShareService) UpdatePermissions(ctx context.Context, actor Identity, shareID string, perms []models.Permission) error {
	normalized, err := models.NormalizePermissions(perms)
	if err != nil {
		return err
	}
	return s.ownerUpdate(ctx, actor, shareID, func(ctx context.Context, tx dbx.DBTX, record *models.ShareRecord, now time.Time) error {
		repo := s.repomanager.Shares(tx)
		if err := repo.UpdatePermissions(ctx, shareID, record.Status, normalized, now); err != nil {
			return err
		}
		return s.appendAudit(ctx, tx, record, actor, models.EventPermissionUpdated, map[string]string{
			"from": permissionsString(record.Permissions),
			"to":   permissionsString(normalized),
		}, nil, now)
	})
}

// ExtendExpiration moves the expiry of a non-terminal grant further into the
// future. Owner only; the new expiry must be strictly future.
func (s *ShareService) ExtendExpiration(ctx context.Context, actor Identity, shareID string, newExpiresAt time.Time) error {
	if !newExpiresAt.After(s.now()) {
		return fmt.Errorf("expiry must be in the future: %w", common.ErrInvalidPermissions)
	}
	return s.ownerUpdate(ctx, actor, shareID, func(ctx context.Context, tx dbx.DBTX, record *models.ShareRecord, now time.Time) error {
		repo := s.repomanager.Shares(tx)
		if err := repo.UpdateExpiration(ctx, shareID, record.Status, newExpiresAt, now); err != nil {
			return err
		}
		details := map[string]string{"to": newExpiresAt.UTC().Format(time.RFC3339)}
		if record.ExpiresAt != nil {
			details["from"] = record.ExpiresAt.UTC().Format(time.RFC3339)
		}
		return s.appendAudit(ctx, tx, record, actor, models.EventExpirationExtended, details, nil, now)
	})
}

func (s *ShareService) ownerUpdate(ctx context.Context, actor Identity, shareID string,
	apply func(ctx context.Context, tx dbx.DBTX, record *models.ShareRecord, now time.Time) error) error {
	if !s.config.SharingEnabled {
		return common.ErrSharingDisabled
	}
	now := s.now()

	var expired bool
	var queued []models.Notification
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Shares(tx)
		record, err := repo.GetByIDForUpdate(ctx, shareID)
		if err != nil {
			return translateNotFound(err)
		}
		if !isParty(actor, record) {
			return common.ErrInsufficientPermissions
		}

		if models.EffectiveStatus(record.Status, record.ExpiresAt, now) == models.StatusExpired &&
			record.Status != models.StatusExpired {
			queued, err = s.finalizeExpired(ctx, tx, record, now)
			if err != nil {
				return err
			}
			expired = true
			return nil
		}

		if actor.Username != record.OwnerUsername {
			return common.ErrInsufficientPermissions
		}
		if record.Status.Terminal() {
			return common.ErrInvalidTransition
		}

		return apply(ctx, tx, record, now)
	})
	if err != nil {
		return err
	}
	if expired {
		s.enqueue(queued)
		return common.ErrShareExpired
	}
	return nil
}

// GetShare returns one record with its read-time effective status. Only the
// owner or the recipient may read it.
func (s *ShareService) GetShare(ctx context.Context, actor Identity, shareID string) (*models.ShareRecord, error) {
	repo := s.repomanager.Shares(s.db)
	record, err := repo.GetByID(ctx, shareID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	if actor.Username != record.OwnerUsername && actor.Username != record.RecipientUsername {
		return nil, common.ErrInsufficientPermissions
	}
	effective := record.Effective(s.now())
	return &effective, nil
}

// ListMyShares returns the actor's outgoing grants (owner projection).
func (s *ShareService) ListMyShares(ctx context.Context, actor Identity) ([]models.ShareRecord, error) {
	repo := s.repomanager.Shares(s.db)
	records, err := repo.ListByOwner(ctx, actor.Username)
	if err != nil {
		return nil, err
	}
	return effectiveAll(records, s.now()), nil
}

// ListReceivedShares returns the actor's incoming grants (recipient
// projection of the same canonical records).
func (s *ShareService) ListReceivedShares(ctx context.Context, actor Identity) ([]models.ShareRecord, error) {
	repo := s.repomanager.Shares(s.db)
	records, err := repo.ListByRecipient(ctx, actor.Username)
	if err != nil {
		return nil, err
	}
	return effectiveAll(records, s.now()), nil
}

// GetStats summarizes the actor's shares.
func (s *ShareService) GetStats(ctx context.Context, actor Identity) (*models.ShareStats, error) {
	repo := s.repomanager.Shares(s.db)
	return repo.Stats(ctx, actor.Username, s.now())
}

// StatusUpdates resolves current status for the given share ids. Unknown or
// foreign ids are omitted from the result. Read-only and safe to poll
// concurrently.
func (s *ShareService) StatusUpdates(ctx context.Context, actor Identity, shareIDs []string) (map[string]models.ShareStatusUpdate, error) {
	repo := s.repomanager.Shares(s.db)
	records, err := repo.ListByIDs(ctx, shareIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make(map[string]models.ShareStatusUpdate, len(records))
	for _, record := range records {
		if actor.Username != record.OwnerUsername && actor.Username != record.RecipientUsername {
			continue
		}
		lastActivity := record.UpdatedAt
		if record.LastAccessedAt != nil && record.LastAccessedAt.After(lastActivity) {
			lastActivity = *record.LastAccessedAt
		}
		result[record.ID] = models.ShareStatusUpdate{
			Status:       models.EffectiveStatus(record.Status, record.ExpiresAt, now),
			LastActivity: lastActivity,
			AccessCount:  record.AccessCount,
			ExpiresAt:    record.ExpiresAt,
		}
	}
	return result, nil
}

// SearchRecipients proxies recipient search to the user directory.
func (s *ShareService) SearchRecipients(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.directory.Search(ctx, query, limit)
}

// ValidateRecipient checks whether username can receive a new grant on
// containerID, with near-miss suggestions when the name is unknown.
func (s *ShareService) ValidateRecipient(ctx context.Context, actor Identity, username, containerID string) (*models.RecipientValidation, error) {
	if username == actor.Username {
		return &models.RecipientValidation{Valid: false, Reason: "cannot share with yourself"}, nil
	}

	exists, err := s.directory.Exists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("recipient lookup: %w", err)
	}
	if !exists {
		validation := &models.RecipientValidation{Valid: false, Reason: "user not found"}
		if candidates, err := s.directory.Search(ctx, username, 5); err == nil {
			for _, c := range candidates {
				validation.Suggestions = append(validation.Suggestions, c.Username)
			}
		}
		return validation, nil
	}

	if containerID != "" {
		repo := s.repomanager.Shares(s.db)
		duplicate, err := repo.HasActivePair(ctx, containerID, username)
		if err != nil {
			return nil, err
		}
		if duplicate {
			return &models.RecipientValidation{Valid: false, Reason: "an active share for this container and user already exists"}, nil
		}
	}

	return &models.RecipientValidation{Valid: true}, nil
}

// --- helpers below ---

func (s *ShareService) appendAudit(ctx context.Context, tx dbx.DBTX, record *models.ShareRecord,
	actor Identity, eventType models.EventType, details, clientMeta map[string]string, now time.Time) error {
	repo := s.repomanager.Audit(tx)
	return repo.Append(ctx, &models.AuditEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		ShareID:       record.ID,
		ActorUserID:   actor.UserID,
		ActorUsername: actor.Username,
		ContainerID:   record.ContainerID,
		ContainerName: record.ContainerName,
		Details:       details,
		ClientMeta:    clientMeta,
		CreatedAt:     now,
	})
}

// notify creates the counterpart's notification inside the transaction,
// gated by the addressee's per-category preference. The returned slice is
// handed to the dispatcher only after commit.
func (s *ShareService) notify(ctx context.Context, tx dbx.DBTX, record *models.ShareRecord,
	notifType models.NotificationType, now time.Time) ([]models.Notification, error) {

	var from, to string
	switch notifType {
	case models.NotificationShareCreated, models.NotificationShareRevoked:
		from, to = record.OwnerUsername, record.RecipientUsername
	default:
		// owner is told what the recipient (or the clock) did
		from, to = record.RecipientUsername, record.OwnerUsername
	}

	prefs, err := s.repomanager.Preferences(tx).Get(ctx, to)
	if err != nil {
		return nil, err
	}
	if !prefs.Allows(notifType) {
		return nil, nil
	}

	notification := models.Notification{
		ID:            uuid.New().String(),
		Type:          notifType,
		ShareID:       record.ID,
		FromUsername:  from,
		ToUsername:    to,
		ContainerName: record.ContainerName,
		Message:       record.Message,
		CreatedAt:     now,
	}
	created, err := s.repomanager.Notifications(tx).Create(ctx, &notification)
	if err != nil {
		return nil, err
	}
	if !created {
		// deduplicated against an existing unread notification
		return nil, nil
	}
	return []models.Notification{notification}, nil
}

func (s *ShareService) enqueue(notifications []models.Notification) {
	if s.dispatcher == nil {
		return
	}
	for _, n := range notifications {
		s.dispatcher.Enqueue(n)
	}
}

func effectiveAll(records []models.ShareRecord, now time.Time) []models.ShareRecord {
	result := make([]models.ShareRecord, len(records))
	for i, record := range records {
		result[i] = record.Effective(now)
	}
	return result
}

func permissionsString(perms []models.Permission) string {
	out := ""
	for i, p := range perms {
		if i > 0 {
			out += ","
		}
		out += string(p)
	}
	return out
}

func isParty(actor Identity, record *models.ShareRecord) bool {
	return actor.Username == record.OwnerUsername || actor.Username == record.RecipientUsername
}

func translateNotFound(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrShareNotFound
	}
	return err
}
