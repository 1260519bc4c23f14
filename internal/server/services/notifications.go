package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/avolkovs/vaultshare/internal/logging"
	"github.com/avolkovs/vaultshare/internal/server/collab"
	sc "github.com/avolkovs/vaultshare/internal/server/config"
	"github.com/avolkovs/vaultshare/internal/server/models"
	"github.com/avolkovs/vaultshare/internal/server/repositories/repomanager"
	"github.com/sethvargo/go-retry"
)

// NotificationService serves the notification inbox and per-user
// preferences, and runs the asynchronous delivery dispatcher.
type NotificationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	delivery    collab.Delivery
	config      *sc.Config
	logger      logging.Logger

	queue chan models.Notification
	once  sync.Once
}

// NewNotificationService constructs a NotificationService. Run must be
// started for queued notifications to be delivered.
func NewNotificationService(db *sql.DB, repomanager repomanager.RepositoryManager,
	delivery collab.Delivery, config *sc.Config, logger logging.Logger) *NotificationService {
	return &NotificationService{
		db:          db,
		repomanager: repomanager,
		delivery:    delivery,
		config:      config,
		logger:      logger.With("module", "notification_service"),
		queue:       make(chan models.Notification, config.DispatchQueueSize),
	}
}

// List returns the addressee's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor Identity, unreadOnly bool) ([]models.Notification, error) {
	repo := s.repomanager.Notifications(s.db)
	return repo.ListByUser(ctx, actor.Username, unreadOnly)
}

// MarkRead flips one of the actor's notifications to read.
func (s *NotificationService) MarkRead(ctx context.Context, actor Identity, notificationID string) error {
	repo := s.repomanager.Notifications(s.db)
	return repo.MarkRead(ctx, notificationID, actor.Username)
}

// MarkAllRead flips all of the actor's unread notifications and returns the
// number affected.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor Identity) (int, error) {
	repo := s.repomanager.Notifications(s.db)
	return repo.MarkAllRead(ctx, actor.Username)
}

// GetPreferences returns the actor's preferences, falling back to defaults
// when none are stored.
func (s *NotificationService) GetPreferences(ctx context.Context, actor Identity) (*models.NotificationPreferences, error) {
	repo := s.repomanager.Preferences(s.db)
	return repo.Get(ctx, actor.Username)
}

// UpdatePreferences overlays the non-nil fields of update onto the actor's
// stored preferences and returns the result.
func (s *NotificationService) UpdatePreferences(ctx context.Context, actor Identity, update models.PreferencesUpdate) (*models.NotificationPreferences, error) {
	repo := s.repomanager.Preferences(s.db)
	current, err := repo.Get(ctx, actor.Username)
	if err != nil {
		return nil, err
	}
	next := current.Apply(update)
	next.Username = actor.Username
	if err := repo.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Enqueue hands a committed notification to the delivery worker. When the
// queue is full the notification is dropped with a warning; the inbox row is
// already durable, only the push/email nudge is lost.
func (s *NotificationService) Enqueue(n models.Notification) {
	select {
	case s.queue <- n:
	default:
		s.logger.Warn(context.Background(), "dispatch queue full, dropping delivery",
			"notification_id", n.ID, "type", string(n.Type))
	}
}

// Run consumes the dispatch queue until ctx is canceled. Deliveries retry
// with exponential backoff; the downstream channel deduplicates by
// notification ID, so retries are safe.
func (s *NotificationService) Run(ctx context.Context) {
	s.once.Do(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-s.queue:
				s.dispatch(ctx, n)
			}
		}
	})
}

func (s *NotificationService) dispatch(ctx context.Context, n models.Notification) {
	prefs, err := s.repomanager.Preferences(s.db).Get(ctx, n.ToUsername)
	if err != nil {
		s.logger.Error(ctx, "preference lookup failed, skipping delivery",
			"notification_id", n.ID, "error", err)
		return
	}
	if !prefs.PushEnabled && !prefs.EmailEnabled {
		return
	}

	msg := collab.DeliveryMessage{
		Notification: n,
		Push:         prefs.PushEnabled,
		Email:        prefs.EmailEnabled,
	}

	backoff := retry.NewExponential(s.config.DispatchRetryBase)
	backoff = retry.WithMaxRetries(uint64(s.config.DispatchMaxRetries), backoff)

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.delivery.Send(sendCtx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "delivery failed after retries",
			"notification_id", n.ID, "to", n.ToUsername, "error", err)
		return
	}
	s.logger.Debug(ctx, "notification delivered", "notification_id", n.ID, "to", n.ToUsername)
}
