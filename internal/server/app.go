// Package server initializes and runs the sharing server: it opens the
// database, applies migrations, starts the notification dispatcher, and
// serves the HTTP API until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/avolkovs/vaultshare/internal/logging"
	"github.com/avolkovs/vaultshare/internal/server/collab"
	"github.com/avolkovs/vaultshare/internal/server/config"
	"github.com/avolkovs/vaultshare/internal/server/httpapi"
	"github.com/avolkovs/vaultshare/internal/server/repositories/repomanager"
	"github.com/avolkovs/vaultshare/internal/server/services"
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	shares        *services.ShareService
	audit         *services.AuditService
	notifications *services.NotificationService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	manager := repomanager.NewPostgresRepositoryManager()
	if err := manager.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	containers := collab.NewHTTPContainers(cfg.ContainerServiceURL)
	directory := collab.NewHTTPDirectory(cfg.UserDirectoryURL)
	delivery := collab.NewHTTPDelivery(cfg.DeliveryServiceURL)

	notificationService := services.NewNotificationService(db, manager, delivery, cfg, logger)
	shareService := services.NewShareService(db, manager, containers, directory, notificationService, cfg, logger)
	auditService := services.NewAuditService(db, manager, cfg)

	return &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		shares:        shareService,
		audit:         auditService,
		notifications: notificationService,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	router := httpapi.NewRouter(app.config, app.shares, app.audit, app.notifications)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.notifications.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
