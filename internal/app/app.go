package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/handlers"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/services/browser"
	"github.com/ternarybob/capto/internal/services/detector"
	"github.com/ternarybob/capto/internal/services/download"
	"github.com/ternarybob/capto/internal/services/scheduler"
	"github.com/ternarybob/capto/internal/services/session"
	"github.com/ternarybob/capto/internal/services/vault"
	badgerstore "github.com/ternarybob/capto/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Core services
	DetectorService  interfaces.AuthDetector
	BrowserService   interfaces.BrowserController
	VaultService     interfaces.CookieVault
	SessionService   interfaces.SessionService
	DownloadService  interfaces.DownloadService
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	AuthHandler     *handlers.AuthHandler
	DownloadHandler *handlers.DownloadHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// WebSocket handler first: it is the event sink the session service
	// publishes into.
	app.WSHandler = handlers.NewWebSocketHandler(app.Logger)

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.SchedulerService.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Bool("probe_enabled", cfg.Detector.ProbeEnabled).
		Bool("headless", cfg.Browser.Headless).
		Str("utility", cfg.Download.UtilityPath).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices wires the service graph bottom-up: classifier and vault are
// leaves, the session manager sits on the browser arena, the orchestrator
// sits on top of everything.
func (a *App) initServices() error {
	a.DetectorService = detector.NewService(&a.Config.Detector, a.Logger)

	vaultService, err := vault.NewService(a.StorageManager.TTLStore(), &a.Config.Vault, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create cookie vault: %w", err)
	}
	a.VaultService = vaultService

	a.BrowserService = browser.NewController(&a.Config.Browser, a.Logger)

	a.SessionService = session.NewService(
		a.BrowserService,
		a.VaultService,
		a.DetectorService,
		a.WSHandler,
		&a.Config.Session,
		a.Logger,
	)

	runner := download.NewRunner(&a.Config.Download, a.Logger)
	a.DownloadService = download.NewService(
		runner,
		a.DetectorService,
		a.SessionService,
		a.VaultService,
		a.StorageManager.DownloadStorage(),
		&a.Config.Download,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(
		a.SessionService,
		a.StorageManager,
		&a.Config.Scheduler,
		a.Logger,
	)

	return nil
}

// initHandlers creates the HTTP handler layer
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.StorageManager, a.Logger)
	a.AuthHandler = handlers.NewAuthHandler(a.SessionService, a.Logger)
	a.DownloadHandler = handlers.NewDownloadHandler(a.DownloadService, a.DetectorService, a.Logger)
}

// Close releases all application resources in reverse dependency order.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler shutdown failed")
		}
	}

	if a.BrowserService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.BrowserService.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Browser shutdown failed")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage shutdown failed")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
