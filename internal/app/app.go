package app

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/handlers"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/queue"
	"github.com/veoflow/veoflow/internal/services/events"
	"github.com/veoflow/veoflow/internal/services/flow"
	"github.com/veoflow/veoflow/internal/services/janitor"
	"github.com/veoflow/veoflow/internal/services/profiles"
	"github.com/veoflow/veoflow/internal/services/render"
	"github.com/veoflow/veoflow/internal/services/session"
	"github.com/veoflow/veoflow/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB             *badger.BadgerDB
	ProfileStorage interfaces.ProfileStorage
	TaskStorage    interfaces.TaskStorage

	// Services
	EventHub       *events.Hub
	ProfileService *profiles.Service
	Acquirer       *session.Acquirer
	Navigator      *flow.Navigator
	Driver         *flow.Driver
	Classifier     *flow.Classifier
	Downloader     *render.Downloader
	Orchestrator   *render.Orchestrator
	RenderService  *render.Service
	JanitorService *janitor.Service

	// Workers
	WorkerPool *queue.WorkerPool

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	RenderHandler  *handlers.RenderHandler
	ProfileHandler *handlers.ProfileHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	db, err := badger.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.DB = db
	app.ProfileStorage = badger.NewProfileStorage(db, logger)
	app.TaskStorage = badger.NewTaskStorage(db, logger)

	if err := os.MkdirAll(cfg.Storage.SessionsDir, 0755); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.OutputDir, 0755); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	app.EventHub = events.NewHub(cfg.WebSocket.StatusThrottle, logger)

	app.ProfileService, err = profiles.NewService(app.ProfileStorage, cfg.Storage.ProfilesDir, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize profile service: %w", err)
	}

	app.Acquirer = session.NewAcquirer(cfg.Browser, cfg.Flow, cfg.Storage.SessionsDir, app.ProfileService, logger)
	app.Classifier = flow.NewClassifier(cfg.Flow)
	app.Navigator = flow.NewNavigator(cfg.Flow, cfg.Browser.Headless, logger)
	app.Driver = flow.NewDriver(cfg.Flow, app.Classifier, logger)
	app.Downloader = render.NewDownloader(cfg.Render, cfg.Storage.OutputDir, logger)

	app.Orchestrator = render.NewOrchestrator(
		cfg,
		app.ProfileService,
		app.Acquirer,
		app.Navigator,
		app.Driver,
		app.Classifier,
		app.Downloader,
		app.TaskStorage,
		app.EventHub,
		logger,
	)

	app.RenderService = render.NewService(app.TaskStorage, app.EventHub, logger)
	app.WorkerPool = queue.NewWorkerPool(cfg.Queue, app.TaskStorage, app.Orchestrator.Execute, logger)
	app.JanitorService = janitor.NewService(cfg.Janitor, cfg.Storage.SessionsDir, db, logger)

	app.APIHandler = handlers.NewAPIHandler()
	app.RenderHandler = handlers.NewRenderHandler(app.RenderService, logger)
	app.ProfileHandler = handlers.NewProfileHandler(app.ProfileService, logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventHub, logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("flow_url", cfg.Flow.URL).
		Bool("headless", cfg.Browser.Headless).
		Msg("Application initialized")
	return app, nil
}

// Start launches background components
func (a *App) Start() error {
	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.JanitorService.Start(); err != nil {
		return fmt.Errorf("failed to start janitor: %w", err)
	}
	return nil
}

// Shutdown stops background components and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.WorkerPool.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Worker pool stop failed")
	}
	a.JanitorService.Stop()
	a.EventHub.Close()

	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
