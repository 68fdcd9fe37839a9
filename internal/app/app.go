// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/musicflow/musicflow/internal/adapter/audio/mock"
	"github.com/musicflow/musicflow/internal/adapter/catalog"
	"github.com/musicflow/musicflow/internal/adapter/eventbus"
	"github.com/musicflow/musicflow/internal/adapter/httpfetch"
	"github.com/musicflow/musicflow/internal/adapter/media"
	"github.com/musicflow/musicflow/internal/adapter/repository/kv"
	"github.com/musicflow/musicflow/internal/adapter/store/memory"
	"github.com/musicflow/musicflow/internal/adapter/store/sqlite"
	"github.com/musicflow/musicflow/internal/config"
	"github.com/musicflow/musicflow/internal/logger"
	"github.com/musicflow/musicflow/internal/ports"
	"github.com/musicflow/musicflow/internal/service"
)

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Restoring the persisted library and volume
// - Releasing the store and event bus on shutdown
type Application struct {
	// Core dependencies
	logger zerolog.Logger
	config *config.Config

	// Infrastructure
	eventBus ports.EventBus
	store    ports.Store
	output   ports.AudioOutput
	catalog  ports.Catalog

	// Services
	playerService   *service.PlayerService
	libraryService  *service.LibraryService
	settingsService *service.SettingsService

	shutdownOnce sync.Once
	shutdownErr  error
}

// Options holds what NewApplication needs beyond the configuration.
type Options struct {
	// Config is the loaded configuration (nil uses config.Default())
	Config *config.Config

	// LogOutput receives log lines (nil for stderr)
	LogOutput io.Writer

	// AudioOutput is the playback primitive (nil for the in-memory output)
	AudioOutput ports.AudioOutput

	// HTTPClient is used for catalog requests and downloads (nil builds one from Config)
	HTTPClient *http.Client
}

// NewApplication creates a new application with all dependencies wired and
// the saved state loaded. This is the main dependency injection function.
func NewApplication(ctx context.Context, opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Default(); err != nil {
			return nil, err
		}
	}

	app := &Application{config: cfg}

	// Step 1: Create logger
	app.logger = logger.NewLogger(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: opts.LogOutput,
	})
	app.logger.Info().Str("version", ReadBuildInfo().String()).Msg("initializing application")

	// Step 2: Create an event bus
	app.eventBus = eventbus.NewSyncEventBus(app.logger)

	// Step 3: Create the store (opened lazily on first use)
	if cfg.Storage.Memory {
		app.store = memory.NewStore()
	} else {
		app.store = sqlite.NewStore(cfg.Storage.Path, app.logger)
	}

	// Step 4: Create the audio output
	app.output = opts.AudioOutput
	if app.output == nil {
		app.output = mock.NewOutput(app.logger)
	}

	// Step 5: Create the catalog client
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Catalog.RequestTimeout}
	}
	app.catalog = catalog.NewClient(catalog.Config{
		BaseURL:      cfg.Catalog.BaseURL,
		ClientID:     cfg.Catalog.ClientID,
		CacheTTL:     cfg.Catalog.CacheTTL,
		DefaultLimit: cfg.Catalog.DefaultLimit,
		HTTPClient:   httpClient,
	}, app.logger)

	// Step 6: Create repositories
	settingsRepo := kv.NewSettingsRepository(app.store)
	reporter := ports.ErrorReporterFunc(func(err error) {
		app.logger.Error().Err(err).Msg("background operation failed")
	})

	// Step 7: Create services (with dependency injection)
	app.playerService = service.NewPlayerService(
		app.logger.With().Str("service", "player").Logger(),
		app.output,
		app.eventBus,
		settingsRepo,
		reporter,
		service.PlayerConfig{
			DefaultVolume:    cfg.Player.DefaultVolume,
			RestartThreshold: cfg.Player.RestartThreshold,
		},
	)

	app.libraryService = service.NewLibraryService(
		app.logger.With().Str("service", "library").Logger(),
		kv.NewPlaylistRepository(app.store),
		kv.NewUploadRepository(app.store),
		kv.NewDownloadRepository(app.store),
		media.NewProbe(app.logger),
		httpfetch.NewFetcher(opts.HTTPClient, cfg.Library.DownloadTimeout, cfg.Library.MaxDownloadBytes, app.logger),
		app.eventBus,
		service.NewBlobRegistry(),
		service.LibraryConfig{MaxUploadBytes: cfg.Library.MaxUploadBytes},
	)

	app.settingsService = service.NewSettingsService(
		app.logger.With().Str("service", "settings").Logger(),
		settingsRepo,
		app.eventBus,
	)

	// Step 8: Load saved state
	if err := app.loadSavedState(ctx); err != nil {
		// A store that cannot be opened makes every later call fail too
		_ = app.Shutdown()
		return nil, err
	}

	app.logger.Info().Msg("all services initialized successfully")
	return app, nil
}

// loadSavedState restores the library collections and the saved volume.
func (a *Application) loadSavedState(ctx context.Context) error {
	if err := a.libraryService.RefreshLibrary(ctx); err != nil {
		return errors.Wrap(err, "failed to load library")
	}
	if err := a.playerService.LoadSavedVolume(ctx); err != nil {
		// Non-fatal - just log and continue
		a.logger.Warn().Err(err).Msg("failed to load saved volume")
	}
	return nil
}

// Config returns the configuration the application was built with.
func (a *Application) Config() *config.Config { return a.config }

// Logger returns the application logger.
func (a *Application) Logger() zerolog.Logger { return a.logger }

// EventBus returns the event bus observers subscribe to.
func (a *Application) EventBus() ports.EventBus { return a.eventBus }

// Catalog returns the catalog client.
func (a *Application) Catalog() ports.Catalog { return a.catalog }

// Player returns the playback engine.
func (a *Application) Player() *service.PlayerService { return a.playerService }

// Library returns the library manager.
func (a *Application) Library() *service.LibraryService { return a.libraryService }

// Settings returns the settings service.
func (a *Application) Settings() *service.SettingsService { return a.settingsService }

// Shutdown drains pending writes, then closes the store and the event bus.
// Calling it more than once returns the first result.
func (a *Application) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.logger.Info().Msg("shutting down application")

		// Shutdown services (in reverse order of creation)
		if a.playerService != nil {
			a.playerService.Shutdown()
		}

		var errs error
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close store"))
			}
		}
		if a.eventBus != nil {
			if err := a.eventBus.Close(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close event bus"))
			}
		}
		a.shutdownErr = errs

		a.logger.Info().Msg("application shutdown complete")
	})
	return a.shutdownErr
}
