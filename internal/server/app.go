// Package server wires the buzzdrop components together: database and
// migrations, the storage backend, identities, the artifact service, the
// HTTP transport and the background reaper. It also handles graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/logging"
	"github.com/dmitrijs2005/buzzdrop/internal/server/config"
	"github.com/dmitrijs2005/buzzdrop/internal/server/httpapi"
	"github.com/dmitrijs2005/buzzdrop/internal/server/identity"
	"github.com/dmitrijs2005/buzzdrop/internal/server/reaper"
	"github.com/dmitrijs2005/buzzdrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/buzzdrop/internal/server/services"
	"github.com/dmitrijs2005/buzzdrop/internal/server/storage"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	artifacts *services.ArtifactService
	server    *httpapi.Server
	reaper    *reaper.Loop
}

// environ is swapped in tests.
var environ = os.Environ

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	rm, err := repomanager.New(c.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	db, err := rm.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app := &App{config: c, logger: logger, db: db}

	if err := rm.RunMigrations(ctx, db); err != nil {
		app.closeDB(ctx)
		return nil, fmt.Errorf("db migrations error: %w", err)
	}

	backend, err := storage.New(ctx, c)
	if err != nil {
		app.closeDB(ctx)
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	if err := backend.Ping(ctx); err != nil {
		logger.Warn(ctx, "storage backend check failed", "backend", backend.Type(), "error", err)
	} else {
		logger.Info(ctx, "storage backend ready", "backend", backend.Type())
	}

	users, err := identity.NewEnvProvider(ctx, logger.With("module", "identity"), c.UsersEnvPrefix, environ())
	if err != nil {
		app.closeDB(ctx)
		return nil, fmt.Errorf("identity init error: %w", err)
	}

	secret := c.SecretKey
	if secret == "" {
		secret, err = common.MakeRandHexString(32)
		if err != nil {
			app.closeDB(ctx)
			return nil, fmt.Errorf("secret key error: %w", err)
		}
		logger.Warn(ctx, "no secret key configured, sessions will not survive a restart")
	}

	app.artifacts = services.NewArtifactService(rm.Artifacts(db), backend, logger, services.Options{
		MaxSize:           c.MaxContentLength,
		AllowedExtensions: c.AllowedExtensions,
		BaseURL:           c.BaseURL,
		Location:          loc,
	})

	// before the listener opens: an in-flight upload has bytes but no record yet
	if n, err := app.artifacts.CleanupOrphans(ctx); err != nil {
		logger.Warn(ctx, "orphan cleanup failed", "error", err)
	} else if n > 0 {
		logger.Info(ctx, "removed orphaned objects", "count", n)
	}

	handler := httpapi.NewHandler(app.artifacts, users, logger, httpapi.Options{
		SecretKey:        []byte(secret),
		SessionValidity:  c.SessionValidityDuration,
		MaxContentLength: c.MaxContentLength,
		SecureCookie:     strings.HasPrefix(c.BaseURL, "https://"),
	})
	app.server = httpapi.NewServer(c.EndpointAddrHTTP, handler, logger)
	app.reaper = reaper.New(app.artifacts, c.ReaperInterval, logger)

	logger.Info(ctx, "configuration", infoArgs(c.DisplayInfo())...)
	return app, nil
}

func infoArgs(info map[string]any) []any {
	args := make([]any, 0, len(info)*2)
	for k, v := range info {
		args = append(args, k, v)
	}
	return args
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
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives or ctx is done, then
// stops the HTTP server and the reaper and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.reaper.Run(ctx)
	}()

	wg.Wait()

	app.closeDB(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}

func (app *App) closeDB(ctx context.Context) {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
