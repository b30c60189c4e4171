// Package server assembles the storykeeper application: logging, storage,
// repositories, services and the HTTP transport, plus graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/storykeeper/internal/logging"
	"github.com/dmitrijs2005/storykeeper/internal/server/assets"
	"github.com/dmitrijs2005/storykeeper/internal/server/auth"
	"github.com/dmitrijs2005/storykeeper/internal/server/config"
	"github.com/dmitrijs2005/storykeeper/internal/server/metrics"
	"github.com/dmitrijs2005/storykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storykeeper/internal/server/rest"
	"github.com/dmitrijs2005/storykeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// openDB is a seam for tests; the pgx driver is registered by repomanager.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *rest.Server
}

// NewApp validates c and wires every component. With an empty DatabaseDSN
// the repositories live in memory.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger}

	repos, err := app.initRepositories(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	store, uploadsDir, err := app.initStore(ctx)
	if err != nil {
		app.closeDB(ctx)
		return nil, err
	}
	mgr := assets.NewManager(store, c.PlaceholderURL(), c.MaxUploadBytes, logger.With("module", "assets"), m)

	issuer := auth.NewIssuer(c.SecretKey, c.TokenTTL)
	us := services.NewUserService(app.db, repos, issuer, c)
	ss := services.NewStoryService(app.db, repos, mgr)
	is := services.NewImageService(app.db, repos, mgr)

	gin.SetMode(gin.ReleaseMode)
	app.server = rest.NewServer(rest.Options{
		Address:             c.Address,
		AllowedOrigins:      c.AllowedOrigins,
		AssetAuthRequired:   c.AssetAuthRequired,
		TrustedProxies:      c.TrustedProxies,
		UploadsDir:          uploadsDir,
		AssetsDir:           c.AssetsDir,
		MaxUploadBytes:      c.MaxUploadBytes,
		LoginRateLimit:      c.LoginRateLimit,
		LoginRateBurst:      c.LoginRateBurst,
		ReadTimeout:         c.ReadTimeout,
		WriteTimeout:        c.WriteTimeout,
		ShutdownTimeout:     c.ShutdownTimeout,
		ReadinessDrainDelay: c.ReadinessDrainDelay,
	}, logger, m, issuer, us, ss, is)

	return app, nil
}

func (app *App) initRepositories(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "No database DSN configured, data is kept in memory only")
		return repomanager.NewMemoryRepositoryManager(), nil
	}

	db, err := openDB(app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	app.db = db

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		app.closeDB(ctx)
		return nil, err
	}
	return repos, nil
}

// initStore returns the configured asset store and, for the local one, the
// directory to serve under /uploads.
func (app *App) initStore(ctx context.Context) (assets.Store, string, error) {
	c := app.config
	switch c.StorageBackend {
	case config.StorageS3:
		s, err := assets.NewS3Store(ctx, assets.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
			PublicURL:    c.S3PublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	default:
		s, err := assets.NewLocalStore(c.UploadsDir, c.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	}
}

func (app *App) closeDB(ctx context.Context) {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.db = nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM/SIGQUIT arrives, then
// shuts the server down and closes the database.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")
	defer app.closeDB(context.WithoutCancel(ctx))

	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, "server error", "error", err)
		return err
	}
	app.logger.Info(ctx, "Graceful shutdown complete")
	return nil
}
