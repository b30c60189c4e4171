// Package rest exposes the story journal over HTTP/JSON using gin.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/logging"
	"github.com/dmitrijs2005/storykeeper/internal/server/auth"
	"github.com/dmitrijs2005/storykeeper/internal/server/metrics"
	"github.com/dmitrijs2005/storykeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Options are the transport settings taken from config.
type Options struct {
	Address           string
	AllowedOrigins    []string
	AssetAuthRequired bool
	// TrustedProxies may set X-Forwarded-For. Nil trusts nobody, so the
	// rate limiter keys on the peer address.
	TrustedProxies []string
	// UploadsDir is served under /uploads when set (local asset store).
	UploadsDir     string
	AssetsDir      string
	MaxUploadBytes int64
	LoginRateLimit float64
	LoginRateBurst int

	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	ShutdownTimeout     time.Duration
	ReadinessDrainDelay time.Duration
}

type Server struct {
	opts    Options
	logger  logging.Logger
	metrics *metrics.Metrics
	issuer  *auth.Issuer
	users   *services.UserService
	stories *services.StoryService
	images  *services.ImageService

	limiter *ipRateLimiter
	router  *gin.Engine
	ready   atomic.Bool
}

func NewServer(opts Options, l logging.Logger, m *metrics.Metrics, issuer *auth.Issuer,
	us *services.UserService, ss *services.StoryService, is *services.ImageService) *Server {
	s := &Server{
		opts:    opts,
		logger:  l.With("module", "rest_server"),
		metrics: m,
		issuer:  issuer,
		users:   us,
		stories: ss,
		images:  is,
	}
	if opts.LoginRateLimit > 0 {
		s.limiter = newIPRateLimiter(opts.LoginRateLimit, max(opts.LoginRateBurst, 1))
	}
	s.router = s.routes()
	s.ready.Store(true)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(s.opts.TrustedProxies); err != nil {
		s.logger.Warn(context.Background(), "invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	// instrument sits outside recovery so panicking requests are observed
	// with their final 500.
	r.Use(
		s.requestContext(),
		s.instrument(),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			ctx := c.Request.Context()
			logging.FromContext(ctx, s.logger).Error(ctx, "panic recovered", "panic", fmt.Sprint(recovered))
			fail(c, http.StatusInternalServerError, "Internal server error")
		}),
		s.renderErrors(),
		cors(s.opts.AllowedOrigins),
	)

	r.GET("/health", s.health)
	r.GET("/ready", s.readiness)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	if s.opts.UploadsDir != "" {
		r.Static("/uploads", s.opts.UploadsDir)
	}
	if s.opts.AssetsDir != "" {
		r.Static("/assets", s.opts.AssetsDir)
	}

	limited := r.Group("/", s.rateLimit(s.limiter))
	limited.POST("/create-account", s.createAccount)
	limited.POST("/login", s.login)

	authed := r.Group("/", s.requireAuth())
	authed.GET("/get-user", s.getUser)
	authed.POST("/add-travel-story", s.addStory)
	authed.GET("/get-all-stories", s.getAllStories)
	authed.PUT("/edit-story/:id", s.editStory)
	authed.DELETE("/delete-story/:id", s.deleteStory)
	authed.PUT("/update-is-favourite/:id", s.updateIsFavourite)
	authed.GET("/search", s.search)
	authed.GET("/travel-stories/filter", s.filter)

	images := r.Group("/")
	if s.opts.AssetAuthRequired {
		images.Use(s.requireAuth())
	}
	images.POST("/image-upload", s.imageUpload)
	images.DELETE("/delete-image", s.deleteImage)

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Route not found")
	})
	return r
}

// Run serves until ctx is cancelled. On cancellation readiness flips to
// failing, the drain delay elapses, and in-flight requests get
// ShutdownTimeout to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	if s.limiter != nil {
		go s.pruneLimiter(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.ready.Store(false)
	if d := s.opts.ReadinessDrainDelay; d > 0 {
		s.logger.Info(ctx, "Readiness drain delay started", "delay", d.String())
		time.Sleep(d)
	}

	s.logger.Info(ctx, "Stopping HTTP server...", "timeout", s.opts.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) pruneLimiter(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.limiter.prune()
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readiness(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
