package rest

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const userIDKey = "userID"

// requestContext attaches a request id and a request-scoped logger, then
// writes one access log line when the handler chain returns.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(common.RequestIDHeaderName)
		if id == "" {
			id, _ = common.MakeRandHexString(16)
		}
		c.Header(common.RequestIDHeaderName, id)

		log := s.logger.With("request_id", id)
		ctx := logging.WithLogger(c.Request.Context(), log)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		// handlers may have swapped in a richer logger
		ctx = c.Request.Context()
		log = logging.FromContext(ctx, log)

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error(ctx, "HTTP request", args...)
		case status >= http.StatusBadRequest:
			log.Warn(ctx, "HTTP request", args...)
		default:
			log.Info(ctx, "HTTP request", args...)
		}
	}
}

// renderErrors logs errors gin recorded on the context, such as a response
// body that failed to marshal. If nothing reached the client yet the request
// is answered with a 500 instead of an empty success.
func (s *Server) renderErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		ctx := c.Request.Context()
		logging.FromContext(ctx, s.logger).Error(ctx, "request failed", "error", c.Errors.String())
		if !c.Writer.Written() {
			fail(c, http.StatusInternalServerError, "Internal server error")
		}
	}
}

func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		done := s.metrics.RequestStarted()
		defer func() {
			done()
			s.metrics.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
		}()

		c.Next()
	}
}

// cors admits the configured frontend origins with credentials. "*" admits
// any origin, echoed back since credentials forbid a literal wildcard.
func cors(origins []string) gin.HandlerFunc {
	allowAll := slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(origins, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+common.RequestIDHeaderName)
			h.Set("Access-Control-Expose-Headers", common.RequestIDHeaderName)
			h.Set("Access-Control-Max-Age", "3600")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireAuth accepts "Authorization: Bearer <token>" and stores the token's
// user id on the gin context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, found := strings.CutPrefix(c.GetHeader(common.AuthorizationHeaderName), common.BearerPrefix)
		token = strings.TrimSpace(token)
		if !found || token == "" {
			fail(c, http.StatusUnauthorized, "Access token is missing")
			c.Abort()
			return
		}

		userID, err := s.issuer.Validate(token)
		if err != nil {
			msg := "Invalid access token"
			if errors.Is(err, common.ErrTokenExpired) {
				msg = "Access token expired"
			}
			fail(c, http.StatusUnauthorized, msg)
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		ctx := c.Request.Context()
		log := logging.FromContext(ctx, s.logger).With("user_id", userID)
		c.Request = c.Request.WithContext(logging.WithLogger(ctx, log))
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *ipRateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// prune drops buckets that have refilled completely; they carry no state.
func (rl *ipRateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for k, l := range rl.limiters {
		if l.TokensAt(now) >= float64(rl.burst) {
			delete(rl.limiters, k)
		}
	}
}

func (s *Server) rateLimit(rl *ipRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.get(c.ClientIP()).Allow() {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		logging.FromContext(ctx, s.logger).Warn(ctx, "rate limit exceeded",
			"client_ip", c.ClientIP(), "path", c.Request.URL.Path)
		fail(c, http.StatusTooManyRequests, "Too many requests, try again later")
		c.Abort()
	}
}
