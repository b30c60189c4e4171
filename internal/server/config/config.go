// Package config handles configuration for the storykeeper server,
// including defaults, environment overlay, JSON overlay and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/common"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds runtime settings for the storykeeper server.
//
// Fields:
//   - Address: bind address of the HTTP API.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects in-memory repositories.
//   - SecretKey: HMAC secret for signing access tokens (HS256).
//   - TokenTTL: lifetime of an access token.
//   - PublicBaseURL: base of the URLs handed out for uploaded and placeholder images.
//   - UploadsDir / AssetsDir: local directories served under /uploads and /assets.
//   - StorageBackend: "local" or "s3"; S3* fields configure the latter.
//   - AllowedOrigins: CORS origins of the frontend.
//   - AssetAuthRequired: whether /image-upload and /delete-image need a token.
//   - TrustedProxies: IPs or CIDRs whose X-Forwarded-For is believed. Empty
//     means the client IP is always the peer address.
type Config struct {
	Address        string
	DatabaseDSN    string
	SecretKey      string
	TokenTTL       time.Duration
	BcryptCost     int
	PublicBaseURL  string
	UploadsDir     string
	AssetsDir      string
	MaxUploadBytes int64
	StorageBackend string

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3PublicURL    string

	AllowedOrigins    []string
	AssetAuthRequired bool
	TrustedProxies    []string
	LoginRateLimit    float64
	LoginRateBurst    int

	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	ShutdownTimeout     time.Duration
	ReadinessDrainDelay time.Duration

	LogLevel   string
	LogBackend string
}

// LoadDefaults populates Config with development defaults.
// NOTE: SecretKey must be overridden outside of local development.
func (c *Config) LoadDefaults() {
	c.Address = ":8000"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.TokenTTL = 720 * time.Hour
	c.BcryptCost = 10
	c.PublicBaseURL = "http://localhost:8000"
	c.UploadsDir = "uploads"
	c.AssetsDir = "assets"
	c.MaxUploadBytes = 10 << 20
	c.StorageBackend = StorageLocal
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "stories"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.S3PublicURL = "http://127.0.0.1:9000/stories"
	c.AllowedOrigins = []string{"http://localhost:5173"}
	c.AssetAuthRequired = true
	c.TrustedProxies = nil
	c.LoginRateLimit = 5
	c.LoginRateBurst = 10
	c.ReadTimeout = 15 * time.Second
	c.WriteTimeout = 30 * time.Second
	c.ShutdownTimeout = 10 * time.Second
	c.ReadinessDrainDelay = 0
	c.LogLevel = "info"
	c.LogBackend = "zerolog"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from the environment (and an optional .env file), an optional JSON file
// and finally command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseEnv(cfg, ".env"); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}
	if err := parseJson(cfg); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key must not be empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}
	switch c.StorageBackend {
	case StorageLocal:
	case StorageS3:
		if c.S3Bucket == "" || c.S3PublicURL == "" {
			errs = append(errs, errors.New("s3 storage needs bucket and public url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("trusted proxy %q is neither an IP nor a CIDR", p))
		}
	}
	return errors.Join(errs...)
}

// PlaceholderURL is the public URL of the shared placeholder image.
func (c *Config) PlaceholderURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + common.PlaceholderImagePath
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
