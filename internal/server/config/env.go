package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// EnvConfig mirrors Config for envdecode. Variables that are not set leave
// the current value untouched.
type EnvConfig struct {
	Address             string        `env:"ADDRESS"`
	Port                string        `env:"PORT"`
	DatabaseDSN         string        `env:"DATABASE_DSN"`
	SecretKey           string        `env:"ACCESS_TOKEN_SECRET"`
	TokenTTL            time.Duration `env:"TOKEN_TTL"`
	BcryptCost          int           `env:"BCRYPT_COST"`
	PublicBaseURL       string        `env:"PUBLIC_BASE_URL"`
	UploadsDir          string        `env:"UPLOADS_DIR"`
	AssetsDir           string        `env:"ASSETS_DIR"`
	MaxUploadBytes      int64         `env:"MAX_UPLOAD_BYTES"`
	StorageBackend      string        `env:"STORAGE_BACKEND"`
	S3RootUser          string        `env:"S3_ROOT_USER"`
	S3RootPassword      string        `env:"S3_ROOT_PASSWORD"`
	S3Bucket            string        `env:"S3_BUCKET"`
	S3Region            string        `env:"S3_REGION"`
	S3BaseEndpoint      string        `env:"S3_BASE_ENDPOINT"`
	S3PublicURL         string        `env:"S3_PUBLIC_URL"`
	AllowedOrigins      string        `env:"CORS_ALLOWED_ORIGINS"`
	AssetAuthRequired   bool          `env:"ASSET_AUTH_REQUIRED"`
	TrustedProxies      string        `env:"TRUSTED_PROXIES"`
	LoginRateLimit      float64       `env:"LOGIN_RATE_LIMIT"`
	LoginRateBurst      int           `env:"LOGIN_RATE_BURST"`
	ReadTimeout         time.Duration `env:"READ_TIMEOUT"`
	WriteTimeout        time.Duration `env:"WRITE_TIMEOUT"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT"`
	ReadinessDrainDelay time.Duration `env:"READINESS_DRAIN_DELAY"`
	LogLevel            string        `env:"LOG_LEVEL"`
	LogBackend          string        `env:"LOG_BACKEND"`
}

// parseEnv loads dotenvPath (if it exists) into the process environment
// without overriding variables that are already set, then decodes the
// environment over config.
func parseEnv(config *Config, dotenvPath string) error {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	e := EnvConfig{
		Address:             config.Address,
		DatabaseDSN:         config.DatabaseDSN,
		SecretKey:           config.SecretKey,
		TokenTTL:            config.TokenTTL,
		BcryptCost:          config.BcryptCost,
		PublicBaseURL:       config.PublicBaseURL,
		UploadsDir:          config.UploadsDir,
		AssetsDir:           config.AssetsDir,
		MaxUploadBytes:      config.MaxUploadBytes,
		StorageBackend:      config.StorageBackend,
		S3RootUser:          config.S3RootUser,
		S3RootPassword:      config.S3RootPassword,
		S3Bucket:            config.S3Bucket,
		S3Region:            config.S3Region,
		S3BaseEndpoint:      config.S3BaseEndpoint,
		S3PublicURL:         config.S3PublicURL,
		AllowedOrigins:      strings.Join(config.AllowedOrigins, ","),
		AssetAuthRequired:   config.AssetAuthRequired,
		TrustedProxies:      strings.Join(config.TrustedProxies, ","),
		LoginRateLimit:      config.LoginRateLimit,
		LoginRateBurst:      config.LoginRateBurst,
		ReadTimeout:         config.ReadTimeout,
		WriteTimeout:        config.WriteTimeout,
		ShutdownTimeout:     config.ShutdownTimeout,
		ReadinessDrainDelay: config.ReadinessDrainDelay,
		LogLevel:            config.LogLevel,
		LogBackend:          config.LogBackend,
	}

	if err := envdecode.Decode(&e); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return err
	}

	config.Address = e.Address
	if e.Port != "" {
		config.Address = ":" + e.Port
	}
	config.DatabaseDSN = e.DatabaseDSN
	config.SecretKey = e.SecretKey
	config.TokenTTL = e.TokenTTL
	config.BcryptCost = e.BcryptCost
	config.PublicBaseURL = e.PublicBaseURL
	config.UploadsDir = e.UploadsDir
	config.AssetsDir = e.AssetsDir
	config.MaxUploadBytes = e.MaxUploadBytes
	config.StorageBackend = e.StorageBackend
	config.S3RootUser = e.S3RootUser
	config.S3RootPassword = e.S3RootPassword
	config.S3Bucket = e.S3Bucket
	config.S3Region = e.S3Region
	config.S3BaseEndpoint = e.S3BaseEndpoint
	config.S3PublicURL = e.S3PublicURL
	config.AllowedOrigins = splitList(e.AllowedOrigins)
	config.AssetAuthRequired = e.AssetAuthRequired
	config.TrustedProxies = splitList(e.TrustedProxies)
	config.LoginRateLimit = e.LoginRateLimit
	config.LoginRateBurst = e.LoginRateBurst
	config.ReadTimeout = e.ReadTimeout
	config.WriteTimeout = e.WriteTimeout
	config.ShutdownTimeout = e.ShutdownTimeout
	config.ReadinessDrainDelay = e.ReadinessDrainDelay
	config.LogLevel = e.LogLevel
	config.LogBackend = e.LogBackend

	return nil
}
