package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/flagx"
	"github.com/dmitrijs2005/storykeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "720h" and integer nanoseconds are accepted. Only
// keys present in the file override the current configuration.
type JsonConfig struct {
	Address             *string         `json:"address"`
	DatabaseDSN         *string         `json:"database_dsn"`
	SecretKey           *string         `json:"secret_key"`
	TokenTTL            *timex.Duration `json:"token_ttl"`
	BcryptCost          *int            `json:"bcrypt_cost"`
	PublicBaseURL       *string         `json:"public_base_url"`
	UploadsDir          *string         `json:"uploads_dir"`
	AssetsDir           *string         `json:"assets_dir"`
	MaxUploadBytes      *int64          `json:"max_upload_bytes"`
	StorageBackend      *string         `json:"storage_backend"`
	S3RootUser          *string         `json:"s3_root_user"`
	S3RootPassword      *string         `json:"s3_root_password"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
	S3PublicURL         *string         `json:"s3_public_url"`
	AllowedOrigins      []string        `json:"allowed_origins"`
	AssetAuthRequired   *bool           `json:"asset_auth_required"`
	TrustedProxies      []string        `json:"trusted_proxies"`
	LoginRateLimit      *float64        `json:"login_rate_limit"`
	LoginRateBurst      *int            `json:"login_rate_burst"`
	ReadTimeout         *timex.Duration `json:"read_timeout"`
	WriteTimeout        *timex.Duration `json:"write_timeout"`
	ShutdownTimeout     *timex.Duration `json:"shutdown_timeout"`
	ReadinessDrainDelay *timex.Duration `json:"readiness_drain_delay"`
	LogLevel            *string         `json:"log_level"`
	LogBackend          *string         `json:"log_backend"`
}

// parseJson overlays the file named by -c/-config (or $CONFIG) onto config.
// No path means nothing to load.
func parseJson(config *Config) error {
	path := flagx.ConfigFilePath()
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.Address, c.Address)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenTTL, c.TokenTTL)
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.UploadsDir, c.UploadsDir)
	setString(&config.AssetsDir, c.AssetsDir)
	if c.MaxUploadBytes != nil {
		config.MaxUploadBytes = *c.MaxUploadBytes
	}
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicURL, c.S3PublicURL)
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	if c.TrustedProxies != nil {
		config.TrustedProxies = c.TrustedProxies
	}
	if c.AssetAuthRequired != nil {
		config.AssetAuthRequired = *c.AssetAuthRequired
	}
	if c.LoginRateLimit != nil {
		config.LoginRateLimit = *c.LoginRateLimit
	}
	if c.LoginRateBurst != nil {
		config.LoginRateBurst = *c.LoginRateBurst
	}
	setDuration(&config.ReadTimeout, c.ReadTimeout)
	setDuration(&config.WriteTimeout, c.WriteTimeout)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setDuration(&config.ReadinessDrainDelay, c.ReadinessDrainDelay)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogBackend, c.LogBackend)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
