// Package config loads runtime settings from the environment. A .env file in
// the working directory, when present, is read first; real environment
// variables win over it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const prefix = "SHARPFORM"

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	GelfAddr string `envconfig:"GELF_ADDR"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"oxidb"`
	BlobBackend  string `envconfig:"BLOB_BACKEND" default:"oxidb"`

	OxiDBHost string `envconfig:"OXIDB_HOST" default:"127.0.0.1"`
	OxiDBPort int    `envconfig:"OXIDB_PORT" default:"4444"`
	PoolSize  int    `envconfig:"POOL_SIZE" default:"3"`
	Bucket    string `envconfig:"OXIDB_BUCKET" default:"sharpform_uploads"`

	JWTSecret      string        `envconfig:"JWT_SECRET" default:"sharpform-dev-secret-change-me"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	GoogleClientID string        `envconfig:"GOOGLE_CLIENT_ID"`

	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3PathStyle bool   `envconfig:"S3_PATH_STYLE"`

	RateLimitBackend string `envconfig:"RATE_LIMIT_BACKEND" default:"memory"`
	RedisAddr        string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD"`
	RedisDB          int    `envconfig:"REDIS_DB"`

	UploadMaxBytes   int64         `envconfig:"UPLOAD_MAX_BYTES" default:"5242880"`
	UploadRateWindow time.Duration `envconfig:"UPLOAD_RATE_WINDOW" default:"15m"`
	UploadRateMax    int           `envconfig:"UPLOAD_RATE_MAX" default:"10"`
	RetentionPeriod  time.Duration `envconfig:"RETENTION_PERIOD" default:"720h"`
	SignedURLTTL     time.Duration `envconfig:"SIGNED_URL_TTL" default:"168h"`
	PublicBaseURL    string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	CORSOrigins      []string      `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load reads an optional .env file and then SHARPFORM_* variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads SHARPFORM_* variables only.
func FromEnv() (*Config, error) {
	var c Config
	if err := envconfig.Process(prefix, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func oneOf(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), v)
}

// Validate rejects unknown backends and non-positive limits.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	add(oneOf("STORE_BACKEND", c.StoreBackend, "oxidb", "memory"))
	add(oneOf("BLOB_BACKEND", c.BlobBackend, "oxidb", "s3", "memory"))
	add(oneOf("RATE_LIMIT_BACKEND", c.RateLimitBackend, "memory", "redis"))

	for _, l := range []struct {
		name string
		v    int64
	}{
		{"POOL_SIZE", int64(c.PoolSize)},
		{"UPLOAD_MAX_BYTES", c.UploadMaxBytes},
		{"UPLOAD_RATE_MAX", int64(c.UploadRateMax)},
		{"UPLOAD_RATE_WINDOW", int64(c.UploadRateWindow)},
		{"RETENTION_PERIOD", int64(c.RetentionPeriod)},
		{"SIGNED_URL_TTL", int64(c.SignedURLTTL)},
		{"TOKEN_TTL", int64(c.TokenTTL)},
	} {
		if l.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", l.name))
		}
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.BlobBackend == "s3" && c.S3Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required for the s3 blob backend"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
