// Package config handles configuration for the server: defaults, an
// optional JSON overlay (comments allowed), command-line flags, and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/logging"
)

// Storage backends.
const (
	StorageLocal  = "local"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// Record store drivers.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
	DatabaseMemory   = "memory"
)

// MinContentLength is the smallest accepted MaxContentLength.
const MinContentLength = 1024

// Config holds runtime settings for the buzzdrop server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the HTTP endpoint.
//   - BaseURL: public origin used to build share links.
//   - DatabaseDriver / DatabaseDSN: record store (sqlite file, PostgreSQL DSN, or memory).
//   - StorageBackend: blob store, one of local, s3, memory.
//   - UploadDir: root directory of the local backend.
//   - S3AccessKey / S3SecretKey / S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
//   - MaxContentLength: largest accepted artifact in bytes.
//   - AllowedExtensions: lower-case file extensions accepted for file uploads.
//   - SecretKey: HMAC secret for session tokens; generated at startup when empty.
//   - SessionValidityDuration: lifetime of a session token.
//   - Timezone: IANA zone used to render timestamps.
//   - ReaperInterval: period of the background reaper, 0 disables it.
//   - LogBackend / LogLevel: logger selection.
//   - UsersEnvPrefix: prefix of the environment variables listing users.
type Config struct {
	EndpointAddrHTTP        string
	BaseURL                 string
	DatabaseDriver          string
	DatabaseDSN             string
	StorageBackend          string
	UploadDir               string
	S3AccessKey             string
	S3SecretKey             string
	S3Bucket                string
	S3Region                string
	S3BaseEndpoint          string
	MaxContentLength        int64
	AllowedExtensions       []string
	SecretKey               string
	SessionValidityDuration time.Duration
	Timezone                string
	ReaperInterval          time.Duration
	LogBackend              string
	LogLevel                string
	UsersEnvPrefix          string
}

// DefaultAllowedExtensions mirrors the extensions accepted out of the box.
var DefaultAllowedExtensions = []string{"txt", "pdf", "png", "jpg", "jpeg", "gif", "doc", "docx", "xls", "xlsx"}

// LoadDefaults populates Config with development defaults: sqlite record
// store and local uploads directory in the working directory.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.BaseURL = "http://localhost:8080"
	c.DatabaseDriver = DatabaseSQLite
	c.DatabaseDSN = "buzzdrop.db"
	c.StorageBackend = StorageLocal
	c.UploadDir = "uploads"
	c.S3Region = "us-east-1"
	c.MaxContentLength = 16 * 1024 * 1024
	c.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	c.SessionValidityDuration = 12 * time.Hour
	c.Timezone = "Europe/Warsaw"
	c.ReaperInterval = time.Minute
	c.LogBackend = logging.BackendSlog
	c.LogLevel = "info"
	c.UsersEnvPrefix = "BUZZDROP_USER_"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file (-c / -config) and finally from command-line
// flags. The result is validated.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable together.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageLocal:
		if strings.TrimSpace(c.UploadDir) == "" {
			return fmt.Errorf("upload dir must be set for local storage")
		}
	case StorageS3:
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3 configuration incomplete: bucket, access key and secret key are required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	switch c.DatabaseDriver {
	case DatabaseSQLite, DatabasePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database DSN must be set for %s", c.DatabaseDriver)
		}
	case DatabaseMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}

	if c.MaxContentLength < MinContentLength {
		return fmt.Errorf("max content length must be at least %d bytes", MinContentLength)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ReaperInterval < 0 {
		return fmt.Errorf("reaper interval must not be negative")
	}
	if c.SessionValidityDuration <= 0 {
		return fmt.Errorf("session validity must be positive")
	}
	return nil
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bad timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DisplayInfo returns settings that are safe to log; credentials are left out.
func (c *Config) DisplayInfo() map[string]any {
	info := map[string]any{
		"storage_backend":    c.StorageBackend,
		"database_driver":    c.DatabaseDriver,
		"max_file_size_mb":   float64(c.MaxContentLength) / (1024 * 1024),
		"allowed_extensions": strings.Join(c.AllowedExtensions, ", "),
		"http_addr":          c.EndpointAddrHTTP,
		"base_url":           c.BaseURL,
		"timezone":           c.Timezone,
		"reaper_interval":    c.ReaperInterval.String(),
		"upload_folder":      "N/A",
		"s3_configured":      false,
		"s3_region":          "N/A",
	}
	if c.StorageBackend == StorageLocal {
		info["upload_folder"] = c.UploadDir
	}
	if c.StorageBackend == StorageS3 {
		info["s3_configured"] = c.S3Bucket != ""
		info["s3_region"] = c.S3Region
	}
	return info
}

// NormalizeExtensions lower-cases, trims and de-duplicates extensions,
// dropping empty entries and leading dots.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
