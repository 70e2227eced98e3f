package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/buzzdrop/internal/flagx"
	"github.com/dmitrijs2005/buzzdrop/internal/timex"
	"github.com/tidwall/jsonc"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "90s" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP        string         `json:"endpoint_addr_http"`
	BaseURL                 string         `json:"base_url"`
	DatabaseDriver          string         `json:"database_driver"`
	DatabaseDSN             string         `json:"database_dsn"`
	StorageBackend          string         `json:"storage_backend"`
	UploadDir               string         `json:"upload_dir"`
	S3AccessKey             string         `json:"s3_access_key"`
	S3SecretKey             string         `json:"s3_secret_key"`
	S3Bucket                string         `json:"s3_bucket"`
	S3Region                string         `json:"s3_region"`
	S3BaseEndpoint          string         `json:"s3_base_endpoint"`
	MaxContentLength        int64          `json:"max_content_length"`
	AllowedExtensions       []string       `json:"allowed_extensions"`
	SecretKey               string         `json:"secret_key"`
	SessionValidityDuration timex.Duration `json:"session_validity_duration"`
	Timezone                string         `json:"timezone"`
	ReaperInterval          timex.Duration `json:"reaper_interval"`
	LogBackend              string         `json:"log_backend"`
	LogLevel                string         `json:"log_level"`
	UsersEnvPrefix          string         `json:"users_env_prefix"`
}

func toJSONConfig(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrHTTP:        c.EndpointAddrHTTP,
		BaseURL:                 c.BaseURL,
		DatabaseDriver:          c.DatabaseDriver,
		DatabaseDSN:             c.DatabaseDSN,
		StorageBackend:          c.StorageBackend,
		UploadDir:               c.UploadDir,
		S3AccessKey:             c.S3AccessKey,
		S3SecretKey:             c.S3SecretKey,
		S3Bucket:                c.S3Bucket,
		S3Region:                c.S3Region,
		S3BaseEndpoint:          c.S3BaseEndpoint,
		MaxContentLength:        c.MaxContentLength,
		AllowedExtensions:       c.AllowedExtensions,
		SecretKey:               c.SecretKey,
		SessionValidityDuration: timex.Duration{Duration: c.SessionValidityDuration},
		Timezone:                c.Timezone,
		ReaperInterval:          timex.Duration{Duration: c.ReaperInterval},
		LogBackend:              c.LogBackend,
		LogLevel:                c.LogLevel,
		UsersEnvPrefix:          c.UsersEnvPrefix,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrHTTP = j.EndpointAddrHTTP
	c.BaseURL = j.BaseURL
	c.DatabaseDriver = j.DatabaseDriver
	c.DatabaseDSN = j.DatabaseDSN
	c.StorageBackend = j.StorageBackend
	c.UploadDir = j.UploadDir
	c.S3AccessKey = j.S3AccessKey
	c.S3SecretKey = j.S3SecretKey
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.MaxContentLength = j.MaxContentLength
	c.AllowedExtensions = NormalizeExtensions(j.AllowedExtensions)
	c.SecretKey = j.SecretKey
	c.SessionValidityDuration = j.SessionValidityDuration.Duration
	c.Timezone = j.Timezone
	c.ReaperInterval = j.ReaperInterval.Duration
	c.LogBackend = j.LogBackend
	c.LogLevel = j.LogLevel
	c.UsersEnvPrefix = j.UsersEnvPrefix
}

// parseJSON overlays the file named by -c / -config onto config. Keys
// missing from the file keep their current value. Comments and trailing
// commas are allowed.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	j := toJSONConfig(config)
	if err := json.Unmarshal(jsonc.ToJSON(data), j); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	j.apply(config)
	return nil
}
