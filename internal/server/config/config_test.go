package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, "http://localhost:8080", c.BaseURL)
	assert.Equal(t, DatabaseSQLite, c.DatabaseDriver)
	assert.Equal(t, "buzzdrop.db", c.DatabaseDSN)
	assert.Equal(t, StorageLocal, c.StorageBackend)
	assert.Equal(t, "uploads", c.UploadDir)
	assert.Equal(t, "us-east-1", c.S3Region)
	assert.Equal(t, int64(16*1024*1024), c.MaxContentLength)
	assert.Equal(t, DefaultAllowedExtensions, c.AllowedExtensions)
	assert.Equal(t, 12*time.Hour, c.SessionValidityDuration)
	assert.Equal(t, "Europe/Warsaw", c.Timezone)
	assert.Equal(t, time.Minute, c.ReaperInterval)
	assert.Equal(t, "BUZZDROP_USER_", c.UsersEnvPrefix)
	assert.Empty(t, c.SecretKey)
	require.NoError(t, c.Validate())

	// defaults must not alias the package-level slice
	c.AllowedExtensions[0] = "exe"
	assert.Equal(t, "txt", DefaultAllowedExtensions[0])
}

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	c, err := LoadConfig([]string{"server"})
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	if diff := cmp.Diff(&want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"storage_backend": "memory",
		"database_driver": "memory",
		"timezone":        "UTC",
	})

	c, err := LoadConfig([]string{"server", "-c", path, "-z", "America/New_York", "-r", "0"})
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, c.StorageBackend)
	assert.Equal(t, DatabaseMemory, c.DatabaseDriver)
	assert.Equal(t, "America/New_York", c.Timezone)
	assert.Equal(t, time.Duration(0), c.ReaperInterval)
}

func TestLoadConfig_InvalidIsRejected(t *testing.T) {
	_, err := LoadConfig([]string{"server", "-B", "s3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 configuration incomplete")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "memory everything", mutate: func(c *Config) {
			c.StorageBackend = StorageMemory
			c.DatabaseDriver = DatabaseMemory
			c.DatabaseDSN = ""
		}},
		{name: "complete s3", mutate: func(c *Config) {
			c.StorageBackend = StorageS3
			c.S3Bucket, c.S3AccessKey, c.S3SecretKey = "b", "ak", "sk"
		}},
		{name: "s3 without bucket", mutate: func(c *Config) {
			c.StorageBackend = StorageS3
			c.S3AccessKey, c.S3SecretKey = "ak", "sk"
		}, wantErr: "S3 configuration incomplete"},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "ftp" }, wantErr: "unknown storage backend"},
		{name: "empty upload dir", mutate: func(c *Config) { c.UploadDir = "  " }, wantErr: "upload dir"},
		{name: "unknown driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }, wantErr: "unknown database driver"},
		{name: "postgres without dsn", mutate: func(c *Config) {
			c.DatabaseDriver = DatabasePostgres
			c.DatabaseDSN = ""
		}, wantErr: "database DSN"},
		{name: "tiny max length", mutate: func(c *Config) { c.MaxContentLength = 1023 }, wantErr: "at least 1024"},
		{name: "boundary max length", mutate: func(c *Config) { c.MaxContentLength = MinContentLength }},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "bad timezone"},
		{name: "negative reaper", mutate: func(c *Config) { c.ReaperInterval = -time.Second }, wantErr: "reaper interval"},
		{name: "zero session", mutate: func(c *Config) { c.SessionValidityDuration = 0 }, wantErr: "session validity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDisplayInfo(t *testing.T) {
	var c Config
	c.LoadDefaults()
	c.S3SecretKey = "hunter2"
	c.SecretKey = "sessions"

	info := c.DisplayInfo()
	assert.Equal(t, "local", info["storage_backend"])
	assert.Equal(t, "uploads", info["upload_folder"])
	assert.Equal(t, false, info["s3_configured"])
	assert.Equal(t, 16.0, info["max_file_size_mb"])
	for k, v := range info {
		assert.NotEqual(t, "hunter2", v, k)
		assert.NotEqual(t, "sessions", v, k)
	}

	c.StorageBackend = StorageS3
	c.S3Bucket = "drops"
	info = c.DisplayInfo()
	assert.Equal(t, "N/A", info["upload_folder"])
	assert.Equal(t, true, info["s3_configured"])
	assert.Equal(t, "us-east-1", info["s3_region"])
}

func TestNormalizeExtensions(t *testing.T) {
	got := NormalizeExtensions([]string{" PDF", ".txt", "", "pdf", "Jpg "})
	assert.Equal(t, []string{"pdf", "txt", "jpg"}, got)
}
