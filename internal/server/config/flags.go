package config

import (
	"flag"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/flagx"
)

var knownFlags = []string{
	"-a", "-l", "-D", "-d", "-B", "-f", "-U", "-P", "-b", "-g", "-e",
	"-x", "-X", "-s", "-t", "-z", "-r", "-L", "-v",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-l string   public base URL for share links
//	-D string   database driver: sqlite, postgres, memory
//	-d string   database DSN (sqlite file path or PostgreSQL DSN)
//	-B string   storage backend: local, s3, memory
//	-f string   upload directory for the local backend
//	-U string   S3 access key
//	-P string   S3 secret key
//	-b string   S3 bucket
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-x int      max content length, bytes
//	-X string   allowed extensions, comma separated
//	-s string   session token secret
//	-t int      session validity, minutes
//	-z string   display time zone
//	-r int      reaper interval, seconds (0 disables)
//	-L string   log backend: slog, zap
//	-v string   log level
//
// Only the flags above are parsed; everything else in args is ignored so
// -c / -config can coexist.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.BaseURL, "l", config.BaseURL, "public base URL")
	fs.StringVar(&config.DatabaseDriver, "D", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageBackend, "B", config.StorageBackend, "storage backend")
	fs.StringVar(&config.UploadDir, "f", config.UploadDir, "upload directory")
	fs.StringVar(&config.S3AccessKey, "U", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "P", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.Int64Var(&config.MaxContentLength, "x", config.MaxContentLength, "max content length (bytes)")
	extensions := fs.String("X", strings.Join(config.AllowedExtensions, ","), "allowed extensions")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session validity (in minutes)")
	fs.StringVar(&config.Timezone, "z", config.Timezone, "display time zone")
	reaperInterval := fs.Int("r", int(config.ReaperInterval.Seconds()), "reaper interval (in seconds)")
	fs.StringVar(&config.LogBackend, "L", config.LogBackend, "log backend")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return err
	}

	config.AllowedExtensions = NormalizeExtensions(strings.Split(*extensions, ","))
	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.ReaperInterval = time.Duration(*reaperInterval) * time.Second
	return nil
}
