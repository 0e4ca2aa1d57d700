// Package config defines the ingestion service's runtime configuration,
// bound from CLI flags (cobra), environment variables (envconfig), and
// optionally a .env file (godotenv), following the same layering the
// teacher codebase's command entrypoint uses.
package config

import (
	"errors"
	"time"
)

// SinkKind selects which logstore.Sink backs the async writer.
type SinkKind string

const (
	SinkLocal SinkKind = "local"
	SinkS3    SinkKind = "s3"
)

// Config holds every knob the CLI surface exposes.
type Config struct {
	Port          int           `envconfig:"PORT" default:"8080"`
	MetricsAddr   string        `envconfig:"METRICS_ADDR" default:"0.0.0.0:9090"`
	Partitions    int           `envconfig:"PARTITIONS" default:"8"`
	RateLimit     int           `envconfig:"RATE_LIMIT" default:"100"`
	WorkerCount   int           `envconfig:"WORKERS" default:"16"`
	DataDir       string        `envconfig:"DATA_DIR" default:"./data"`
	Sink          SinkKind      `envconfig:"SINK" default:"local"`
	LogFormat     string        `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownGrace time.Duration `envconfig:"SHUTDOWN_GRACE" default:"5s"`

	S3Endpoint        string `envconfig:"S3_ENDPOINT"`
	S3Bucket          string `envconfig:"S3_BUCKET"`
	S3Prefix          string `envconfig:"S3_PREFIX"`
	S3AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Region          string `envconfig:"S3_REGION"`
	S3UsePathStyle    bool   `envconfig:"S3_USE_PATH_STYLE"`
}

// Validation errors, one per invariant.
var (
	ErrInvalidPort        = errors.New("port must be > 0")
	ErrInvalidMetricsAddr = errors.New("metrics_addr cannot be empty")
	ErrInvalidPartitions  = errors.New("partitions must be > 0")
	ErrInvalidRateLimit   = errors.New("rate_limit must be > 0")
	ErrInvalidWorkerCount = errors.New("worker_count must be > 0")
	ErrInvalidDataDir     = errors.New("data_dir cannot be empty")
	ErrInvalidSink        = errors.New("sink must be 'local' or 's3'")
	ErrInvalidLogFormat   = errors.New("log_format must be 'json', 'console', or 'text'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
	ErrMissingS3Bucket    = errors.New("s3_bucket is required when sink is 's3'")
)

// DefaultConfig returns a Config populated with the same defaults as the
// envconfig struct tags, plus an S3Region of "us-east-1" (which has no
// struct-tag default), for callers constructing one outside the CLI path
// (tests, embedding).
func DefaultConfig() Config {
	return Config{
		Port:          8080,
		MetricsAddr:   "0.0.0.0:9090",
		Partitions:    8,
		RateLimit:     100,
		WorkerCount:   16,
		DataDir:       "./data",
		Sink:          SinkLocal,
		LogFormat:     "json",
		LogLevel:      "info",
		ShutdownGrace: 5 * time.Second,
		S3Region:      "us-east-1",
	}
}

// Validate checks every field invariant, returning the first violation.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		return ErrInvalidPort
	}
	if c.MetricsAddr == "" {
		return ErrInvalidMetricsAddr
	}
	if c.Partitions <= 0 {
		return ErrInvalidPartitions
	}
	if c.RateLimit <= 0 {
		return ErrInvalidRateLimit
	}
	if c.WorkerCount <= 0 {
		return ErrInvalidWorkerCount
	}
	if c.DataDir == "" {
		return ErrInvalidDataDir
	}
	if c.Sink != SinkLocal && c.Sink != SinkS3 {
		return ErrInvalidSink
	}
	if c.Sink == SinkS3 && c.S3Bucket == "" {
		return ErrMissingS3Bucket
	}
	switch c.LogFormat {
	case "json", "console", "text":
	default:
		return ErrInvalidLogFormat
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}
