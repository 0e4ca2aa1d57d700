package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsZeroPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidPort)
}

func TestValidate_RejectsUnknownSink(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sink = SinkKind("kafka")
	require.ErrorIs(t, cfg.Validate(), ErrInvalidSink)
}

func TestValidate_S3SinkRequiresBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sink = SinkS3
	require.ErrorIs(t, cfg.Validate(), ErrMissingS3Bucket)

	cfg.S3Bucket = "metrics"
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidLogLevel)
}
