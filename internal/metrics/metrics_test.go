package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnap_ReflectsIncrements(t *testing.T) {
	before := Snap()

	AddMetricsReceived(3)
	IncBatchesProcessed()
	IncValidationErrors()
	IncRateLimitedRequests()

	after := Snap()
	require.Equal(t, before.MetricsReceived+3, after.MetricsReceived)
	require.Equal(t, before.BatchesProcessed+1, after.BatchesProcessed)
	require.Equal(t, before.ValidationErrors+1, after.ValidationErrors)
	require.Equal(t, before.RateLimitedRequests+1, after.RateLimitedRequests)
}

func TestAddMetricsReceived_Zero(t *testing.T) {
	before := Snap()
	AddMetricsReceived(0)
	after := Snap()
	require.Equal(t, before.MetricsReceived, after.MetricsReceived)
}
