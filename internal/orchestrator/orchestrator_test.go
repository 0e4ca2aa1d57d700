package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/23skdu/ingestord/internal/config"
	"github.com/23skdu/ingestord/internal/health"
	"github.com/23skdu/ingestord/internal/logstore"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Partitions = 2
	cfg.RateLimit = 2
	cfg.MetricsAddr = "127.0.0.1:0"

	o, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	o.pool.Start()
	o.wr.Start()
	t.Cleanup(func() {
		o.wr.Stop()
		o.pool.Stop()
	})
	return o
}

func TestHandle_HealthEndpoint(t *testing.T) {
	o := newTestOrchestrator(t)
	resp := o.handle(0, []byte("GET /health HTTP/1.1\r\n\r\n"))
	require.Contains(t, string(resp), "200 OK")
	require.Contains(t, string(resp), `"status":"healthy"`)
	require.Contains(t, string(resp), `"service":"ingestion"`)
}

func TestHandle_MetricsEndpointReturnsCounters(t *testing.T) {
	o := newTestOrchestrator(t)
	resp := o.handle(0, []byte("GET /metrics HTTP/1.1\r\n\r\n"))
	require.Contains(t, string(resp), "200 OK")

	body := extractBody(resp)
	var snap map[string]uint64
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Contains(t, snap, "metrics_received")
	require.Contains(t, snap, "batches_processed")
	require.Contains(t, snap, "validation_errors")
	require.Contains(t, snap, "rate_limited_requests")
}

func TestHandle_IngestHappyPath(t *testing.T) {
	o := newTestOrchestrator(t)
	raw := buildIngestRequest(`{"metrics":[{"name":"cpu","value":1.0}]}`, "client-happy")
	resp := o.handle(0, raw)

	require.Contains(t, string(resp), "200 OK")
	body := extractBody(resp)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	require.Equal(t, true, parsed["success"])
	require.Equal(t, float64(1), parsed["metrics_processed"])
}

func TestHandle_IngestBatchTooLarge(t *testing.T) {
	o := newTestOrchestrator(t)
	metrics := make([]string, 1001)
	for i := range metrics {
		metrics[i] = `{"name":"x","value":1.0}`
	}
	body := `{"metrics":[` + joinStrings(metrics, ",") + `]}`
	raw := buildIngestRequest(body, "client-big")
	resp := o.handle(0, raw)

	require.Contains(t, string(resp), "400 Bad Request")
	require.Contains(t, string(resp), "Batch size exceeds maximum")
}

func TestHandle_IngestNonFiniteValue(t *testing.T) {
	o := newTestOrchestrator(t)
	// encoding/json doesn't accept a bare NaN token, so this is rejected
	// at parse time rather than validation time — either way it lands
	// as a 400 with validation_errors incremented, matching the
	// documented non-finite-value failure mode.
	raw := buildIngestRequest(`{"metrics":[{"name":"x","value":NaN}]}`, "client-nan")
	resp := o.handle(0, raw)
	require.Contains(t, string(resp), "400 Bad Request")
}

func TestHandle_IngestEncodesBatchTimestampAsString(t *testing.T) {
	o := newTestOrchestrator(t)
	clientID := "client-wire"
	raw := buildIngestRequest(`{"metrics":[{"name":"cpu","value":1.0}]}`, clientID)
	resp := o.handle(0, raw)
	require.Contains(t, string(resp), "200 OK")

	partition := int(logstore.StableHash(clientID) % uint64(o.log.NumPartitions()))
	var msg []byte
	require.Eventually(t, func() bool {
		m, err := o.log.ReadMessage(partition, 1)
		if err != nil {
			return false
		}
		msg = m
		return true
	}, time.Second, 5*time.Millisecond, "writer never persisted the batch")

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(msg, &decoded))
	require.True(t, len(decoded["batch_timestamp"]) > 0 && decoded["batch_timestamp"][0] == '"',
		"batch_timestamp must be a quoted JSON string, got %s", decoded["batch_timestamp"])
}

func TestOrchestrator_HealthChecksCoverSinkAndListener(t *testing.T) {
	o := newTestOrchestrator(t)
	result := o.health.Check(context.Background())
	require.Contains(t, result.Components, "log_sink")
	require.Contains(t, result.Components, "event_loop_listener")
	require.Contains(t, result.Components, "writer_queue")

	// The listener hasn't started yet in this test (Run is never called),
	// so the listener checker must report unhealthy rather than a
	// disguised always-healthy no-op.
	require.Equal(t, health.StatusUnhealthy, result.Components["event_loop_listener"].Status)
	require.Equal(t, health.StatusHealthy, result.Components["log_sink"].Status)
}

func TestHandle_RateLimitDenial(t *testing.T) {
	o := newTestOrchestrator(t)
	client := "client-limited"
	body := `{"metrics":[{"name":"cpu","value":1.0}]}`

	first := o.handle(0, buildIngestRequest(body, client))
	second := o.handle(0, buildIngestRequest(body, client))
	third := o.handle(0, buildIngestRequest(body, client))

	require.Contains(t, string(first), "200 OK")
	require.Contains(t, string(second), "200 OK")
	require.Contains(t, string(third), "429")
	require.Contains(t, string(third), "Rate limit exceeded")
}

func buildIngestRequest(body, clientID string) []byte {
	return []byte("POST /metrics HTTP/1.1\r\nContent-Length: " + itoa(len(body)) +
		"\r\nAuthorization: " + clientID + "\r\n\r\n" + body)
}

func extractBody(resp []byte) []byte {
	idx := indexOf(resp, []byte("\r\n\r\n"))
	if idx < 0 {
		return nil
	}
	return resp[idx+4:]
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
