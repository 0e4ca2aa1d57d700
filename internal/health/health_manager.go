package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SystemHealth represents the overall system health.
type SystemHealth struct {
	Status     Status                      `json:"status"`
	Service    string                      `json:"service"`
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     time.Duration               `json:"uptime"`
	Components map[string]*ComponentHealth `json:"components"`
	System     *SystemInfo                 `json:"system"`
	CheckCount int64                       `json:"check_count"`
}

// SystemInfo provides process-level information.
type SystemInfo struct {
	GoVersion      string `json:"go_version"`
	NumGoroutines  int    `json:"num_goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	NumGC          uint32 `json:"num_gc"`
}

// Checker is implemented by anything whose liveness can be probed.
type Checker interface {
	Name() string
	Check(ctx context.Context) *ComponentHealth
}

// Manager runs registered Checkers and aggregates a SystemHealth snapshot.
// Distributed tracing spans are intentionally absent since nothing else in
// this service carries an OTel SDK.
type Manager struct {
	startTime time.Time
	service   string
	logger    *zap.Logger

	mu       sync.RWMutex
	checkers map[string]Checker

	checkCounter int64

	checkDuration   *prometheus.HistogramVec
	componentStatus *prometheus.GaugeVec
}

// NewManager creates a health manager for the named service.
func NewManager(service string, logger *zap.Logger, reg prometheus.Registerer) *Manager {
	m := &Manager{
		startTime: time.Now(),
		service:   service,
		logger:    logger,
		checkers:  make(map[string]Checker),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestord_health_check_duration_seconds",
				Help:    "Duration of individual component health checks",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"component"},
		),
		componentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingestord_component_health_status",
				Help: "Component health status (1=healthy, 0.5=degraded, 0=unhealthy)",
			},
			[]string{"component"},
		),
	}
	if reg != nil {
		registerOrReuse(reg, &m.checkDuration)
		registerOrReuse(reg, &m.componentStatus)
	}
	return m
}

// registerOrReuse registers *c with reg, and if an equivalent collector is
// already registered (common when more than one Manager shares a
// registry, e.g. across tests in one process), swaps *c for the
// previously registered instance instead of panicking.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				*c = existing
			}
		}
	}
}

// Register adds a checker; a later Register with the same name replaces it.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
	m.logger.Debug("registered health checker", zap.String("component", c.Name()))
}

// Check runs every registered checker and aggregates the result.
func (m *Manager) Check(ctx context.Context) *SystemHealth {
	atomic.AddInt64(&m.checkCounter, 1)

	health := &SystemHealth{
		Status:     StatusHealthy,
		Service:    m.service,
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime),
		Components: make(map[string]*ComponentHealth),
		System:     systemInfo(),
		CheckCount: atomic.LoadInt64(&m.checkCounter),
	}

	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	for _, c := range checkers {
		start := time.Now()
		result := c.Check(ctx)
		m.checkDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())

		var statusValue float64
		switch result.Status {
		case StatusHealthy:
			statusValue = 1.0
		case StatusDegraded:
			statusValue = 0.5
		case StatusUnhealthy:
			statusValue = 0.0
		}
		m.componentStatus.WithLabelValues(c.Name()).Set(statusValue)

		health.Components[c.Name()] = result

		if result.Status == StatusUnhealthy {
			health.Status = StatusUnhealthy
		} else if result.Status == StatusDegraded && health.Status == StatusHealthy {
			health.Status = StatusDegraded
		}
	}

	return health
}

func systemInfo() *SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &SystemInfo{
		GoVersion:      runtime.Version(),
		NumGoroutines:  runtime.NumGoroutine(),
		HeapAllocBytes: m.HeapAlloc,
		NumGC:          m.NumGC,
	}
}

// HTTPHandler serves `{"status":"healthy","service":"ingestion"}` at its
// core, plus a detailed component breakdown under "components" for
// operators.
func (m *Manager) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := m.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if h.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(h)
	})
}
