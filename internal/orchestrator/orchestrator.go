// Package orchestrator wires the event loop, worker pool, rate limiter,
// async writer, and log sink together and exposes the three HTTP
// endpoints the ingestion API contract names.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/ingestord/internal/broker"
	"github.com/23skdu/ingestord/internal/config"
	ierrors "github.com/23skdu/ingestord/internal/errors"
	"github.com/23skdu/ingestord/internal/eventloop"
	"github.com/23skdu/ingestord/internal/health"
	"github.com/23skdu/ingestord/internal/logstore"
	"github.com/23skdu/ingestord/internal/metrics"
	"github.com/23skdu/ingestord/internal/model"
	"github.com/23skdu/ingestord/internal/ratelimiter"
	"github.com/23skdu/ingestord/internal/workerpool"
	"github.com/23skdu/ingestord/internal/writer"
)

// Orchestrator owns every long-lived component and the HTTP surface that
// fronts them.
type Orchestrator struct {
	cfg    config.Config
	logger *zap.Logger

	limiter *ratelimiter.Limiter
	pool    *workerpool.Pool
	wr      *writer.Writer
	loop    eventloop.Loop
	log     *logstore.Log
	health  *health.Manager

	// listening reflects whether the event loop's listener is currently
	// accepting connections; it backs the "event_loop_listener" health
	// checker registered in New.
	listening *atomic.Bool

	ln         net.Listener
	metricsSrv *http.Server
}

// New wires every component from cfg without starting any of them.
func New(cfg config.Config, logger *zap.Logger) (*Orchestrator, error) {
	var sink logstore.Sink
	var localLog *logstore.Log
	var sinkCheckerName string
	var sinkProbe func(ctx context.Context) error

	switch cfg.Sink {
	case config.SinkS3:
		s, err := broker.New(&broker.Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			UsePathStyle:    cfg.S3UsePathStyle,
			Partitions:      cfg.Partitions,
		})
		if err != nil {
			return nil, fmt.Errorf("building s3 sink: %w", err)
		}
		sink = s
		sinkCheckerName = "s3_sink"
		sinkProbe = s.Ping
	case config.SinkLocal:
		l, err := logstore.Open(cfg.DataDir, cfg.Partitions)
		if err != nil {
			return nil, fmt.Errorf("opening local log: %w", err)
		}
		sink = l
		localLog = l
		sinkCheckerName = "log_sink"
		sinkProbe = l.Ping
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Sink)
	}

	pool := workerpool.New(cfg.WorkerCount, logger)
	wr := writer.New(string(cfg.Sink), sink, logger)
	limiter := ratelimiter.New(cfg.RateLimit)
	loop := eventloop.New(pool)

	var listening atomic.Bool
	hm := health.NewManager("ingestion", logger, prometheus.DefaultRegisterer)
	hm.Register(health.NewQueueDepthChecker("writer_queue", 1000, wr.Depth))
	hm.Register(health.NewSinkChecker(sinkCheckerName, sinkProbe))
	hm.Register(health.NewListenerChecker("event_loop_listener", func(_ context.Context) error {
		if !listening.Load() {
			return errors.New("event loop listener is not accepting connections")
		}
		return nil
	}))

	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		limiter:   limiter,
		pool:      pool,
		wr:        wr,
		loop:      loop,
		log:       localLog,
		health:    hm,
		listening: &listening,
	}, nil
}

// Run starts every component and blocks until both the ingestion listener
// and the ops server exit, which Stop triggers. The two run under an
// errgroup.Group, and Run returns the first non-nil error once both have
// returned; a failure in one does not stop the other.
func (o *Orchestrator) Run() error {
	o.pool.Start()
	o.wr.Start()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", o.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", o.cfg.Port, err)
	}
	o.ln = ln
	o.listening.Store(true)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", o.health.HTTPHandler())
	o.metricsSrv = &http.Server{
		Addr:    o.cfg.MetricsAddr,
		Handler: mux,
	}

	o.logger.Info("ingestion orchestrator started",
		zap.Int("port", o.cfg.Port),
		zap.String("sink", string(o.cfg.Sink)),
		zap.Int("partitions", o.cfg.Partitions))

	var g errgroup.Group
	g.Go(func() error {
		if err := o.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return o.loop.Run(ln, o.handle)
	})

	return g.Wait()
}

// Stop tears down every component: the event loop first (so no new
// requests are admitted), then the writer and pool, then the ops server.
func (o *Orchestrator) Stop() {
	o.listening.Store(false)
	o.loop.Stop()
	o.wr.Stop()
	o.pool.Stop()

	if o.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ShutdownGrace)
		defer cancel()
		o.metricsSrv.Shutdown(ctx)
	}
}

// handle implements the three-endpoint HTTP contract. It always runs on
// the worker pool, never on the event loop goroutine.
func (o *Orchestrator) handle(_ int, raw []byte) []byte {
	req := parseRequest(raw)

	switch {
	case req.method == "GET" && req.path == "/health":
		return o.handleHealth()
	case req.method == "GET" && req.path == "/metrics":
		return o.handleMetrics()
	case req.method == "POST" && req.path == "/metrics":
		return o.handleIngest(req)
	default:
		return buildResponse(http.StatusNotFound, "Not Found", []byte(`{"error":"not found"}`))
	}
}

func (o *Orchestrator) handleHealth() []byte {
	body, _ := json.Marshal(map[string]string{"status": "healthy", "service": "ingestion"})
	return buildResponse(http.StatusOK, "OK", body)
}

func (o *Orchestrator) handleMetrics() []byte {
	body, _ := json.Marshal(metrics.Snap())
	return buildResponse(http.StatusOK, "OK", body)
}

func (o *Orchestrator) handleIngest(req parsedRequest) []byte {
	clientID := req.clientID()

	if !o.limiter.Allow(clientID) {
		metrics.IncRateLimitedRequests()
		body, _ := json.Marshal(map[string]string{"error": "Rate limit exceeded"})
		return buildResponse(http.StatusTooManyRequests, "Too Many Requests", body)
	}

	var batch model.MetricBatch
	if err := json.Unmarshal(req.body, &batch); err != nil {
		o.rejectIngest(clientID, "decode", err)
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		return buildResponse(http.StatusBadRequest, "Bad Request", body)
	}
	if err := batch.Validate(); err != nil {
		o.rejectIngest(clientID, "validate", err)
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		return buildResponse(http.StatusBadRequest, "Bad Request", body)
	}

	stats := model.ComputeBatchStats(&batch)
	metrics.ObserveBatchStats(stats)

	payload, err := json.Marshal(logMessage{
		BatchTimestamp: strconv.FormatInt(time.Now().UnixMilli(), 10),
		Metrics:        batch.Metrics,
	})
	if err != nil {
		o.rejectIngest(clientID, "encode", err)
		body, _ := json.Marshal(map[string]string{"error": "failed to encode batch"})
		return buildResponse(http.StatusBadRequest, "Bad Request", body)
	}

	o.wr.Enqueue(clientID, payload)

	metrics.AddMetricsReceived(uint64(len(batch.Metrics)))
	metrics.IncBatchesProcessed()

	body, _ := json.Marshal(map[string]any{
		"success":           true,
		"metrics_processed": len(batch.Metrics),
	})
	return buildResponse(http.StatusOK, "OK", body)
}

// rejectIngest records a rejected batch: the counter the black-box contract
// mandates, plus a structured error for operators correlating client-side
// reports with server-side logs.
func (o *Orchestrator) rejectIngest(clientID, operation string, err error) {
	metrics.IncValidationErrors()
	if o.logger == nil {
		return
	}
	structured := ierrors.WrapValidationError(err, "orchestrator.handleIngest."+operation, "rejected ingest batch").
		WithContext(ierrors.ContextClientID, clientID)
	o.logger.Warn("ingest batch rejected", zap.Error(structured))
}

// logMessage is the JSON payload produced onto the log, per the on-disk
// message contract. BatchTimestamp is a quoted decimal string, not a bare
// JSON number, matching the wire format the original ingestion service
// produces for its batch_timestamp field.
type logMessage struct {
	BatchTimestamp string         `json:"batch_timestamp"`
	Metrics        []model.Metric `json:"metrics"`
}
