// Package broker implements the pluggable remote-sink alternative to the
// local partitioned log: an S3-compatible object store satisfying the
// same logstore.Sink contract, so the orchestrator can swap sinks without
// touching request handling.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/23skdu/ingestord/internal/logstore"
)

// Config configures the S3-compatible sink.
type Config struct {
	Endpoint        string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UsePathStyle    bool
	Partitions      int

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if c.Partitions <= 0 {
		return errors.New("partition count must be > 0")
	}
	return nil
}

// Sink implements logstore.Sink against an S3-compatible bucket. Each
// partition's monotonic offset is tracked in memory, mirroring the local
// log's per-partition counter; unlike the local log there is no durable
// offset.txt, since the bucket itself is the durable store of record.
type Sink struct {
	client *s3.Client
	bucket string
	prefix string

	partitions int
	mu         []sync.Mutex
	nextOffset []uint64
}

var _ logstore.Sink = (*Sink)(nil)

// New builds a Sink from Config: a pooled HTTP transport, static
// credentials when an access key is set, and an optional custom endpoint.
func New(cfg *Config) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid broker config: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 100
	}
	maxIdleConnsPerHost := cfg.MaxIdleConnsPerHost
	if maxIdleConnsPerHost <= 0 {
		maxIdleConnsPerHost = 100
	}
	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout <= 0 {
		idleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
	}
	httpClient := &http.Client{Transport: transport}

	var credProvider aws.CredentialsProviderFunc
	if cfg.AccessKeyID != "" {
		static := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		credProvider = func(ctx context.Context) (aws.Credentials, error) {
			return static.Retrieve(ctx)
		}
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(httpClient),
	}
	if credProvider != nil {
		opts = append(opts, config.WithCredentialsProvider(credProvider))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Sink{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     strings.TrimSuffix(cfg.Prefix, "/"),
		partitions: cfg.Partitions,
		mu:         make([]sync.Mutex, cfg.Partitions),
		nextOffset: make([]uint64, cfg.Partitions),
	}, nil
}

// Produce assigns key to a partition via the same stable-hash rule as the
// local log, then uploads message as an object keyed by
// <prefix>/partition-<p>/<offset>.msg. The offset is written in plain
// decimal, not zero-padded to 20 digits like the local log's file names.
func (s *Sink) Produce(key string, message []byte) (int, uint64, error) {
	idx := int(logstore.StableHash(key) % uint64(s.partitions))

	s.mu[idx].Lock()
	offset := atomic.AddUint64(&s.nextOffset[idx], 1)
	s.mu[idx].Unlock()

	objectKey := s.objectKey(idx, offset)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   strings.NewReader(string(message)),
	})
	if err != nil {
		return idx, 0, logstore.NewError("upload", fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), offset, err)
	}
	return idx, offset, nil
}

// Ping gives a health checker a lightweight connectivity probe against the
// backing bucket: HeadBucket confirms the bucket exists and is reachable
// with the configured credentials without transferring any object data.
func (s *Sink) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *Sink) objectKey(partition int, offset uint64) string {
	name := strconv.FormatUint(offset, 10) + ".msg"
	if s.prefix == "" {
		return fmt.Sprintf("partition-%d/%s", partition, name)
	}
	return fmt.Sprintf("%s/partition-%d/%s", s.prefix, partition, name)
}
