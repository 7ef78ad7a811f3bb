// Package sink ships log records to a remote log-aggregation endpoint that
// accepts the Loki push format.
//
// Records are queued in memory and pushed in batches by a single
// background goroutine. The queue is bounded: when it is full, or the
// endpoint is failing, records are dropped and counted. Callers never
// block on the network, so a failing sink cannot change the outcome or
// the latency of the request that produced the record.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultBatchSize  = 100
	DefaultBatchWait  = time.Second
	DefaultBufferSize = 10000
	DefaultTimeout    = 5 * time.Second

	// DefaultDiagnosticInterval throttles sink failure reports on the
	// console so a dead endpoint does not flood it.
	DefaultDiagnosticInterval = 30 * time.Second
)

// Drop reasons reported in log_sink_records_dropped_total.
const (
	DropQueueFull  = "queue_full"
	DropStopped    = "stopped"
	DropPushFailed = "push_failed"
)

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("log sink stopped")

// ErrQueueFull is returned by Enqueue when the buffer is full.
var ErrQueueFull = errors.New("log sink queue full")

// Config configures a Sink.
type Config struct {
	// URL is the push endpoint, e.g. http://loki:3100/loki/api/v1/push.
	URL string

	// Labels identify the stream of every record, typically app and env.
	Labels map[string]string

	BatchSize  int
	BatchWait  time.Duration
	BufferSize int
	Timeout    time.Duration
	Compress   bool

	// MetadataKeys are string fields lifted from each record into the
	// per-line structured metadata so they can be queried without parsing.
	MetadataKeys []string
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchWait <= 0 {
		c.BatchWait = DefaultBatchWait
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Record is a single encoded log line waiting to be shipped.
type Record struct {
	Time     time.Time
	Level    string
	Line     string
	Metadata map[string]string
}

// Stats is a point-in-time view of the sink.
type Stats struct {
	Sent        uint64
	Dropped     uint64
	QueueLength int
	LastError   string
	LastErrorAt time.Time

	// Healthy is false while the most recent push failed.
	Healthy bool
}

// Option configures a Sink.
type Option func(*Sink)

// WithHTTPClient sets the client used for pushes.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sink) {
		s.client = client
	}
}

// WithDiagnosticLogger sets the logger that reports sink failures. It must
// not write back into the sink.
func WithDiagnosticLogger(logger *zap.Logger) Option {
	return func(s *Sink) {
		s.diag = logger
	}
}

// WithRegisterer registers the sink metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Sink) {
		s.registerer = reg
	}
}

// WithDiagnosticInterval overrides the minimum interval between failure
// reports.
func WithDiagnosticInterval(d time.Duration) Option {
	return func(s *Sink) {
		s.report = &rate.Sometimes{Interval: d}
	}
}

// Sink batches records and pushes them to the remote endpoint.
type Sink struct {
	cfg        Config
	client     *http.Client
	diag       *zap.Logger
	registerer prometheus.Registerer
	report     *rate.Sometimes
	metrics    *sinkMetrics

	mu      sync.RWMutex
	stopped bool
	queue   chan Record

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
	healthy atomic.Bool

	errMu       sync.Mutex
	lastErr     string
	lastErrorAt time.Time
}

// New creates a sink. Start must be called before records are shipped.
func New(cfg Config, opts ...Option) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("log sink url is required")
	}
	cfg.applyDefaults()

	s := &Sink{
		cfg:    cfg,
		client: &http.Client{},
		diag:   zap.NewNop(),
		report: &rate.Sometimes{Interval: DefaultDiagnosticInterval},
		queue:  make(chan Record, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	s.healthy.Store(true)

	for _, opt := range opts {
		opt(s)
	}

	s.metrics = newSinkMetrics(func() float64 { return float64(len(s.queue)) })
	if s.registerer != nil {
		if err := s.metrics.register(s.registerer); err != nil {
			return nil, fmt.Errorf("failed to register log sink metrics: %w", err)
		}
	}

	return s, nil
}

// Start launches the background shipper.
func (s *Sink) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Enqueue offers a record to the sink without blocking. The record is
// dropped when the queue is full or the sink has stopped.
func (s *Sink) Enqueue(r Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		s.drop(DropStopped, 1)
		return ErrStopped
	}

	select {
	case s.queue <- r:
		return nil
	default:
		s.drop(DropQueueFull, 1)
		s.report.Do(func() {
			s.diag.Warn("log sink queue full, dropping records",
				zap.Int("buffer_size", s.cfg.BufferSize),
			)
		})
		return ErrQueueFull
	}
}

// Stop stops accepting records and flushes what is queued. It returns when
// the queue is drained or ctx is done.
func (s *Sink) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.queue)
		s.mu.Unlock()
		// Drain even if Start was never called.
		s.Start()
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current sink statistics.
func (s *Sink) Stats() Stats {
	s.errMu.Lock()
	lastErr, lastAt := s.lastErr, s.lastErrorAt
	s.errMu.Unlock()

	return Stats{
		Sent:        s.sent.Load(),
		Dropped:     s.dropped.Load(),
		QueueLength: len(s.queue),
		LastError:   lastErr,
		LastErrorAt: lastAt,
		Healthy:     s.healthy.Load(),
	}
}

func (s *Sink) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.BatchWait)
	defer ticker.Stop()

	batch := make([]Record, 0, s.cfg.BatchSize)
	for {
		select {
		case r, ok := <-s.queue:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, r)
			if len(batch) >= s.cfg.BatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Sink) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if err := s.push(ctx, batch); err != nil {
		s.metrics.batches.WithLabelValues("failure").Inc()
		s.drop(DropPushFailed, len(batch))
		s.healthy.Store(false)

		s.errMu.Lock()
		s.lastErr = err.Error()
		s.lastErrorAt = time.Now()
		s.errMu.Unlock()

		s.report.Do(func() {
			s.diag.Warn("log sink push failed, dropping batch",
				zap.Error(err),
				zap.Int("records", len(batch)),
			)
		})
		return
	}

	s.metrics.batches.WithLabelValues("success").Inc()
	s.metrics.sent.Add(float64(len(batch)))
	s.sent.Add(uint64(len(batch)))
	s.healthy.Store(true)
}

func (s *Sink) push(ctx context.Context, batch []Record) error {
	payload, err := json.Marshal(buildPushRequest(s.cfg.Labels, batch))
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	body := payload
	if s.cfg.Compress {
		body, err = gzipBytes(payload)
		if err != nil {
			return fmt.Errorf("failed to compress batch: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Compress {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (s *Sink) drop(reason string, n int) {
	s.dropped.Add(uint64(n))
	s.metrics.dropped.WithLabelValues(reason).Add(float64(n))
}

// pushRequest is the Loki push API body.
type pushRequest struct {
	Streams []pushStream `json:"streams"`
}

type pushStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]any           `json:"values"`
}

// buildPushRequest groups records into one stream per level. Loki expects
// values in a stream ordered by time, which queue order already gives.
func buildPushRequest(labels map[string]string, batch []Record) pushRequest {
	byLevel := make(map[string]*pushStream)
	var levels []string

	for _, r := range batch {
		st, ok := byLevel[r.Level]
		if !ok {
			stream := make(map[string]string, len(labels)+1)
			for k, v := range labels {
				stream[k] = v
			}
			stream["level"] = r.Level
			st = &pushStream{Stream: stream}
			byLevel[r.Level] = st
			levels = append(levels, r.Level)
		}

		value := []any{strconv.FormatInt(r.Time.UnixNano(), 10), r.Line}
		if len(r.Metadata) > 0 {
			value = append(value, r.Metadata)
		}
		st.Values = append(st.Values, value)
	}

	sort.Strings(levels)
	req := pushRequest{Streams: make([]pushStream, 0, len(levels))}
	for _, l := range levels {
		req.Streams = append(req.Streams, *byLevel[l])
	}
	return req
}

func gzipBytes(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type sinkMetrics struct {
	dropped *prometheus.CounterVec
	batches *prometheus.CounterVec
	sent    prometheus.Counter
	queue   prometheus.GaugeFunc
}

func newSinkMetrics(queueLen func() float64) *sinkMetrics {
	return &sinkMetrics{
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "log_sink_records_dropped_total",
				Help: "Log records dropped by the remote sink",
			},
			[]string{"reason"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "log_sink_batches_total",
				Help: "Batches pushed to the remote sink by result",
			},
			[]string{"result"},
		),
		sent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "log_sink_records_sent_total",
				Help: "Log records accepted by the remote sink",
			},
		),
		queue: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "log_sink_queue_length",
				Help: "Log records waiting to be pushed",
			},
			queueLen,
		),
	}
}

func (m *sinkMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.dropped, m.batches, m.sent, m.queue} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
