package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// pushRecorder is a fake push endpoint.
type pushRecorder struct {
	mu       sync.Mutex
	requests []pushRequest
	encoding []string
	status   int
}

func (p *pushRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer zr.Close()
		body = zr
	}

	var req pushRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.encoding = append(p.encoding, r.Header.Get("Content-Encoding"))
	status := p.status
	p.mu.Unlock()

	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (p *pushRecorder) lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, req := range p.requests {
		for _, st := range req.Streams {
			for _, v := range st.Values {
				out = append(out, v[1].(string))
			}
		}
	}
	return out
}

func newTestSink(t *testing.T, url string, cfg Config, opts ...Option) (*Sink, *prometheus.Registry) {
	t.Helper()

	cfg.URL = url
	reg := prometheus.NewRegistry()
	opts = append(opts, WithRegisterer(reg))
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s, reg
}

func TestNew_RequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSink_FlushOnStop(t *testing.T) {
	t.Parallel()

	rec := &pushRecorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	s, reg := newTestSink(t, server.URL, Config{
		Labels:    map[string]string{"app": "bff", "env": "test"},
		BatchSize: 100,
		BatchWait: time.Hour,
	})
	s.Start()

	now := time.Now()
	require.NoError(t, s.Enqueue(Record{Time: now, Level: "info", Line: "one"}))
	require.NoError(t, s.Enqueue(Record{Time: now, Level: "error", Line: "two"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.ElementsMatch(t, []string{"one", "two"}, rec.lines())
	require.Len(t, rec.requests, 1)

	streams := rec.requests[0].Streams
	require.Len(t, streams, 2)
	assert.Equal(t, "error", streams[0].Stream["level"])
	assert.Equal(t, "bff", streams[0].Stream["app"])
	assert.Equal(t, "test", streams[1].Stream["env"])

	assert.Equal(t, uint64(2), s.Stats().Sent)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.batches.WithLabelValues("success")))

	count, err := testutil.GatherAndCount(reg, "log_sink_records_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSink_BatchSizeTriggersPush(t *testing.T) {
	t.Parallel()

	rec := &pushRecorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	s, _ := newTestSink(t, server.URL, Config{BatchSize: 2, BatchWait: time.Hour})
	s.Start()

	for _, line := range []string{"a", "b"} {
		require.NoError(t, s.Enqueue(Record{Time: time.Now(), Level: "info", Line: line}))
	}

	assert.Eventually(t, func() bool {
		return len(rec.lines()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
}

func TestSink_Compress(t *testing.T) {
	t.Parallel()

	rec := &pushRecorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	s, _ := newTestSink(t, server.URL, Config{Compress: true, BatchWait: time.Hour})
	s.Start()
	require.NoError(t, s.Enqueue(Record{Time: time.Now(), Level: "info", Line: "zipped"}))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, []string{"zipped"}, rec.lines())
	assert.Equal(t, []string{"gzip"}, rec.encoding)
}

func TestSink_QueueFullDrops(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	s, _ := newTestSink(t, "http://127.0.0.1:1", Config{BufferSize: 1},
		WithDiagnosticLogger(zap.New(core)),
	)

	// Not started, so the queue fills.
	require.NoError(t, s.Enqueue(Record{Line: "kept"}))
	assert.ErrorIs(t, s.Enqueue(Record{Line: "dropped"}), ErrQueueFull)
	assert.ErrorIs(t, s.Enqueue(Record{Line: "dropped"}), ErrQueueFull)

	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.dropped.WithLabelValues(DropQueueFull)))
	assert.Equal(t, 1, s.Stats().QueueLength)
	// Diagnostics are throttled.
	assert.Equal(t, 1, logs.FilterMessage("log sink queue full, dropping records").Len())
}

func TestSink_DiagnosticInterval(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	s, _ := newTestSink(t, "http://127.0.0.1:1", Config{BufferSize: 1},
		WithDiagnosticLogger(zap.New(core)),
		WithDiagnosticInterval(time.Millisecond),
	)

	require.NoError(t, s.Enqueue(Record{Line: "kept"}))
	assert.ErrorIs(t, s.Enqueue(Record{Line: "dropped"}), ErrQueueFull)
	time.Sleep(5 * time.Millisecond)
	assert.ErrorIs(t, s.Enqueue(Record{Line: "dropped"}), ErrQueueFull)

	assert.Equal(t, 2, logs.FilterMessage("log sink queue full, dropping records").Len())
}

func TestSink_PushFailureDropsAndReports(t *testing.T) {
	t.Parallel()

	rec := &pushRecorder{status: http.StatusInternalServerError}
	server := httptest.NewServer(rec)
	defer server.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	s, _ := newTestSink(t, server.URL, Config{BatchWait: time.Hour},
		WithDiagnosticLogger(zap.New(core)),
	)
	s.Start()

	require.NoError(t, s.Enqueue(Record{Time: time.Now(), Level: "info", Line: "lost"}))
	require.NoError(t, s.Stop(context.Background()))

	stats := s.Stats()
	assert.False(t, stats.Healthy)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Contains(t, stats.LastError, "500")
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.dropped.WithLabelValues(DropPushFailed)))
	assert.Equal(t, 1, logs.FilterMessage("log sink push failed, dropping batch").Len())
}

func TestSink_UnreachableEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestSink(t, "http://127.0.0.1:1/loki/api/v1/push", Config{
		BatchWait: time.Hour,
		Timeout:   200 * time.Millisecond,
	})
	s.Start()

	start := time.Now()
	require.NoError(t, s.Enqueue(Record{Time: time.Now(), Level: "info", Line: "x"}))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Stats().Healthy)
}

func TestSink_EnqueueAfterStop(t *testing.T) {
	t.Parallel()

	s, _ := newTestSink(t, "http://127.0.0.1:1", Config{})
	require.NoError(t, s.Stop(context.Background()))

	assert.ErrorIs(t, s.Enqueue(Record{Line: "late"}), ErrStopped)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.dropped.WithLabelValues(DropStopped)))
	// Second stop is a no-op.
	assert.NoError(t, s.Stop(context.Background()))
}

func TestSink_StopHonorsContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	s, _ := newTestSink(t, server.URL, Config{BatchWait: time.Hour, Timeout: 10 * time.Second})
	s.Start()
	require.NoError(t, s.Enqueue(Record{Time: time.Now(), Level: "info", Line: "slow"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func TestBuildPushRequest_Metadata(t *testing.T) {
	t.Parallel()

	ts := time.Unix(0, 1700000000000000000)
	req := buildPushRequest(map[string]string{"app": "bff"}, []Record{
		{Time: ts, Level: "info", Line: "with", Metadata: map[string]string{"correlation_id": "abc"}},
		{Time: ts, Level: "info", Line: "without"},
	})

	require.Len(t, req.Streams, 1)
	values := req.Streams[0].Values
	require.Len(t, values, 2)
	assert.Equal(t, "1700000000000000000", values[0][0])
	assert.Equal(t, map[string]string{"correlation_id": "abc"}, values[0][2])
	assert.Len(t, values[1], 2)
}
