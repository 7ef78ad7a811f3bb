package downstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/avabff/internal/config"
	"github.com/vyrodovalexey/avabff/internal/model"
	"github.com/vyrodovalexey/avabff/internal/observability"
	"github.com/vyrodovalexey/avabff/internal/util"
)

func newCorrelation(id string) observability.CorrelationContext {
	return observability.NewCorrelationContext(id, "/user/:id", time.Now())
}

func TestClient_Fetch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		timeout    time.Duration
		wantKind   Kind
		wantStatus int
		wantErr    error
	}{
		{
			name: "success",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"id":1,"name":"Alice","email":"alice@example.com"}`))
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			},
			wantKind:   KindNotFound,
			wantStatus: http.StatusNotFound,
			wantErr:    util.ErrNotFound,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			},
			wantKind:   KindUpstreamStatus,
			wantStatus: http.StatusInternalServerError,
			wantErr:    util.ErrUpstreamStatus,
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"id":`))
			},
			wantKind: KindDecode,
			wantErr:  util.ErrDecode,
		},
		{
			name: "null payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`null`))
			},
			wantKind: KindDecode,
			wantErr:  util.ErrDecode,
		},
		{
			name: "empty object",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			wantKind: KindDecode,
			wantErr:  model.ErrInvalidRecord,
		},
		{
			name: "foreign object",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"unexpected":true}`))
			},
			wantKind: KindDecode,
			wantErr:  util.ErrDecode,
		},
		{
			name: "trailing data",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"id":1,"name":"Alice","email":"alice@example.com"} garbage`))
			},
			wantKind: KindDecode,
			wantErr:  util.ErrDecode,
		},
		{
			name: "slow backend",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			timeout:  50 * time.Millisecond,
			wantKind: KindTimeout,
			wantErr:  util.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client, err := NewClient(ServiceUser, srv.URL, WithTimeout(tt.timeout))
			require.NoError(t, err)

			start := time.Now()
			user, err := Get[model.UserRecord](context.Background(), client, newCorrelation(""), "/users/1")

			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, model.UserRecord{ID: 1, Name: "Alice", Email: "alice@example.com"}, user)
				return
			}

			var de *Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.wantKind, de.Kind)
			assert.Equal(t, ServiceUser, de.Service)
			assert.Equal(t, "/users/1", de.Path)
			if tt.wantStatus != 0 {
				assert.Equal(t, tt.wantStatus, de.StatusCode)
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.timeout > 0 {
				assert.Less(t, time.Since(start), tt.timeout+time.Second)
			}
		})
	}
}

func TestClient_FetchValidatesListElements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "empty list", body: `[]`},
		{name: "valid elements", body: `[{"id":1,"userId":1,"productName":"Laptop","quantity":1}]`},
		{name: "trailing newline", body: "[]\n"},
		{name: "null list", body: `null`, wantErr: true},
		{name: "element with zero id", body: `[{"id":1,"quantity":1},{"id":0,"quantity":1}]`, wantErr: true},
		{name: "element with negative quantity", body: `[{"id":3,"quantity":-1}]`, wantErr: true},
		{name: "two values", body: `[][]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewClient(ServiceOrder, srv.URL)
			require.NoError(t, err)

			orders, err := Get[[]model.OrderRecord](context.Background(), client, newCorrelation(""), "/orders?userId=1")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.NotNil(t, orders)
				return
			}
			assert.Nil(t, orders)
			assert.Equal(t, KindDecode, KindOf(err))
			assert.ErrorIs(t, err, util.ErrDecode)
		})
	}
}

func TestClient_FetchUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, err := NewClient(ServiceOrder, addr)
	require.NoError(t, err)

	var out []model.OrderRecord
	err = client.Fetch(context.Background(), newCorrelation(""), "/orders?userId=1", &out)
	assert.ErrorIs(t, err, util.ErrUnreachable)
	assert.Equal(t, KindUnreachable, KindOf(err))
}

func TestClient_FetchCanceledByCaller(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := NewClient(ServiceUser, srv.URL, WithTimeout(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var out model.UserRecord
	err = client.Fetch(ctx, newCorrelation(""), "/users/2", &out)
	assert.ErrorIs(t, err, util.ErrCanceled)
}

func TestClient_PropagatesCorrelationAndTrace(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		headers []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	tracer, err := observability.NewTracer(observability.TracerConfig{ServiceName: "bff", SamplingRate: 1})
	require.NoError(t, err)

	client, err := NewClient(ServiceOrder, srv.URL, WithTracer(tracer))
	require.NoError(t, err)

	cc := newCorrelation("req-42")
	for i := 0; i < 3; i++ {
		var out []model.OrderRecord
		require.NoError(t, client.Fetch(context.Background(), cc, "/orders?userId=1", &out))
		assert.NotNil(t, out)
	}

	require.Len(t, headers, 3)
	for _, h := range headers {
		assert.Equal(t, "req-42", h.Get(observability.CorrelationHeader))
		assert.NotEmpty(t, h.Get("traceparent"))
		assert.Equal(t, "application/json", h.Get("Accept"))
	}
}

func TestClient_LogsAndMetricsPerCall(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/payments/9" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"orderId":1,"amount":1500}`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	metrics := observability.NewMetrics("bff")

	client, err := NewClient(ServicePayment, srv.URL,
		WithLogger(observability.NewLoggerFromZap(zap.New(core))),
		WithMetrics(metrics),
	)
	require.NoError(t, err)

	cc := newCorrelation("corr-1")
	_, err = Get[model.PaymentRecord](context.Background(), client, cc, "/payments/1")
	require.NoError(t, err)
	_, err = Get[model.PaymentRecord](context.Background(), client, cc, "/payments/9")
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "downstream call", entries[0].Message)
	assert.Equal(t, OutcomeSuccess, entries[0].ContextMap()["outcome"])
	assert.Equal(t, "downstream call failed", entries[1].Message)
	assert.Equal(t, "not_found", entries[1].ContextMap()["outcome"])
	for _, e := range entries {
		assert.Equal(t, "corr-1", e.ContextMap()[observability.FieldCorrelationID])
		assert.Equal(t, ServicePayment, e.ContextMap()["service"])
	}

	assert.Equal(t, 2, testutil.CollectAndCount(metrics.Registry(), "bff_downstream_requests_total"))
}

func TestClient_ResolvePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		path string
		want string
	}{
		{base: "http://user:8081", path: "/users/1", want: "http://user:8081/users/1"},
		{base: "http://user:8081/", path: "/users/1", want: "http://user:8081/users/1"},
		{base: "http://gw/api", path: "/orders?userId=2", want: "http://gw/api/orders?userId=2"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			c, err := NewClient("x", tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.resolve(tt.path))
		})
	}
}

func TestNewClient_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewClient("", "http://localhost")
	assert.Error(t, err)

	_, err = NewClient("user", "ftp://localhost")
	assert.Error(t, err)

	_, err = NewClient("user", "://bad")
	assert.Error(t, err)
}

func TestError(t *testing.T) {
	t.Parallel()

	err := &Error{Kind: KindUpstreamStatus, Service: "user", Path: "/users/error", StatusCode: 500}
	assert.Equal(t, "downstream user GET /users/error: upstream_status (status 500)", err.Error())
	assert.ErrorIs(t, err, util.ErrUpstreamStatus)
	assert.NotErrorIs(t, err, util.ErrTimeout)
	assert.ErrorIs(t, err, &Error{Kind: KindUpstreamStatus})

	wrapped := errors.Join(errors.New("context"), &Error{Kind: KindTimeout, Cause: context.DeadlineExceeded})
	assert.Equal(t, KindTimeout, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)

	assert.Equal(t, KindFatal, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(util.ErrNotFound))
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
}

func TestNewClients(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultDownstreamConfig()
	cfg.Services.Payment.Timeout = config.Duration(time.Second)

	clients, err := NewClients(cfg)
	require.NoError(t, err)

	assert.Equal(t, ServiceUser, clients.User.Service())
	assert.Equal(t, cfg.Timeout.Duration(), clients.User.Timeout())
	assert.Equal(t, time.Second, clients.Payment.Timeout())

	cfg.Services.Order.BaseURL = ""
	_, err = NewClients(cfg)
	assert.Error(t, err)

	_, err = NewClients(nil)
	assert.Error(t, err)
}

func TestPoolConfigFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      *config.DownstreamConfig
		wantIdle int
		wantDial time.Duration
	}{
		{name: "nil", cfg: nil, wantIdle: 4 * config.DefaultMaxConcurrency, wantDial: DefaultTimeout},
		{
			name:     "sized by concurrency",
			cfg:      &config.DownstreamConfig{MaxConcurrency: 2, Timeout: config.Duration(time.Second)},
			wantIdle: 8,
			wantDial: time.Second,
		},
		{
			name:     "dial capped at default",
			cfg:      &config.DownstreamConfig{Timeout: config.Duration(time.Minute)},
			wantIdle: 4 * config.DefaultMaxConcurrency,
			wantDial: DefaultTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pc := PoolConfigFor(tt.cfg)
			assert.Equal(t, tt.wantIdle, pc.IdlePerHost)
			assert.Equal(t, tt.wantDial, pc.DialTimeout)
		})
	}
}

func TestConnectionPool(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pool := NewConnectionPool(PoolConfigFor(nil))
	require.NotNil(t, pool.Client())
	assert.Zero(t, pool.Client().Timeout)
	assert.Zero(t, pool.transport.MaxConnsPerHost)

	resp, err := pool.Client().Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	pool.Close()
}

func TestConnectionPool_SlowServiceDoesNotQueueCalls(t *testing.T) {
	t.Parallel()

	const latency = 200 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(latency)
		_, _ = w.Write([]byte(`{"id":1,"name":"Alice","email":"alice@example.com"}`))
	}))
	defer srv.Close()

	pc := PoolConfigFor(&config.DownstreamConfig{MaxConcurrency: 1})
	pool := NewConnectionPool(pc)
	defer pool.Close()

	client, err := NewClient(ServiceUser, srv.URL,
		WithHTTPClient(pool.Client()),
		WithTimeout(2*latency),
	)
	require.NoError(t, err)

	calls := 8 * pc.IdlePerHost
	errs := make(chan error, calls)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Get[model.UserRecord](context.Background(), client, newCorrelation(""), "/users/1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	// Calls queued behind IdlePerHost connections would need eight rounds.
	assert.Less(t, time.Since(start), 4*latency)
}
