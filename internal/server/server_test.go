package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestServer_StartStop(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	srv := New(cfg, nil)
	srv.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	require.NoError(t, srv.Listen())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	require.Eventually(t, srv.IsRunning, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.IsRunning())
}

func TestServer_ListenError(t *testing.T) {
	t.Parallel()

	first := New(Config{Address: "127.0.0.1:0"}, nil)
	require.NoError(t, first.Listen())

	second := New(Config{Address: first.Addr()}, nil)
	assert.Error(t, second.Start())
}

func TestServer_StopBeforeStart(t *testing.T) {
	t.Parallel()

	srv := New(DefaultConfig(), nil)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_FallbackRoutes(t *testing.T) {
	t.Parallel()

	srv := New(DefaultConfig(), nil)
	srv.Engine().GET("/user/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	srv.MountMetrics("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	}))

	tests := []struct {
		method string
		target string
		want   int
		body   string
	}{
		{method: http.MethodGet, target: "/nope", want: http.StatusNotFound, body: `{"error":"not found"}`},
		{method: http.MethodPost, target: "/user/1", want: http.StatusMethodNotAllowed, body: `{"error":"method not allowed"}`},
		{method: http.MethodGet, target: "/metrics", want: http.StatusOK},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
		assert.Equal(t, tt.want, rec.Code, tt.target)
		if tt.body != "" {
			assert.JSONEq(t, tt.body, rec.Body.String())
		}
	}
}
