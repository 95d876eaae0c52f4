package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2beens/blogportal/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequestRateLimiter struct {
	// key to limit map
	Limits map[string]int
	err    error
}

func (l *testRequestRateLimiter) Allow(_ context.Context, key string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	if l.err != nil {
		return nil, l.err
	}

	res := &redis_rate.Result{}
	foundLimit, ok := l.Limits[key]
	if !ok || foundLimit == 0 {
		return res, nil
	}

	res.Allowed = l.Limits[key]
	l.Limits[key]--

	return res, nil
}

func TestRateLimit(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	limiter := &testRequestRateLimiter{
		Limits: map[string]int{"login::10.0.0.1": 2},
	}
	called := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	})
	handler := RateLimit(limiter, "login", 2, metricsManager)(next)

	post := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=a"))
		req.Header.Set("X-Real-Ip", ip)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, post("10.0.0.1"))
	assert.Equal(t, http.StatusOK, post("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.1"))
	// other clients have their own budget
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.2"))
	assert.Equal(t, 2, called)
	assert.Equal(t, float64(2), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))

	// forms still load
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, called)

	limiter.err = errors.New("redis down")
	assert.Equal(t, http.StatusInternalServerError, post("10.0.0.1"))
}

func TestRequestID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	handler := RequestID()(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id-1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "upstream-id-1", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.NotEqual(t, "bad id\nwith newline", seen)
	assert.Len(t, seen, 36)

	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestRequestMetrics(t *testing.T) {
	metricsManager := metrics.NewTestManager()

	r := mux.NewRouter()
	r.Use(RequestMetrics(metricsManager))
	r.HandleFunc("/blog/{slug}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Name("post")
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/blog/a", "/blog/b", "/"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(metricsManager.CounterRequests.WithLabelValues("GET", "404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterRequests.WithLabelValues("GET", "200")))
	// one series per route, not per path
	assert.Equal(t, 2, testutil.CollectAndCount(metricsManager.HistogramRequestDuration))
	assert.Equal(t, float64(0), testutil.ToFloat64(metricsManager.GaugeRequests))
}

func TestResponseWriter_Flush(t *testing.T) {
	rr := httptest.NewRecorder()
	var w http.ResponseWriter = newResponseWriter(rr)
	flusher, ok := w.(http.Flusher)
	require.True(t, ok)
	flusher.Flush()
	assert.True(t, rr.Flushed)
}

func TestDrainAndCloseRequest(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("unread body")}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Body = body

	DrainAndCloseRequest()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, body.closed)
	assert.Equal(t, 0, body.Len())
}

type trackingBody struct {
	*strings.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}
