package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainGateway "github.com/brainzab/mranatoly-bot/domains/gateway"
	"github.com/brainzab/mranatoly-bot/pkg/apicache"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway() (*gatewayService, *apicache.Cache, *botmonitor.Monitor) {
	cache := apicache.New()
	monitor := botmonitor.New()
	svc := NewGatewayService(cache, monitor).(*gatewayService)
	return svc, cache, monitor
}

func TestGatewayCachesResponses(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	svc, _, _ := newTestGateway()
	opts := domainGateway.RequestOptions{
		URL:      srv.URL,
		CacheKey: "test:value",
		CacheTTL: time.Minute,
	}

	first, err := svc.Request(context.Background(), opts)
	require.NoError(t, err)
	second, err := svc.Request(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits), "second call must come from cache")
}

func TestGatewayForceFreshBypassesCache(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&hits, 1)
		if n == 1 {
			w.Write([]byte(`{"value": "stale"}`))
		} else {
			w.Write([]byte(`{"value": "fresh"}`))
		}
	}))
	defer srv.Close()

	svc, cache, _ := newTestGateway()
	opts := domainGateway.RequestOptions{
		URL:      srv.URL,
		CacheKey: "test:fresh",
		CacheTTL: time.Hour,
	}

	_, err := svc.Request(context.Background(), opts)
	require.NoError(t, err)

	opts.ForceFresh = true
	body, err := svc.Request(context.Background(), opts)
	require.NoError(t, err)
	assert.Contains(t, string(body), "fresh")
	assert.EqualValues(t, 2, atomic.LoadInt64(&hits))

	// The fresh response replaced the cached one.
	cached, ok := cache.Get("test:fresh")
	require.True(t, ok)
	assert.Contains(t, string(cached), "fresh")
}

func TestGatewayRetriesTransientFailures(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	svc, _, _ := newTestGateway()
	body, err := svc.Request(context.Background(), domainGateway.RequestOptions{URL: srv.URL})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(body))
	assert.EqualValues(t, 3, atomic.LoadInt64(&hits))
}

func TestGatewayGivesUpAfterThreeAttempts(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, _, monitor := newTestGateway()
	_, err := svc.Request(context.Background(), domainGateway.RequestOptions{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.EqualValues(t, 3, atomic.LoadInt64(&hits))
	assert.NotEmpty(t, monitor.GetSnapshot().LastErrors)
}

func TestGatewayRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	svc, cache, _ := newTestGateway()
	_, err := svc.Request(context.Background(), domainGateway.RequestOptions{
		URL:      srv.URL,
		CacheKey: "test:html",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)

	_, ok := cache.Get("test:html")
	assert.False(t, ok, "invalid payloads must never be cached")
}

func TestGatewaySendsParamsAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Minsk,BY", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.Header.Get("X-RapidAPI-Key"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	svc, _, _ := newTestGateway()
	opts := domainGateway.RequestOptions{
		URL:     srv.URL,
		Headers: map[string]string{"X-RapidAPI-Key": "secret"},
	}
	opts.Params = map[string][]string{"q": {"Minsk,BY"}}

	_, err := svc.Request(context.Background(), opts)
	require.NoError(t, err)
}
