package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	domainGateway "github.com/brainzab/mranatoly-bot/domains/gateway"
	"github.com/brainzab/mranatoly-bot/pkg/apicache"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway routes requests by URL prefix to canned handlers so feed policy
// can be tested without real upstreams.
type fakeGateway struct {
	svc  *gatewayService
	base string
}

func newFakeGateway(handler http.Handler) (*fakeGateway, func()) {
	srv := httptest.NewServer(handler)
	svc := NewGatewayService(apicache.New(), botmonitor.New()).(*gatewayService)
	return &fakeGateway{svc: svc, base: srv.URL}, srv.Close
}

// Request rewrites the host of every call to the test server, keeping path and
// query intact.
func (g *fakeGateway) Request(ctx context.Context, opts domainGateway.RequestOptions) ([]byte, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, err
	}
	opts.URL = g.base + u.Path
	return g.svc.Request(ctx, opts)
}

func (g *fakeGateway) InvalidateCache(key string) { g.svc.InvalidateCache(key) }

func TestWeatherFormatsTemperatureAndDescription(t *testing.T) {
	var hits int64
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		assert.Equal(t, "Minsk,BY", r.URL.Query().Get("q"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		w.Write([]byte(`{"main": {"temp": 20.3}, "weather": [{"description": "ясно"}]}`))
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	assert.Equal(t, "20°C, ясно", feeds.Weather(context.Background(), "Minsk,BY", 0))

	// Second lookup within the TTL is served from cache.
	assert.Equal(t, "20°C, ясно", feeds.Weather(context.Background(), "Minsk,BY", 0))
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))
}

func TestWeatherFallsBackOnFailure(t *testing.T) {
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	assert.Equal(t, WeatherUnavailable, feeds.Weather(context.Background(), "Минск", 0))
}

func TestWeatherFallsBackOnMalformedPayload(t *testing.T) {
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cod": "404", "message": "city not found"}`))
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	assert.Equal(t, WeatherUnavailable, feeds.Weather(context.Background(), "Нигде", 0))
}

func TestWeatherRoundsNegativeTemperatures(t *testing.T) {
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"main": {"temp": -5.7}, "weather": [{"description": "снег"}]}`))
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	assert.Equal(t, "-6°C, снег", feeds.Weather(context.Background(), "Ноябрьск", 0))
}

func TestCurrencyReturnsRates(t *testing.T) {
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates": {"RUB": 92.5, "BYN": 3.27}}`))
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	rates, err := feeds.Currency(context.Background(), 0)
	require.NoError(t, err)
	assert.InDelta(t, 92.5, rates.RUB, 0.001)
	assert.InDelta(t, 3.27, rates.BYN, 0.001)
}

func TestCurrencyDefaultsMissingRatesToZero(t *testing.T) {
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates": {"RUB": 92.5}}`))
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	rates, err := feeds.Currency(context.Background(), 0)
	require.NoError(t, err)
	assert.InDelta(t, 92.5, rates.RUB, 0.001)
	assert.Zero(t, rates.BYN)
}

func TestCryptoAlwaysFetchesFresh(t *testing.T) {
	var hits int64
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`{"bitcoin": {"usd": 60000}, "worldcoin-wld": {"usd": 2.5}}`))
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	for i := 0; i < 2; i++ {
		prices, err := feeds.Crypto(context.Background(), 0)
		require.NoError(t, err)
		assert.InDelta(t, 60000, prices.BTC, 0.001)
		assert.InDelta(t, 2.5, prices.WLD, 0.001)
	}
	assert.EqualValues(t, 2, atomic.LoadInt64(&hits), "prices must never come from cache")
}

func TestCryptoRetriesAlternateListingID(t *testing.T) {
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("ids") {
		case "bitcoin,worldcoin-wld":
			w.Write([]byte(`{"bitcoin": {"usd": 60000}}`))
		case "bitcoin,world-coin":
			w.Write([]byte(`{"bitcoin": {"usd": 60000}, "world-coin": {"usd": 2.1}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	prices, err := feeds.Crypto(context.Background(), 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.1, prices.WLD, 0.001)
}

func TestTeamFixturesReturnsNilOnFailure(t *testing.T) {
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	assert.Nil(t, feeds.TeamFixtures(context.Background(), 541, 1, 0, 0))
	assert.Nil(t, feeds.MatchEvents(context.Background(), 12345, 0))
}

func TestTeamFixturesPassesThroughPayload(t *testing.T) {
	gw, closeFn := newFakeGateway(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "541", r.URL.Query().Get("team"))
		w.Write([]byte(`{"response": [{"fixture": {"id": 1}}]}`))
	}))
	defer closeFn()

	feeds := NewFeedsService(gw)
	body := feeds.TeamFixtures(context.Background(), 541, 0, 1, 0)
	require.NotNil(t, body)
	assert.Contains(t, string(body), `"fixture"`)
}
