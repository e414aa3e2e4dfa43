package usecase

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/brainzab/mranatoly-bot/config"
	domainGateway "github.com/brainzab/mranatoly-bot/domains/gateway"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	openWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
	exchangeURL    = "https://open.er-api.com/v6/latest/USD"
	coingeckoURL   = "https://api.coingecko.com/api/v3/simple/price"
	footballURL    = "https://api-football-v1.p.rapidapi.com/v3"

	weatherTTL  = 30 * time.Minute
	currencyTTL = time.Hour
	fixturesTTL = 2 * time.Hour
	eventsTTL   = time.Hour
)

// WeatherUnavailable is the user-facing fallback when the weather feed fails.
const WeatherUnavailable = "Нет данных"

// CryptoPrices is a single CoinGecko quote pair.
type CryptoPrices struct {
	BTC float64
	WLD float64
}

// CurrencyRates holds USD cross rates from the exchange feed.
type CurrencyRates struct {
	RUB float64
	BYN float64
}

// FeedsService wraps the gateway with per-feed cache and fallback policy.
// Every method degrades instead of failing where a chat reply can still be
// produced without the data.
type FeedsService struct {
	gateway domainGateway.IGatewayUsecase
}

func NewFeedsService(gateway domainGateway.IGatewayUsecase) *FeedsService {
	return &FeedsService{gateway: gateway}
}

// Weather returns "20°C, ясно" for the city, or WeatherUnavailable. It never
// returns an error: callers always get a printable string.
func (s *FeedsService) Weather(ctx context.Context, city string, chatID int64) string {
	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", config.OpenWeatherAPIKey)
	params.Set("units", "metric")
	params.Set("lang", "ru")

	body, err := s.gateway.Request(ctx, domainGateway.RequestOptions{
		URL:      openWeatherURL,
		Params:   params,
		CacheKey: "weather_" + city,
		CacheTTL: weatherTTL,
		ChatID:   chatID,
	})
	if err != nil {
		logrus.Warnf("[FEEDS] weather for %s unavailable: %v", city, err)
		return WeatherUnavailable
	}

	temp := gjson.GetBytes(body, "main.temp")
	desc := gjson.GetBytes(body, "weather.0.description")
	if !temp.Exists() || !desc.Exists() {
		logrus.Warnf("[FEEDS] weather payload for %s misses temp or description", city)
		return WeatherUnavailable
	}
	return fmt.Sprintf("%d°C, %s", int(math.Round(temp.Float())), desc.String())
}

// Currency returns USD→RUB and USD→BYN rates, cached for an hour.
func (s *FeedsService) Currency(ctx context.Context, chatID int64) (CurrencyRates, error) {
	body, err := s.gateway.Request(ctx, domainGateway.RequestOptions{
		URL:      exchangeURL,
		CacheKey: "currency_rates",
		CacheTTL: currencyTTL,
		ChatID:   chatID,
	})
	if err != nil {
		return CurrencyRates{}, err
	}

	// Missing fields read as 0; callers render zeros the same as "no data".
	return CurrencyRates{
		RUB: gjson.GetBytes(body, "rates.RUB").Float(),
		BYN: gjson.GetBytes(body, "rates.BYN").Float(),
	}, nil
}

// Crypto returns live BTC and WLD quotes. Prices must never be stale, so the
// call always bypasses the cache. CoinGecko has renamed the Worldcoin listing
// before; when the primary id comes back empty the call is repeated once with
// the alternate id.
func (s *FeedsService) Crypto(ctx context.Context, chatID int64) (CryptoPrices, error) {
	prices, err := s.fetchCrypto(ctx, "bitcoin,worldcoin-wld", "worldcoin-wld", chatID)
	if err != nil {
		return CryptoPrices{}, err
	}
	if prices.WLD == 0 {
		logrus.Warn("[FEEDS] worldcoin-wld quote missing, retrying with alternate id")
		alt, altErr := s.fetchCrypto(ctx, "bitcoin,world-coin", "world-coin", chatID)
		if altErr == nil && alt.WLD > 0 {
			return alt, nil
		}
	}
	return prices, nil
}

func (s *FeedsService) fetchCrypto(ctx context.Context, ids, wldID string, chatID int64) (CryptoPrices, error) {
	params := url.Values{}
	params.Set("ids", ids)
	params.Set("vs_currencies", "usd")

	body, err := s.gateway.Request(ctx, domainGateway.RequestOptions{
		URL:        coingeckoURL,
		Params:     params,
		CacheKey:   "crypto_prices",
		ForceFresh: true,
		ChatID:     chatID,
	})
	if err != nil {
		return CryptoPrices{}, err
	}
	return CryptoPrices{
		BTC: gjson.GetBytes(body, "bitcoin.usd").Float(),
		WLD: gjson.GetBytes(body, wldID+".usd").Float(),
	}, nil
}

// TeamFixtures returns the raw api-football fixtures payload for a team, or
// nil when the feed fails. Schedule data is slow-moving, so it caches for two
// hours and the callers render "no data" from a nil payload.
func (s *FeedsService) TeamFixtures(ctx context.Context, teamID int64, last, next int, chatID int64) []byte {
	params := url.Values{}
	params.Set("team", fmt.Sprintf("%d", teamID))
	if last > 0 {
		params.Set("last", fmt.Sprintf("%d", last))
	}
	if next > 0 {
		params.Set("next", fmt.Sprintf("%d", next))
	}

	body, err := s.gateway.Request(ctx, domainGateway.RequestOptions{
		URL:      footballURL + "/fixtures",
		Params:   params,
		Headers:  rapidAPIHeaders(),
		CacheKey: fmt.Sprintf("team_matches_%d_%d_%d", teamID, last, next),
		CacheTTL: fixturesTTL,
		ChatID:   chatID,
	})
	if err != nil {
		logrus.Warnf("[FEEDS] fixtures for team %d unavailable: %v", teamID, err)
		return nil
	}
	return body
}

// MatchEvents returns the raw events payload for a finished fixture, or nil.
func (s *FeedsService) MatchEvents(ctx context.Context, fixtureID int64, chatID int64) []byte {
	params := url.Values{}
	params.Set("fixture", fmt.Sprintf("%d", fixtureID))

	body, err := s.gateway.Request(ctx, domainGateway.RequestOptions{
		URL:      footballURL + "/fixtures/events",
		Params:   params,
		Headers:  rapidAPIHeaders(),
		CacheKey: fmt.Sprintf("match_events_%d", fixtureID),
		CacheTTL: eventsTTL,
		ChatID:   chatID,
	})
	if err != nil {
		logrus.Warnf("[FEEDS] events for fixture %d unavailable: %v", fixtureID, err)
		return nil
	}
	return body
}

func rapidAPIHeaders() map[string]string {
	return map[string]string{
		"X-RapidAPI-Key":  config.RapidAPIKey,
		"X-RapidAPI-Host": "api-football-v1.p.rapidapi.com",
	}
}
