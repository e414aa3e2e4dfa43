package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	domainGateway "github.com/brainzab/mranatoly-bot/domains/gateway"
	"github.com/brainzab/mranatoly-bot/pkg/apicache"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	gatewayAttempts       = 3
	gatewayAttemptTimeout = 10 * time.Second
)

// ErrRequestFailed wraps any error the gateway could not recover from.
var ErrRequestFailed = errors.New("api request failed")

type gatewayService struct {
	client  *http.Client
	cache   *apicache.Cache
	monitor *botmonitor.Monitor
}

// NewGatewayService builds the central API gateway. All upstream calls share
// one cache, one HTTP client and one set of counters.
func NewGatewayService(cache *apicache.Cache, monitor *botmonitor.Monitor) domainGateway.IGatewayUsecase {
	return &gatewayService{
		client:  &http.Client{Timeout: gatewayAttemptTimeout},
		cache:   cache,
		monitor: monitor,
	}
}

func (s *gatewayService) InvalidateCache(key string) {
	if key == "" {
		s.cache.InvalidateAll()
		return
	}
	s.cache.Invalidate(key)
}

// Request performs an HTTP call with caching and a short linear-backoff retry
// loop. Transient failures (transport errors, timeouts, non-2xx statuses) are
// the dominant failure mode here, so retries come quickly (1s, 2s) instead of
// growing exponentially.
func (s *gatewayService) Request(ctx context.Context, opts domainGateway.RequestOptions) ([]byte, error) {
	s.monitor.IncrementRequest()
	s.monitor.IncrementAPIRequest(opts.ChatID)

	if opts.ForceFresh && opts.CacheKey != "" {
		s.cache.Invalidate(opts.CacheKey)
		logrus.Debugf("[GATEWAY] cache invalidated for %s before fresh request", opts.CacheKey)
	}

	if opts.CacheKey != "" && !opts.ForceFresh {
		if payload, ok := s.cache.Get(opts.CacheKey); ok {
			logrus.Debugf("[GATEWAY] cache hit for %s", opts.CacheKey)
			return payload, nil
		}
	}

	body, err := s.doWithRetries(ctx, opts)
	if err != nil {
		s.monitor.LogError(err, fmt.Sprintf("gateway request to %s", opts.URL))
		return nil, fmt.Errorf("%w: %s: %v", ErrRequestFailed, opts.URL, err)
	}

	if opts.CacheKey != "" {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = domainGateway.DefaultCacheTTL
		}
		s.cache.Put(opts.CacheKey, body, ttl)
	}
	return body, nil
}

func (s *gatewayService) doWithRetries(ctx context.Context, opts domainGateway.RequestOptions) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < gatewayAttempts; attempt++ {
		body, err := s.doOnce(ctx, opts)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt == gatewayAttempts-1 {
			break
		}
		logrus.Warnf("[GATEWAY] attempt %d/%d for %s failed: %v, retrying...", attempt+1, gatewayAttempts, opts.URL, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
	return nil, lastErr
}

func (s *gatewayService) doOnce(ctx context.Context, opts domainGateway.RequestOptions) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		raw, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, opts.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	if opts.Params != nil {
		req.URL.RawQuery = opts.Params.Encode()
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	return body, nil
}
