package gateway

import (
	"context"
	"net/url"
	"time"
)

// DefaultCacheTTL applies when a request carries a cache key but no TTL.
const DefaultCacheTTL = 5 * time.Minute

// RequestOptions describes one outbound API call through the gateway.
type RequestOptions struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  url.Values
	Body    any

	// CacheKey enables caching when non-empty; CacheTTL defaults to
	// DefaultCacheTTL. ForceFresh invalidates the key before the call so the
	// response can never be served stale.
	CacheKey   string
	CacheTTL   time.Duration
	ForceFresh bool

	// ChatID attributes the request to a chat in the monitoring breakdown.
	ChatID int64
}

// IGatewayUsecase is the resilient HTTP gateway every data feed goes through.
type IGatewayUsecase interface {
	// Request performs the call with caching and bounded retries and returns
	// the raw JSON body.
	Request(ctx context.Context, opts RequestOptions) ([]byte, error)
	// InvalidateCache drops one cached key, or everything when key is empty.
	InvalidateCache(key string)
}
