package instagram

import (
	"context"
	"errors"
	"fmt"

	"github.com/brainzab/mranatoly-bot/pkg/utils"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStrategyUnavailable marks a strategy that cannot run at all right
	// now (no session, no credentials). The chain advances without counting
	// it as a real extraction failure.
	ErrStrategyUnavailable = errors.New("strategy unavailable")

	// ErrChainExhausted means every strategy was tried and none produced a
	// media URL.
	ErrChainExhausted = errors.New("all extraction strategies failed")
)

// aggregatedErrorLimit bounds the upstream error text carried to the user.
const aggregatedErrorLimit = 200

// Strategy is one independent way of turning a shortcode into a direct media
// URL. Strategies are tried strictly in order; a failure moves the walk to the
// next one and never aborts the chain.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, shortcode string) (string, error)
}

// Attempt records one strategy try for logging and diagnostics.
type Attempt struct {
	Strategy string
	MediaURL string
	Err      error
}

// Resolver walks an ordered strategy list for a single post URL. The walk is
// sequential on purpose: most strategies fail fast, and hitting the same host
// from several goroutines at once raises the block risk.
type Resolver struct {
	strategies []Strategy
}

func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// NewDefaultResolver wires the production strategy order: authenticated
// session, public JSON endpoint, HTML scraping, third-party mirrors.
func NewDefaultResolver() *Resolver {
	return NewResolver(
		NewSessionStrategy(),
		NewEmbedStrategy(),
		NewScrapeStrategy(),
		NewMirrorStrategy(),
	)
}

// Resolve returns the first media URL any strategy produces. When every
// strategy fails it returns ErrChainExhausted carrying the last failure
// reason, truncated for display; the full attempt list goes to the log.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	shortcode, err := ExtractShortcode(rawURL)
	if err != nil {
		return "", err
	}

	attempts := make([]Attempt, 0, len(r.strategies))
	for _, strategy := range r.strategies {
		mediaURL, err := strategy.Attempt(ctx, shortcode)
		attempts = append(attempts, Attempt{Strategy: strategy.Name(), MediaURL: mediaURL, Err: err})
		if err == nil && mediaURL != "" {
			logrus.Infof("[INSTAGRAM] %s resolved %s", strategy.Name(), shortcode)
			return mediaURL, nil
		}
		if errors.Is(err, ErrStrategyUnavailable) {
			logrus.Debugf("[INSTAGRAM] %s unavailable for %s", strategy.Name(), shortcode)
			continue
		}
		logrus.Warnf("[INSTAGRAM] %s failed for %s: %v", strategy.Name(), shortcode, err)
	}

	if len(attempts) == 0 {
		return "", fmt.Errorf("%w: no strategies configured", ErrChainExhausted)
	}

	for _, a := range attempts {
		logrus.Debugf("[INSTAGRAM] attempt %s: %v", a.Strategy, a.Err)
	}

	last := attempts[len(attempts)-1]
	reason := "no media url produced"
	if last.Err != nil {
		reason = utils.Truncate(last.Err.Error(), aggregatedErrorLimit)
	}
	return "", fmt.Errorf("%w: %s: %s", ErrChainExhausted, last.Strategy, reason)
}
