package instagram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name     string
	mediaURL string
	err      error
	calls    int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, shortcode string) (string, error) {
	s.calls++
	return s.mediaURL, s.err
}

func TestResolveWalksChainUntilFirstSuccess(t *testing.T) {
	first := &stubStrategy{name: "first", err: errors.New("boom")}
	second := &stubStrategy{name: "second", err: ErrStrategyUnavailable}
	third := &stubStrategy{name: "third", err: errors.New("nope")}
	fourth := &stubStrategy{name: "fourth", mediaURL: "https://cdn.example.com/v.mp4"}

	r := NewResolver(first, second, third, fourth)
	got, err := r.Resolve(context.Background(), "https://instagram.com/reel/ABC123/")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.mp4", got)

	// Exactly one attempt per earlier strategy, no internal re-tries.
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 1, third.calls)
	assert.Equal(t, 1, fourth.calls)
}

func TestResolveAggregatesErrorWhenAllFail(t *testing.T) {
	first := &stubStrategy{name: "first", err: errors.New("first down")}
	last := &stubStrategy{name: "last", err: errors.New("origin said no")}

	r := NewResolver(first, last)
	_, err := r.Resolve(context.Background(), "https://instagram.com/reel/ABC123/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChainExhausted)
	assert.Contains(t, err.Error(), "last", "error must reference the last-tried strategy")
	assert.Contains(t, err.Error(), "origin said no")
}

func TestResolveTruncatesLongFailureReason(t *testing.T) {
	long := &stubStrategy{name: "verbose", err: errors.New(strings.Repeat("x", 500))}

	r := NewResolver(long)
	_, err := r.Resolve(context.Background(), "https://instagram.com/p/ABC123/")
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 300, "upstream reason must be truncated for display")
}

func TestResolveFailsFastOnBadReference(t *testing.T) {
	s := &stubStrategy{name: "never", mediaURL: "https://cdn.example.com/v.mp4"}
	r := NewResolver(s)

	_, err := r.Resolve(context.Background(), "https://instagram.com/stories/nope/1/")
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Zero(t, s.calls, "no strategy may run for an unparseable reference")
}

func TestResolveTreatsEmptyURLAsFailure(t *testing.T) {
	empty := &stubStrategy{name: "empty"} // nil error, empty url
	ok := &stubStrategy{name: "ok", mediaURL: "https://cdn.example.com/v.mp4"}

	r := NewResolver(empty, ok)
	got, err := r.Resolve(context.Background(), "https://instagram.com/reel/ABC123/")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.mp4", got)
	assert.Equal(t, 1, empty.calls)
}

func TestSessionStrategyUnavailableWithoutCredentials(t *testing.T) {
	s := NewSessionStrategy()
	_, err := s.Attempt(context.Background(), "ABC123")
	assert.ErrorIs(t, err, ErrStrategyUnavailable)
}

func TestVideoURLFromItemsShapes(t *testing.T) {
	direct := []byte(`{"items": [{"video_versions": [{"url": "https://cdn/v1.mp4"}]}]}`)
	u, err := videoURLFromItems(direct)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/v1.mp4", u)

	carousel := []byte(`{"items": [{"carousel_media": [
		{"image_versions2": {}},
		{"video_versions": [{"url": "https://cdn/v2.mp4"}]}
	]}]}`)
	u, err = videoURLFromItems(carousel)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/v2.mp4", u)

	graph := []byte(`{"graphql": {"shortcode_media": {"video_url": "https://cdn/v3.mp4"}}}`)
	u, err = videoURLFromItems(graph)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/v3.mp4", u)

	_, err = videoURLFromItems([]byte(`{"items": [{"image_versions2": {}}]}`))
	assert.Error(t, err)
}

func TestScrapeExtractorsPriorityOrder(t *testing.T) {
	html := `<html><head>
		<meta property="og:video" content="https://cdn/og.mp4"/>
	</head><body><script>{"video_url":"https:\/\/cdn\/json.mp4?tok=a&sig=b"}</script></body></html>`

	for _, ex := range htmlExtractors {
		if ex.name == "json_video_url" {
			assert.Equal(t, "https://cdn/json.mp4?tok=a&sig=b", ex.extract(html))
		}
		if ex.name == "og_video_meta" {
			assert.Equal(t, "https://cdn/og.mp4", ex.extract(html))
		}
	}

	// The JSON field outranks the meta tag when both are present.
	var got string
	for _, ex := range htmlExtractors {
		if got = ex.extract(html); got != "" {
			break
		}
	}
	assert.Equal(t, "https://cdn/json.mp4?tok=a&sig=b", got)
}
