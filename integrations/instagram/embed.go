package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// EmbedStrategy asks the public JSON endpoint for the post without logging
// in. The payload arrives in one of several shapes depending on post type and
// rollout bucket; all known shapes are probed in order.
type EmbedStrategy struct {
	client *http.Client
}

func NewEmbedStrategy() *EmbedStrategy {
	return &EmbedStrategy{client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *EmbedStrategy) Name() string { return "embed" }

func (s *EmbedStrategy) Attempt(ctx context.Context, shortcode string) (string, error) {
	endpoint := fmt.Sprintf("%s/p/%s/?__a=1&__d=dis", igBaseURL, shortcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", igUserAgent)
	req.Header.Set("X-IG-App-ID", igAppID)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("embed endpoint status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return videoURLFromItems(body)
}

// videoURLFromItems walks the known JSON shapes in priority order: direct
// video, carousel item, then the older graphql shape. A payload matching none
// of them is a plain failure so the chain moves on.
func videoURLFromItems(body []byte) (string, error) {
	if u := gjson.GetBytes(body, "items.0.video_versions.0.url"); u.Exists() {
		return u.String(), nil
	}

	carousel := gjson.GetBytes(body, "items.0.carousel_media")
	if carousel.IsArray() {
		for _, item := range carousel.Array() {
			if u := item.Get("video_versions.0.url"); u.Exists() {
				return u.String(), nil
			}
		}
	}

	if u := gjson.GetBytes(body, "graphql.shortcode_media.video_url"); u.Exists() {
		return u.String(), nil
	}

	return "", fmt.Errorf("no video url in any known payload shape")
}
