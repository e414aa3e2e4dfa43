package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// mirrorRecipe is one third-party downloader site: how to ask it and how to
// read its answer. Recipes are tried strictly in order; each failure is logged
// with the service name and the walk continues.
type mirrorRecipe struct {
	name  string
	fetch func(ctx context.Context, client *http.Client, postURL string) (string, error)
}

// MirrorStrategy is the last resort: public mirror services that resolve the
// post themselves. Slowest and least reliable, but independent of our own
// standing with the origin.
type MirrorStrategy struct {
	client  *http.Client
	recipes []mirrorRecipe
}

func NewMirrorStrategy() *MirrorStrategy {
	return &MirrorStrategy{
		client:  &http.Client{Timeout: 20 * time.Second},
		recipes: defaultMirrorRecipes,
	}
}

func (s *MirrorStrategy) Name() string { return "mirrors" }

func (s *MirrorStrategy) Attempt(ctx context.Context, shortcode string) (string, error) {
	postURL := fmt.Sprintf("%s/reel/%s/", igBaseURL, shortcode)

	var lastErr error
	for _, recipe := range s.recipes {
		mediaURL, err := recipe.fetch(ctx, s.client, postURL)
		if err == nil && mediaURL != "" {
			logrus.Infof("[INSTAGRAM] mirror %s resolved %s", recipe.name, shortcode)
			return mediaURL, nil
		}
		if err == nil {
			err = fmt.Errorf("empty media url")
		}
		logrus.Warnf("[INSTAGRAM] mirror %s failed: %v", recipe.name, err)
		lastErr = fmt.Errorf("%s: %w", recipe.name, err)
	}
	return "", fmt.Errorf("all mirrors failed, last: %w", lastErr)
}

var mirrorMP4HrefRe = regexp.MustCompile(`href="(https?://[^"]+\.mp4[^"]*)"`)

var defaultMirrorRecipes = []mirrorRecipe{
	{
		name: "igram",
		fetch: func(ctx context.Context, client *http.Client, postURL string) (string, error) {
			body, err := mirrorPostForm(ctx, client, "https://api.igram.world/api/convert",
				url.Values{"url": {postURL}})
			if err != nil {
				return "", err
			}
			if u := gjson.GetBytes(body, "url.0.url"); u.Exists() {
				return u.String(), nil
			}
			return "", fmt.Errorf("no url in response")
		},
	},
	{
		name: "saveig",
		fetch: func(ctx context.Context, client *http.Client, postURL string) (string, error) {
			body, err := mirrorPostForm(ctx, client, "https://v3.saveig.app/api/ajaxSearch",
				url.Values{"q": {postURL}, "t": {"media"}})
			if err != nil {
				return "", err
			}
			fragment := gjson.GetBytes(body, "data").String()
			if m := mirrorMP4HrefRe.FindStringSubmatch(fragment); m != nil {
				return m[1], nil
			}
			return "", fmt.Errorf("no mp4 link in markup")
		},
	},
	{
		name: "snapinsta",
		fetch: func(ctx context.Context, client *http.Client, postURL string) (string, error) {
			body, err := mirrorPostForm(ctx, client, "https://snapinsta.app/api/ajaxSearch",
				url.Values{"q": {postURL}, "t": {"media"}, "lang": {"en"}})
			if err != nil {
				return "", err
			}
			fragment := gjson.GetBytes(body, "data").String()
			if m := mirrorMP4HrefRe.FindStringSubmatch(fragment); m != nil {
				return m[1], nil
			}
			return "", fmt.Errorf("no mp4 link in markup")
		},
	},
	{
		name: "ddinstagram",
		fetch: func(ctx context.Context, client *http.Client, postURL string) (string, error) {
			proxied := strings.Replace(postURL, "www.instagram.com", "ddinstagram.com", 1)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxied, nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("User-Agent", "TelegramBot (like TwitterBot)")
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("status %d", resp.StatusCode)
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return "", err
			}
			for _, ex := range htmlExtractors {
				if u := ex.extract(string(body)); u != "" {
					return u, nil
				}
			}
			return "", fmt.Errorf("no video meta in proxied page")
		},
	},
}

func mirrorPostForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", igUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
