package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/brainzab/mranatoly-bot/config"
	"github.com/sirupsen/logrus"
)

// ScrapeStrategy fetches the public page HTML and hunts for an embedded media
// URL. Markup changes upstream break individual extractors regularly, so they
// form an ordered list tried one by one; first match wins.
type ScrapeStrategy struct {
	client *http.Client
}

func NewScrapeStrategy() *ScrapeStrategy {
	return &ScrapeStrategy{client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *ScrapeStrategy) Name() string { return "scrape" }

var pageVariants = []string{"reel", "p", "tv"}

type htmlExtractor struct {
	name    string
	extract func(html string) string
}

var escapedVideoURLRe = regexp.MustCompile(`"video_url"\s*:\s*"([^"]+)"`)
var doubleEscapedVideoURLRe = regexp.MustCompile(`\\"video_url\\"\s*:\s*\\"(.*?)\\"`)

var htmlExtractors = []htmlExtractor{
	{
		name: "json_video_url",
		extract: func(html string) string {
			if m := escapedVideoURLRe.FindStringSubmatch(html); m != nil {
				return unescapeJSONURL(m[1])
			}
			return ""
		},
	},
	{
		name: "og_video_meta",
		extract: func(html string) string {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
			if err != nil {
				return ""
			}
			for _, prop := range []string{"og:video", "og:video:secure_url"} {
				sel := doc.Find(fmt.Sprintf(`meta[property=%q]`, prop))
				if content, ok := sel.Attr("content"); ok && content != "" {
					return content
				}
			}
			return ""
		},
	},
	{
		name: "double_escaped_video_url",
		extract: func(html string) string {
			if m := doubleEscapedVideoURLRe.FindStringSubmatch(html); m != nil {
				return unescapeJSONURL(strings.ReplaceAll(m[1], `\\`, `\`))
			}
			return ""
		},
	},
}

func (s *ScrapeStrategy) Attempt(ctx context.Context, shortcode string) (string, error) {
	html, err := s.fetchPage(ctx, shortcode)
	if err != nil {
		return "", err
	}

	for _, ex := range htmlExtractors {
		if u := ex.extract(html); u != "" {
			logrus.Debugf("[INSTAGRAM] scrape extractor %s matched for %s", ex.name, shortcode)
			return u, nil
		}
	}

	s.persistDebugHTML(shortcode, html)
	return "", fmt.Errorf("no extractor matched page html for %s", shortcode)
}

// fetchPage tries the reel, p and tv URL variants in order until one answers
// with 200. Posts are reachable under a subset of the variants depending on
// their type.
func (s *ScrapeStrategy) fetchPage(ctx context.Context, shortcode string) (string, error) {
	var lastErr error
	for _, variant := range pageVariants {
		endpoint := fmt.Sprintf("%s/%s/%s/", igBaseURL, variant, shortcode)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("User-Agent", igUserAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("%s variant status %d", variant, resp.StatusCode)
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return string(body), nil
	}
	return "", fmt.Errorf("no page variant answered 200: %w", lastErr)
}

// persistDebugHTML keeps the fetched page around when nothing matched, so a
// broken extractor can be diagnosed against the real markup.
func (s *ScrapeStrategy) persistDebugHTML(shortcode, html string) {
	path := filepath.Join(config.PathDebug, fmt.Sprintf("ig_%s.html", shortcode))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		logrus.Warnf("[INSTAGRAM] could not persist debug html: %v", err)
		return
	}
	logrus.Infof("[INSTAGRAM] saved unmatched page html to %s", path)
}

func unescapeJSONURL(raw string) string {
	u := strings.ReplaceAll(raw, `\/`, `/`)
	u = strings.ReplaceAll(u, `\u0026`, "&")
	return u
}
