package instagram

import (
	"errors"
	"regexp"
)

// ErrInvalidReference means the URL matches none of the known post shapes.
// It fails the resolution before any strategy makes a network call.
var ErrInvalidReference = errors.New("invalid instagram reference")

var shortcodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`instagram\.com/reel/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`instagram\.com/p/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`instagram\.com/tv/([A-Za-z0-9_-]+)`),
}

// ExtractShortcode pulls the opaque post identifier out of a reel, post or tv
// URL. The same identifier works for every extraction strategy.
func ExtractShortcode(rawURL string) (string, error) {
	for _, p := range shortcodePatterns {
		if m := p.FindStringSubmatch(rawURL); m != nil {
			return m[1], nil
		}
	}
	return "", ErrInvalidReference
}

const shortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// mediaIDFromShortcode converts a shortcode to the numeric media id used by
// the private API endpoints. Shortcodes are the media id in a base64 variant.
func mediaIDFromShortcode(shortcode string) (int64, error) {
	var id int64
	for _, c := range shortcode {
		idx := -1
		for i, a := range shortcodeAlphabet {
			if a == c {
				idx = i
				break
			}
		}
		if idx < 0 {
			return 0, ErrInvalidReference
		}
		id = id*64 + int64(idx)
	}
	return id, nil
}
