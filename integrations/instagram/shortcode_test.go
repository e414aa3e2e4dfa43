package instagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractShortcode(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://instagram.com/reel/ABC123/", "ABC123"},
		{"https://instagram.com/p/ABC123/", "ABC123"},
		{"https://www.instagram.com/tv/xY_z-9/", "xY_z-9"},
		{"https://www.instagram.com/reel/CxYz123/?igsh=abc", "CxYz123"},
	}
	for _, c := range cases {
		got, err := ExtractShortcode(c.url)
		require.NoError(t, err, c.url)
		assert.Equal(t, c.want, got, c.url)
	}
}

func TestExtractShortcodeRejectsUnknownShapes(t *testing.T) {
	for _, u := range []string{
		"https://instagram.com/stories/someone/123/",
		"https://example.com/reel/ABC123/",
		"not a url at all",
		"",
	} {
		_, err := ExtractShortcode(u)
		assert.ErrorIs(t, err, ErrInvalidReference, u)
	}
}

func TestMediaIDFromShortcode(t *testing.T) {
	// "B" is index 1, "A" is index 0: BA = 1*64 + 0.
	id, err := mediaIDFromShortcode("BA")
	require.NoError(t, err)
	assert.EqualValues(t, 64, id)

	_, err = mediaIDFromShortcode("not!valid")
	assert.ErrorIs(t, err, ErrInvalidReference)
}
