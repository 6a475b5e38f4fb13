package slug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/internal/slug"
)

func TestMakeBasic(t *testing.T) {
	cases := map[string]string{
		"Hello World":               "hello-world",
		"  Leading and trailing  ":  "leading-and-trailing",
		"Multiple   spaces":         "multiple-spaces",
		"Punctuation!!! Everywhere": "punctuation-everywhere",
		"MixedCASE Title":           "mixedcase-title",
		"hyphen-already-there":      "hyphen-already-there",
		"Ünïcödé Dïäcrïtïcs":        "unicode-diacritics",
		"<p>HTML <b>tags</b></p>":   "html-tags",
		"Tom & Jerry":               "tom-jerry",
		"100% Guaranteed":           "100-guaranteed",
	}
	for in, want := range cases {
		assert.Equal(t, want, slug.Make(in), "input %q", in)
	}
}

func TestMakeEmptyInput(t *testing.T) {
	assert.Equal(t, "", slug.Make(""))
}

func TestMakeAllPunctuationFallback(t *testing.T) {
	got := slug.Make("!!!???***")
	require.NotEmpty(t, got)
	assert.Regexp(t, `^t-[0-9a-f]{8}$`, got)
	// deterministic across calls
	assert.Equal(t, got, slug.Make("!!!???***"))
	// distinct inputs get distinct tokens
	assert.NotEqual(t, got, slug.Make("???!!!"))
}

func TestMakeIdempotent(t *testing.T) {
	inputs := []string{
		"Hello World",
		"Ünïcödé Dïäcrïtïcs",
		"a very long title that keeps going and going and going",
		"!!!",
		"<h1>Heading</h1>",
	}
	for _, in := range inputs {
		once := slug.Make(in)
		assert.Equal(t, once, slug.Make(once), "input %q", in)
	}
}

func TestMakeTruncatesAtWordBoundary(t *testing.T) {
	opts := slug.New(20, nil, "")
	got := slug.MakeWithOptions("the quick brown fox jumps over the lazy dog", opts)
	assert.LessOrEqual(t, len(got), 20)
	assert.Equal(t, "the-quick-brown-fox", got)
	// re-running with the same bound changes nothing
	assert.Equal(t, got, slug.MakeWithOptions(got, opts))
}

func TestMakeReservedSuffix(t *testing.T) {
	opts := slug.New(0, []string{"admin", "api", "wordpress"}, "-term")
	for _, in := range []string{"Admin", "admin", "ADMIN!", "api", "WordPress"} {
		got := slug.MakeWithOptions(in, opts)
		_, reserved := map[string]bool{"admin": true, "api": true, "wordpress": true}[got]
		assert.False(t, reserved, "reserved word leaked bare for %q: %q", in, got)
		assert.Contains(t, got, "-term")
	}
	// non-reserved input is untouched
	assert.Equal(t, "administrator", slug.MakeWithOptions("Administrator", opts))
}

func TestMakeWithOptionsDefaultSuffix(t *testing.T) {
	opts := slug.New(0, []string{"feed"}, "")
	assert.Equal(t, "feed-term", slug.MakeWithOptions("Feed", opts))
}
