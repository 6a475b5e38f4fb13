package seo_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/internal/domain"
	"pressgate/internal/seo"
)

func TestNormalizeTruncatesMetaTitle(t *testing.T) {
	in := domain.SEOInput{
		MetaTitle:    strings.Repeat("a", 80),
		FocusKeyword: "widgets",
	}
	n, warnings, err := seo.Normalize(in, "Post Title")
	require.NoError(t, err)
	assert.Len(t, n.MetaTitle, 60)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "meta_title truncated")
}

func TestNormalizeMultibyteSafe(t *testing.T) {
	in := domain.SEOInput{
		MetaTitle:    strings.Repeat("é", 80),
		FocusKeyword: "clé",
	}
	n, _, err := seo.Normalize(in, "")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(n.MetaTitle))
	assert.Equal(t, 60, utf8.RuneCountInString(n.MetaTitle))
}

func TestNormalizeDefaultsFocusKeyword(t *testing.T) {
	in := domain.SEOInput{MetaDescription: "A description"}
	n, warnings, err := seo.Normalize(in, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", n.FocusKeyword)
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "defaulted from post title") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNormalizeNoKeywordAnywhere(t *testing.T) {
	in := domain.SEOInput{MetaDescription: "A description"}
	_, _, err := seo.Normalize(in, "   ")
	assert.ErrorIs(t, err, seo.ErrNoFocusKeyword)
}

func TestEmpty(t *testing.T) {
	assert.True(t, seo.Empty(domain.SEOInput{}))
	assert.False(t, seo.Empty(domain.SEOInput{MetaTitle: "x"}))
}

func TestWriteSurfaces(t *testing.T) {
	n, _, err := seo.Normalize(domain.SEOInput{
		MetaTitle:    "Title",
		FocusKeyword: "keyword",
		OGImage:      "https://example.com/cover.jpg",
	}, "")
	require.NoError(t, err)

	primary := seo.PrimaryFields(n)
	assert.Equal(t, "keyword", primary["rank_math_focus_keyword"])
	assert.Equal(t, "Title", primary["rank_math_title"])
	assert.Equal(t, "https://example.com/cover.jpg", primary["rank_math_facebook_image"])
	_, hasDesc := primary["rank_math_description"]
	assert.False(t, hasDesc, "empty fields must be omitted")

	fallback := seo.FallbackMeta(n)
	meta, ok := fallback["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, primary, meta)
}
