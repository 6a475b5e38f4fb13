// Package seo converts SEO metadata into the remote store's two write
// surfaces: the plugin-exposed post fields (primary) and raw custom
// meta fields (fallback). The exposure of the primary surface depends
// on site configuration, so callers always write both.
package seo

import (
	"errors"
	"fmt"
	"strings"

	"pressgate/internal/domain"
)

// Length bounds per field. Out-of-bounds values are truncated with a
// warning, never rejected.
const (
	MaxMetaTitle         = 60
	MaxMetaDescription   = 160
	MaxFocusKeyword      = 100
	MaxSocialTitle       = 95
	MaxSocialDescription = 200
)

// ErrNoFocusKeyword is returned when SEO fields are present but no
// focus keyword can be derived from the input or the post title.
var ErrNoFocusKeyword = errors.New("seo metadata requires a focus keyword (supply one or a post title to derive it from)")

// Normalized is SEO metadata after truncation and defaulting, ready
// for either write surface.
type Normalized struct {
	MetaTitle          string
	MetaDescription    string
	FocusKeyword       string
	OGTitle            string
	OGDescription      string
	OGImage            string
	TwitterTitle       string
	TwitterDescription string
}

// Empty reports whether the input carries no SEO fields at all.
func Empty(in domain.SEOInput) bool {
	return in == domain.SEOInput{}
}

// Normalize bounds every field and defaults the focus keyword from
// the post title. Truncation never splits inside a multi-byte
// character: all cuts are on rune boundaries.
func Normalize(in domain.SEOInput, postTitle string) (Normalized, []string, error) {
	var warnings []string
	trunc := func(field, v string, max int) string {
		runes := []rune(strings.TrimSpace(v))
		if len(runes) <= max {
			return string(runes)
		}
		warnings = append(warnings, fmt.Sprintf("seo %s truncated from %d to %d characters", field, len(runes), max))
		return string(runes[:max])
	}

	n := Normalized{
		MetaTitle:          trunc("meta_title", in.MetaTitle, MaxMetaTitle),
		MetaDescription:    trunc("meta_description", in.MetaDescription, MaxMetaDescription),
		FocusKeyword:       trunc("focus_keyword", in.FocusKeyword, MaxFocusKeyword),
		OGTitle:            trunc("og_title", in.OGTitle, MaxSocialTitle),
		OGDescription:      trunc("og_description", in.OGDescription, MaxSocialDescription),
		OGImage:            strings.TrimSpace(in.OGImage),
		TwitterTitle:       trunc("twitter_title", in.TwitterTitle, MaxSocialTitle),
		TwitterDescription: trunc("twitter_description", in.TwitterDescription, MaxSocialDescription),
	}

	if n.FocusKeyword == "" {
		title := []rune(strings.TrimSpace(postTitle))
		if len(title) == 0 {
			return Normalized{}, warnings, ErrNoFocusKeyword
		}
		if len(title) > MaxFocusKeyword {
			title = title[:MaxFocusKeyword]
		}
		n.FocusKeyword = string(title)
		warnings = append(warnings, "seo focus keyword defaulted from post title")
	}
	return n, warnings, nil
}

// metaKeys maps normalized fields to the Rank Math custom-field
// names. Both write surfaces use the same key set.
func metaKeys(n Normalized) map[string]any {
	m := map[string]any{
		"rank_math_focus_keyword": n.FocusKeyword,
	}
	set := func(key, v string) {
		if v != "" {
			m[key] = v
		}
	}
	set("rank_math_title", n.MetaTitle)
	set("rank_math_description", n.MetaDescription)
	set("rank_math_facebook_title", n.OGTitle)
	set("rank_math_facebook_description", n.OGDescription)
	set("rank_math_facebook_image", n.OGImage)
	set("rank_math_twitter_title", n.TwitterTitle)
	set("rank_math_twitter_description", n.TwitterDescription)
	return m
}

// PrimaryFields is the payload for the plugin's structured exposure
// on the post object itself.
func PrimaryFields(n Normalized) map[string]any {
	return metaKeys(n)
}

// FallbackMeta wraps the same keys as a raw custom-meta-field update,
// the write path that persists even when the plugin exposure is not
// registered.
func FallbackMeta(n Normalized) map[string]any {
	return map[string]any{"meta": metaKeys(n)}
}
