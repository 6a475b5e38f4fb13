// Package slug turns arbitrary human text into URL-safe identifiers.
package slug

import (
	"hash/fnv"
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const DefaultMaxLength = 200

// Options control slug generation. The zero value means "defaults
// with no reserved set"; use New to seed the reserved slugs.
type Options struct {
	MaxLength      int
	Reserved       map[string]struct{}
	ReservedSuffix string
}

// New builds Options from a reserved-slug list.
func New(maxLength int, reserved []string, suffix string) Options {
	set := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		set[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return Options{MaxLength: maxLength, Reserved: set, ReservedSuffix: suffix}
}

var stripTags = bluemonday.StrictPolicy()

// asciiFold removes diacritics: NFD decomposition, drop combining
// marks, recompose.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make generates a slug with default options and no reserved set.
func Make(text string) string {
	return MakeWithOptions(text, Options{})
}

// MakeWithOptions lower-cases, strips HTML and diacritics, collapses
// punctuation runs to single hyphens and bounds the length. Empty
// input yields "" (callers treat that as "no slug requested");
// non-empty input that normalizes to nothing yields a deterministic
// hash token so the operation never fails. Idempotent: feeding a slug
// back in returns it unchanged.
func MakeWithOptions(text string, opts Options) string {
	if text == "" {
		return ""
	}
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	s := html.UnescapeString(stripTags.Sanitize(text))
	if folded, _, err := transform.String(asciiFold, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	out := b.String()

	if out == "" {
		return fallbackToken(text)
	}
	out = truncateAtWord(out, maxLen)
	if _, reserved := opts.Reserved[out]; reserved {
		suffix := opts.ReservedSuffix
		if suffix == "" {
			suffix = "-term"
		}
		out += suffix
	}
	return out
}

// truncateAtWord bounds s to maxLen bytes (slugs are pure ASCII at
// this point), preferring the last hyphen boundary over a mid-word
// cut when one exists in the kept span.
func truncateAtWord(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if i := strings.LastIndexByte(cut, '-'); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, "-")
}

// fallbackToken derives a stable non-empty slug for input that
// normalizes to nothing (all punctuation, all symbols). Hash-derived
// so retried requests produce identical slugs.
func fallbackToken(original string) string {
	h := fnv.New32a()
	h.Write([]byte(original))
	const hexdigits = "0123456789abcdef"
	sum := h.Sum32()
	buf := make([]byte, 0, 10)
	buf = append(buf, 't', '-')
	for shift := 28; shift >= 0; shift -= 4 {
		buf = append(buf, hexdigits[(sum>>uint(shift))&0xf])
	}
	return string(buf)
}
