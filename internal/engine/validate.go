package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"pressgate/internal/domain"
	"pressgate/internal/media"
	"pressgate/internal/seo"
	"pressgate/internal/status"
	"pressgate/internal/taxonomy"
)

const (
	maxTitleLen   = 200
	maxContentLen = 50000
	maxExcerptLen = 500
	maxCategories = 10
	maxTags       = 20
	maxImages     = 10

	maxImageTitleLen   = 200
	maxImageAltLen     = 500
	maxImageCaptionLen = 1000
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated field at once so a caller can
// fix the whole request in a single round trip.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid request"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// ValidateRequest checks every field and returns nil or a
// *ValidationError listing all violations.
func ValidateRequest(req domain.PublishRequest) error {
	var fields []FieldError
	add := func(field, format string, args ...any) {
		fields = append(fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		add("title", "required")
	} else if utf8.RuneCountInString(title) > maxTitleLen {
		add("title", "longer than %d characters", maxTitleLen)
	}
	if strings.TrimSpace(req.Content) == "" {
		add("content", "required")
	} else if utf8.RuneCountInString(req.Content) > maxContentLen {
		add("content", "longer than %d characters", maxContentLen)
	}
	if utf8.RuneCountInString(req.Excerpt) > maxExcerptLen {
		add("excerpt", "longer than %d characters", maxExcerptLen)
	}
	if _, err := status.Parse(req.Status); err != nil {
		add("status", "%v", err)
	}

	validateTerms(req.Categories, "categories", maxCategories, add)
	validateTerms(req.Tags, "tags", maxTags, add)

	if len(req.Images) > maxImages {
		add("images", "more than %d images", maxImages)
	}
	featured := 0
	for i, img := range req.Images {
		if err := media.ValidateSource(img); err != nil {
			add(fmt.Sprintf("images[%d]", i), "%v", err)
		}
		if utf8.RuneCountInString(img.Title) > maxImageTitleLen {
			add(fmt.Sprintf("images[%d].title", i), "longer than %d characters", maxImageTitleLen)
		}
		if utf8.RuneCountInString(img.AltText) > maxImageAltLen {
			add(fmt.Sprintf("images[%d].alt_text", i), "longer than %d characters", maxImageAltLen)
		}
		if utf8.RuneCountInString(img.Caption) > maxImageCaptionLen {
			add(fmt.Sprintf("images[%d].caption", i), "longer than %d characters", maxImageCaptionLen)
		}
		if img.Featured {
			featured++
		}
	}
	if featured > 1 {
		add("images", "more than one image marked featured")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateTerms(names []string, field string, max int, add func(field, format string, args ...any)) {
	if len(names) > max {
		add(field, "more than %d entries", max)
	}
	seen := make(map[string]int, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			add(fmt.Sprintf("%s[%d]", field, i), "empty name")
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if first, dup := seen[key]; dup {
			add(fmt.Sprintf("%s[%d]", field, i), "duplicate of %s[%d]", field, first)
			continue
		}
		seen[key] = i
	}
}

// TermPreview shows how a named term would validate and slug without
// touching the remote store.
type TermPreview struct {
	Name     string   `json:"name"`
	Slug     string   `json:"slug,omitempty"`
	Valid    bool     `json:"valid"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type Preview struct {
	Valid       bool          `json:"valid"`
	FieldErrors []FieldError  `json:"field_errors,omitempty"`
	Categories  []TermPreview `json:"categories,omitempty"`
	Tags        []TermPreview `json:"tags,omitempty"`
	SEOWarnings []string      `json:"seo_warnings,omitempty"`
}

// DryRun validates a request and previews taxonomy and SEO
// normalization without any remote call or persisted state.
func (e Engine) DryRun(req domain.PublishRequest) Preview {
	p := Preview{Valid: true}
	if err := ValidateRequest(req); err != nil {
		p.Valid = false
		var verr *ValidationError
		if errors.As(err, &verr) {
			p.FieldErrors = verr.Fields
		}
	}

	opts := e.taxonomyOptions()
	for _, name := range req.Categories {
		p.Categories = append(p.Categories, previewTerm(name, "category", opts))
	}
	for _, name := range req.Tags {
		p.Tags = append(p.Tags, previewTerm(name, "tag", opts))
	}

	if req.SEO != nil && !seo.Empty(*req.SEO) {
		if _, warnings, err := seo.Normalize(*req.SEO, req.Title); err != nil {
			p.SEOWarnings = append(warnings, err.Error())
		} else {
			p.SEOWarnings = warnings
		}
	}
	return p
}

func previewTerm(name, kind string, opts taxonomy.Options) TermPreview {
	input := taxonomy.Category{Name: name}
	var res taxonomy.Result
	if kind == "category" {
		res = taxonomy.ValidateCategory(input, opts)
	} else {
		res = taxonomy.ValidateTag(input, opts)
	}
	tp := TermPreview{Name: name, Valid: res.Valid, Warnings: res.Warnings}
	if res.Valid {
		tp.Slug = res.Slug
	} else if res.Err != nil {
		tp.Error = res.Err.Error()
	}
	return tp
}
