// Package media resolves image descriptors into uploaded store media.
// Uploads are independent: one failure is recorded per-descriptor and
// never aborts the rest.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"pressgate/internal/domain"
	"pressgate/internal/slug"
	"pressgate/internal/wp"
)

var (
	ErrNoSource   = errors.New("image requires exactly one of url or data; neither is set")
	ErrBothSource = errors.New("image requires exactly one of url or data; both are set")
)

// ValidateSource enforces the exactly-one-source rule for one
// descriptor.
func ValidateSource(img domain.ImageInput) error {
	hasURL := strings.TrimSpace(img.URL) != ""
	hasData := strings.TrimSpace(img.Data) != ""
	switch {
	case hasURL && hasData:
		return ErrBothSource
	case !hasURL && !hasData:
		return ErrNoSource
	}
	return nil
}

// Uploader is the slice of the store client the resolver needs.
type Uploader interface {
	UploadMedia(ctx context.Context, filename, contentType string, data []byte) (wp.Media, error)
	UpdateMedia(ctx context.Context, id int64, fields map[string]any) error
}

// Resolver uploads a request's images and picks the featured one.
type Resolver struct {
	Uploader       Uploader
	HTTPClient     *http.Client
	FetchTimeout   time.Duration
	UploadTimeout  time.Duration
	MaxConcurrency int
	MaxBytes       int64
}

// Result is the merged outcome of all uploads for one request.
type Result struct {
	Outcomes   []domain.ImageOutcome
	FeaturedID int64
	Warnings   []string
}

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultUploadTimeout = 60 * time.Second
	defaultConcurrency   = 4
	defaultMaxBytes      = 10 << 20
)

// Resolve fetches or decodes every descriptor and uploads them
// concurrently. Outcomes keep input order. The featured image is the
// explicitly flagged one when its upload succeeded, otherwise the
// first successful upload, otherwise none (warning, not error).
func (r *Resolver) Resolve(ctx context.Context, images []domain.ImageInput) Result {
	res := Result{Outcomes: make([]domain.ImageOutcome, len(images))}
	if len(images) == 0 {
		return res
	}

	limit := r.MaxConcurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range images {
		i := i
		res.Outcomes[i] = domain.ImageOutcome{Index: i}
		g.Go(func() error {
			r.resolveOne(gctx, i, images[i], &res.Outcomes[i])
			// upload failures live in the outcome, not the group error
			return nil
		})
	}
	_ = g.Wait()

	featuredIdx := -1
	for i, img := range images {
		if img.Featured && res.Outcomes[i].Uploaded {
			featuredIdx = i
			break
		}
	}
	if featuredIdx == -1 {
		for i := range res.Outcomes {
			if res.Outcomes[i].Uploaded {
				featuredIdx = i
				break
			}
		}
	}
	if featuredIdx >= 0 {
		res.Outcomes[featuredIdx].Featured = true
		res.FeaturedID = res.Outcomes[featuredIdx].MediaID
	} else {
		res.Warnings = append(res.Warnings, "no image uploaded successfully; post has no featured image")
	}
	for i := range res.Outcomes {
		if res.Outcomes[i].Error != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("image %d: %s", i, res.Outcomes[i].Error))
		}
	}
	return res
}

func (r *Resolver) resolveOne(ctx context.Context, idx int, img domain.ImageInput, out *domain.ImageOutcome) {
	if err := ValidateSource(img); err != nil {
		out.Error = err.Error()
		return
	}

	var data []byte
	var err error
	if img.URL != "" {
		data, err = r.fetch(ctx, img.URL)
	} else {
		data, err = decodeEmbedded(img.Data)
	}
	if err != nil {
		out.Error = err.Error()
		return
	}

	format, err := sniffImage(data)
	if err != nil {
		out.Error = err.Error()
		return
	}

	uploadCtx, cancel := context.WithTimeout(ctx, r.uploadTimeout())
	defer cancel()
	media, err := r.Uploader.UploadMedia(uploadCtx, filename(idx, img, format), "image/"+format, data)
	if err != nil {
		out.Error = fmt.Sprintf("upload failed: %v", err)
		return
	}
	out.MediaID = media.ID
	out.SourceURL = media.SourceURL
	out.Uploaded = true

	// Alt text and caption live on the media item, not the post.
	// Uploaded stays true when only the metadata write fails.
	if fields := metadataFields(img); len(fields) > 0 {
		if err := r.Uploader.UpdateMedia(uploadCtx, media.ID, fields); err != nil {
			out.Error = fmt.Sprintf("media metadata write failed: %v", err)
		}
	}
}

func metadataFields(img domain.ImageInput) map[string]any {
	fields := make(map[string]any)
	if strings.TrimSpace(img.AltText) != "" {
		fields["alt_text"] = img.AltText
	}
	if strings.TrimSpace(img.Caption) != "" {
		fields["caption"] = img.Caption
	}
	if strings.TrimSpace(img.Title) != "" {
		fields["title"] = img.Title
	}
	return fields
}

func (r *Resolver) fetchTimeout() time.Duration {
	if r.FetchTimeout > 0 {
		return r.FetchTimeout
	}
	return defaultFetchTimeout
}

func (r *Resolver) uploadTimeout() time.Duration {
	if r.UploadTimeout > 0 {
		return r.UploadTimeout
	}
	return defaultUploadTimeout
}

func (r *Resolver) maxBytes() int64 {
	if r.MaxBytes > 0 {
		return r.MaxBytes
	}
	return defaultMaxBytes
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid image url %q", rawURL)
	}
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes()+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > r.maxBytes() {
		return nil, fmt.Errorf("image exceeds %d byte limit", r.maxBytes())
	}
	return data, nil
}

// decodeEmbedded accepts standard or URL-safe base64, with or without
// a data-URI prefix.
func decodeEmbedded(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i > 0 {
		s = s[i+len(";base64,"):]
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode embedded image data: %w", err)
	}
	return data, nil
}

// sniffImage verifies the bytes decode as a supported image and
// returns the format name (png, jpeg, gif, webp).
func sniffImage(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("unsupported or corrupt image data: %w", err)
	}
	return format, nil
}

func filename(idx int, img domain.ImageInput, format string) string {
	base := ""
	if img.Title != "" {
		base = slug.Make(img.Title)
	}
	if base == "" && img.URL != "" {
		if u, err := url.Parse(img.URL); err == nil {
			base = slug.Make(strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path)))
		}
	}
	if base == "" {
		base = fmt.Sprintf("image-%d", idx+1)
	}
	ext := format
	if ext == "jpeg" {
		ext = "jpg"
	}
	return base + "." + ext
}
