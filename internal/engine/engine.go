// Package engine orchestrates publishing: validation, taxonomy
// resolution, post creation, media attachment and SEO writes, in that
// order. Everything after post creation is best-effort; a reachable,
// partially-enriched post always beats no post.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pressgate/internal/config"
	"pressgate/internal/domain"
	"pressgate/internal/events"
	"pressgate/internal/media"
	"pressgate/internal/repo"
	"pressgate/internal/seo"
	"pressgate/internal/slug"
	"pressgate/internal/status"
	"pressgate/internal/taxonomy"
	"pressgate/internal/wp"
)

// RemoteStore is the slice of the WordPress client the engine uses.
// *wp.Client satisfies it; tests substitute fakes.
type RemoteStore interface {
	CreatePost(ctx context.Context, p wp.NewPost) (wp.Post, error)
	GetPost(ctx context.Context, id int64) (wp.Post, error)
	UpdatePost(ctx context.Context, id int64, fields map[string]any) error
	FindCategoryByName(ctx context.Context, name string) (*wp.Term, error)
	CreateCategory(ctx context.Context, t wp.NewTerm) (wp.Term, error)
	FindTagByName(ctx context.Context, name string) (*wp.Term, error)
	CreateTag(ctx context.Context, t wp.NewTerm) (wp.Term, error)
	UploadMedia(ctx context.Context, filename, contentType string, data []byte) (wp.Media, error)
	UpdateMedia(ctx context.Context, id int64, fields map[string]any) error
}

type Engine struct {
	DB     *sql.DB
	Store  RemoteStore
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(conn *sql.DB, store RemoteStore, cfg *config.Config) Engine {
	return Engine{
		DB:     conn,
		Store:  store,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) slugOptions() slug.Options {
	return slug.New(e.Config.Slug.MaxLength, e.Config.Slug.Reserved, e.Config.Slug.ReservedSuffix)
}

func (e Engine) taxonomyOptions() taxonomy.Options {
	return taxonomy.Options{
		MaxNameLength:        e.Config.Taxonomy.MaxNameLength,
		MaxDescriptionLength: e.Config.Taxonomy.MaxDescriptionLength,
		AllowHTML:            e.Config.Taxonomy.AllowHTML,
		Slug:                 e.slugOptions(),
	}
}

func (e Engine) mediaResolver() *media.Resolver {
	return &media.Resolver{
		Uploader:       e.Store,
		FetchTimeout:   e.Config.Media.FetchTimeout.Std(),
		UploadTimeout:  e.Config.Media.UploadTimeout.Std(),
		MaxConcurrency: e.Config.Media.MaxConcurrency,
		MaxBytes:       e.Config.Media.MaxBytes,
	}
}

// Publish runs the full pipeline for one request. A returned error
// means no post exists; once creation succeeds every later failure is
// downgraded to a warning on the result.
func (e Engine) Publish(ctx context.Context, req domain.PublishRequest, actorID string) (domain.PublishResult, error) {
	if err := ValidateRequest(req); err != nil {
		return domain.PublishResult{}, err
	}
	st, _ := status.Parse(req.Status)

	var warnings []string

	cats, tags, termWarnings := e.resolveTaxonomy(ctx, req)
	warnings = append(warnings, termWarnings...)

	// No post may be created after the caller has gone away.
	if err := ctx.Err(); err != nil {
		return domain.PublishResult{}, err
	}
	post, err := e.Store.CreatePost(ctx, wp.NewPost{
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		Excerpt:    strings.TrimSpace(req.Excerpt),
		Status:     string(st),
		Categories: termIDs(cats),
		Tags:       termIDs(tags),
	})
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("create post: %w", err)
	}

	result := domain.PublishResult{
		PostID:     post.ID,
		PostURL:    post.Link,
		Status:     string(st),
		Categories: cats,
		Tags:       tags,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}

	// The post exists now. Enrichment must run to completion even if
	// the caller cancels, or we orphan a post with no warning trail.
	enrichCtx := context.WithoutCancel(ctx)
	var mu sync.Mutex
	addWarnings := func(ws ...string) {
		mu.Lock()
		warnings = append(warnings, ws...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(enrichCtx)
	if len(req.Images) > 0 {
		g.Go(func() error {
			outcomes, featuredWarnings := e.attachMedia(gctx, post.ID, req.Images)
			mu.Lock()
			result.Images = outcomes
			mu.Unlock()
			addWarnings(featuredWarnings...)
			return nil
		})
	}
	if req.SEO != nil && !seo.Empty(*req.SEO) {
		g.Go(func() error {
			outcome, seoWarnings := e.writeSEO(gctx, post.ID, *req.SEO, req.Title)
			mu.Lock()
			result.SEO = &outcome
			mu.Unlock()
			addWarnings(seoWarnings...)
			return nil
		})
	}
	_ = g.Wait()

	result.Warnings = warnings
	e.recordPublish(enrichCtx, req, &result, actorID)
	return result, nil
}

// resolveTaxonomy looks up or creates every named category and tag.
// A term that cannot be validated or resolved is dropped with a
// warning; publishing proceeds without it.
func (e Engine) resolveTaxonomy(ctx context.Context, req domain.PublishRequest) (cats, tags []domain.ResolvedTerm, warnings []string) {
	opts := e.taxonomyOptions()
	for _, name := range req.Categories {
		term, warning := e.resolveTerm(ctx, name, "category", opts)
		if warning != "" {
			warnings = append(warnings, warning)
			continue
		}
		cats = append(cats, *term)
	}
	for _, name := range req.Tags {
		term, warning := e.resolveTerm(ctx, name, "tag", opts)
		if warning != "" {
			warnings = append(warnings, warning)
			continue
		}
		tags = append(tags, *term)
	}
	return cats, tags, warnings
}

func (e Engine) resolveTerm(ctx context.Context, name, kind string, opts taxonomy.Options) (*domain.ResolvedTerm, string) {
	input := taxonomy.Category{Name: name}
	var res taxonomy.Result
	if kind == "category" {
		res = taxonomy.ValidateCategory(input, opts)
	} else {
		res = taxonomy.ValidateTag(input, opts)
	}
	if !res.Valid {
		return nil, fmt.Sprintf("%s %q skipped: %v", kind, name, res.Err)
	}

	find := e.Store.FindCategoryByName
	create := e.Store.CreateCategory
	if kind == "tag" {
		find = e.Store.FindTagByName
		create = e.Store.CreateTag
	}

	existing, err := find(ctx, res.Name)
	if err != nil {
		return nil, fmt.Sprintf("%s %q skipped: lookup failed: %v", kind, name, err)
	}
	if existing != nil {
		return &domain.ResolvedTerm{ID: existing.ID, Name: existing.Name, Slug: existing.Slug}, ""
	}
	created, err := create(ctx, wp.NewTerm{Name: res.Name, Slug: res.Slug, Description: res.Description})
	if err != nil {
		return nil, fmt.Sprintf("%s %q skipped: create failed: %v", kind, name, err)
	}
	return &domain.ResolvedTerm{ID: created.ID, Name: created.Name, Slug: created.Slug, Created: true}, ""
}

func (e Engine) attachMedia(ctx context.Context, postID int64, images []domain.ImageInput) ([]domain.ImageOutcome, []string) {
	res := e.mediaResolver().Resolve(ctx, images)
	warnings := res.Warnings
	if res.FeaturedID != 0 {
		if err := e.Store.UpdatePost(ctx, postID, map[string]any{"featured_media": res.FeaturedID}); err != nil {
			warnings = append(warnings, fmt.Sprintf("setting featured image failed: %v", err))
		}
	}
	return res.Outcomes, warnings
}

// writeSEO always attempts both surfaces: the plugin exposure on the
// post, then the raw meta fallback. Either failing is a warning.
func (e Engine) writeSEO(ctx context.Context, postID int64, in domain.SEOInput, postTitle string) (domain.SEOOutcome, []string) {
	n, warnings, err := seo.Normalize(in, postTitle)
	if err != nil {
		return domain.SEOOutcome{}, append(warnings, fmt.Sprintf("seo skipped: %v", err))
	}
	var outcome domain.SEOOutcome
	if err := e.Store.UpdatePost(ctx, postID, seo.PrimaryFields(n)); err != nil {
		warnings = append(warnings, fmt.Sprintf("seo primary write failed: %v", err))
	} else {
		outcome.PrimaryWritten = true
	}
	if err := e.Store.UpdatePost(ctx, postID, seo.FallbackMeta(n)); err != nil {
		warnings = append(warnings, fmt.Sprintf("seo fallback write failed: %v", err))
	} else {
		outcome.FallbackWritten = true
	}
	return outcome, warnings
}

// recordPublish persists the local audit row and event. Local
// bookkeeping failures never fail the publish; they surface as
// warnings on the result.
func (e Engine) recordPublish(ctx context.Context, req domain.PublishRequest, result *domain.PublishResult, actorID string) {
	if e.DB == nil {
		return
	}
	warningsJSON, _ := json.Marshal(result.Warnings)
	imagesJSON, _ := json.Marshal(result.Images)
	rec := domain.PublishRecord{
		ID:           uuid.NewString(),
		PostID:       result.PostID,
		PostURL:      result.PostURL,
		Title:        strings.TrimSpace(req.Title),
		Status:       result.Status,
		ActorID:      actorID,
		WarningsJSON: string(warningsJSON),
		ImagesJSON:   string(imagesJSON),
		CreatedAt:    result.CreatedAt,
	}
	if err := e.Repo.InsertPublish(ctx, rec); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("publish history not recorded: %v", err))
		return
	}
	_ = e.Events.Append(ctx, nil, "publish.completed", "post", fmt.Sprint(result.PostID), actorID, events.EventPayload{
		"post_url": result.PostURL,
		"status":   result.Status,
		"warnings": len(result.Warnings),
	})
}

func termIDs(terms []domain.ResolvedTerm) []int64 {
	if len(terms) == 0 {
		return nil
	}
	ids := make([]int64, len(terms))
	for i, t := range terms {
		ids[i] = t.ID
	}
	return ids
}
