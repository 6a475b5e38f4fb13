package engine_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"pressgate/internal/config"
	"pressgate/internal/db"
	"pressgate/internal/domain"
	"pressgate/internal/engine"
	"pressgate/internal/migrate"
	"pressgate/internal/taxonomy"
	"pressgate/internal/wp"
)

// fakeStore is an in-memory RemoteStore. Term lookups are exact
// case-insensitive name matches, like the real endpoint behaves after
// client-side filtering.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	posts      map[int64]*wp.Post
	updates    map[int64][]map[string]any
	categories []wp.Term
	tags       []wp.Term
	uploads    []string
	failUpload map[string]bool
	media      map[int64]map[string]any
	createErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:     100,
		posts:      make(map[int64]*wp.Post),
		updates:    make(map[int64][]map[string]any),
		failUpload: make(map[string]bool),
		media:      make(map[int64]map[string]any),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreatePost(ctx context.Context, p wp.NewPost) (wp.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return wp.Post{}, f.createErr
	}
	id := f.id()
	post := wp.Post{ID: id, Link: fmt.Sprintf("https://example.com/?p=%d", id), Status: p.Status}
	f.posts[post.ID] = &post
	return post, nil
}

func (f *fakeStore) GetPost(ctx context.Context, id int64) (wp.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[id]
	if !ok {
		return wp.Post{}, &wp.APIError{StatusCode: http.StatusNotFound, Body: "not found"}
	}
	return *post, nil
}

func (f *fakeStore) UpdatePost(ctx context.Context, id int64, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[id]
	if !ok {
		return &wp.APIError{StatusCode: http.StatusNotFound, Body: "not found"}
	}
	if st, ok := fields["status"].(string); ok {
		post.Status = st
	}
	f.updates[id] = append(f.updates[id], fields)
	return nil
}

func findTerm(terms []wp.Term, name string) *wp.Term {
	for i := range terms {
		if strings.EqualFold(terms[i].Name, name) {
			return &terms[i]
		}
	}
	return nil
}

func (f *fakeStore) FindCategoryByName(ctx context.Context, name string) (*wp.Term, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return findTerm(f.categories, name), nil
}

func (f *fakeStore) CreateCategory(ctx context.Context, t wp.NewTerm) (wp.Term, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	term := wp.Term{ID: f.id(), Name: t.Name, Slug: t.Slug, Description: t.Description}
	f.categories = append(f.categories, term)
	return term, nil
}

func (f *fakeStore) FindTagByName(ctx context.Context, name string) (*wp.Term, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return findTerm(f.tags, name), nil
}

func (f *fakeStore) CreateTag(ctx context.Context, t wp.NewTerm) (wp.Term, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	term := wp.Term{ID: f.id(), Name: t.Name, Slug: t.Slug}
	f.tags = append(f.tags, term)
	return term, nil
}

func (f *fakeStore) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (wp.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload[filename] {
		return wp.Media{}, &wp.APIError{StatusCode: http.StatusInternalServerError, Body: "upload rejected"}
	}
	f.uploads = append(f.uploads, filename)
	return wp.Media{ID: f.id(), SourceURL: "https://example.com/media/" + filename}, nil
}

func (f *fakeStore) UpdateMedia(ctx context.Context, id int64, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[id] = fields
	return nil
}

// updatedFields flattens every UpdatePost call for a post into one map,
// later calls winning.
func (f *fakeStore) updatedFields(id int64) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	merged := make(map[string]any)
	for _, fields := range f.updates[id] {
		for k, v := range fields {
			merged[k] = v
		}
	}
	return merged
}

type testEnv struct {
	Engine engine.Engine
	Store  *fakeStore
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := newFakeStore()
	eng := engine.New(conn, store, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Store: store, Ctx: context.Background()}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPublishCreatesPostAndCategory(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.Engine.Publish(env.Ctx, domain.PublishRequest{
		Title:      "Hello World",
		Content:    "<p>First post.</p>",
		Categories: []string{"Tech"},
	}, "tester")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.PostID == 0 || result.PostURL == "" {
		t.Fatalf("missing post identity: %+v", result)
	}
	if result.Status != "publish" {
		t.Fatalf("default status = %q, want publish", result.Status)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if len(result.Categories) != 1 {
		t.Fatalf("categories = %+v", result.Categories)
	}
	cat := result.Categories[0]
	if cat.Name != "Tech" || cat.Slug != "tech" || !cat.Created {
		t.Fatalf("category = %+v", cat)
	}

	// reuse on second publish, no duplicate term
	second, err := env.Engine.Publish(env.Ctx, domain.PublishRequest{
		Title:      "Hello Again",
		Content:    "body",
		Categories: []string{"tech"},
	}, "tester")
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if second.Categories[0].ID != cat.ID || second.Categories[0].Created {
		t.Fatalf("expected reuse of category %d, got %+v", cat.ID, second.Categories[0])
	}

	records, err := env.Engine.Repo.ListPublishes(env.Ctx, 10)
	if err != nil {
		t.Fatalf("list publishes: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("history rows = %d, want 2", len(records))
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "publish.completed")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("publish events = %d, want 2", len(events))
	}
}

func TestPublishValidationListsEveryField(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Publish(env.Ctx, domain.PublishRequest{
		Title:      "   ",
		Content:    "",
		Status:     "scheduled",
		Categories: []string{"Tech", "tech"},
	}, "tester")
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	wantFields := []string{"title", "content", "status", "categories[1]"}
	for _, want := range wantFields {
		found := false
		for _, f := range verr.Fields {
			if f.Field == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing field error %q in %+v", want, verr.Fields)
		}
	}
	if len(env.Store.posts) != 0 {
		t.Fatalf("no post should exist after validation failure")
	}
}

func TestPublishSEOTruncatesAndDualWrites(t *testing.T) {
	env := newTestEnv(t)
	longTitle := strings.Repeat("x", 80)
	result, err := env.Engine.Publish(env.Ctx, domain.PublishRequest{
		Title:   "SEO Post",
		Content: "body",
		SEO:     &domain.SEOInput{MetaTitle: longTitle, FocusKeyword: "seo"},
	}, "tester")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.SEO == nil || !result.SEO.PrimaryWritten || !result.SEO.FallbackWritten {
		t.Fatalf("seo outcome = %+v", result.SEO)
	}
	truncated := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "meta_title truncated") {
			truncated = true
		}
	}
	if !truncated {
		t.Fatalf("expected truncation warning, got %v", result.Warnings)
	}

	fields := env.Store.updatedFields(result.PostID)
	title, _ := fields["rank_math_title"].(string)
	if utf8.RuneCountInString(title) != 60 {
		t.Fatalf("stored meta title length = %d, want 60", utf8.RuneCountInString(title))
	}
	meta, ok := fields["meta"].(map[string]any)
	if !ok {
		t.Fatalf("fallback meta missing: %+v", fields)
	}
	if meta["rank_math_title"] != title {
		t.Fatalf("fallback title mismatch")
	}
}

func TestPublishSurvivesOneImageFailure(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	result, err := env.Engine.Publish(env.Ctx, domain.PublishRequest{
		Title:   "Gallery",
		Content: "body",
		Images: []domain.ImageInput{
			{URL: srv.URL + "/missing.jpg"},
			{Data: base64.StdEncoding.EncodeToString(pngBytes(t)), Title: "Cover"},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("publish must survive a failed image: %v", err)
	}
	if len(result.Images) != 2 {
		t.Fatalf("outcomes = %+v", result.Images)
	}
	if result.Images[0].Uploaded || result.Images[0].Error == "" {
		t.Fatalf("first image should have failed: %+v", result.Images[0])
	}
	if !result.Images[1].Uploaded || !result.Images[1].Featured {
		t.Fatalf("second image should be uploaded and featured: %+v", result.Images[1])
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected a warning for the failed image")
	}

	fields := env.Store.updatedFields(result.PostID)
	if fields["featured_media"] != result.Images[1].MediaID {
		t.Fatalf("featured_media = %v, want %d", fields["featured_media"], result.Images[1].MediaID)
	}
}

func TestPublishValidatesImageMetadataBounds(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Publish(env.Ctx, domain.PublishRequest{
		Title:   "Bounds",
		Content: "body",
		Images: []domain.ImageInput{{
			Data:    "aGk=",
			AltText: strings.Repeat("a", 501),
			Caption: strings.Repeat("c", 1001),
			Title:   strings.Repeat("t", 201),
		}},
	}, "tester")
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	for _, want := range []string{"images[0].alt_text", "images[0].caption", "images[0].title"} {
		found := false
		for _, f := range verr.Fields {
			if f.Field == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing field error %q in %+v", want, verr.Fields)
		}
	}
	if len(env.Store.posts) != 0 {
		t.Fatalf("no post should exist after validation failure")
	}
}

func TestPublishWritesImageAltTextAndCaption(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.Engine.Publish(env.Ctx, domain.PublishRequest{
		Title:   "Captioned",
		Content: "body",
		Images: []domain.ImageInput{{
			Data:    base64.StdEncoding.EncodeToString(pngBytes(t)),
			AltText: "A red pixel up close",
			Caption: "Macro photography",
		}},
	}, "tester")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(result.Images) != 1 || !result.Images[0].Uploaded {
		t.Fatalf("outcomes = %+v", result.Images)
	}
	fields := env.Store.media[result.Images[0].MediaID]
	if fields == nil {
		t.Fatalf("no metadata written for media %d", result.Images[0].MediaID)
	}
	if fields["alt_text"] != "A red pixel up close" || fields["caption"] != "Macro photography" {
		t.Fatalf("media fields = %+v", fields)
	}
}

func TestPublishCancelledBeforeCreation(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(env.Ctx)
	cancel()
	_, err := env.Engine.Publish(ctx, domain.PublishRequest{Title: "Late", Content: "body"}, "tester")
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if len(env.Store.posts) != 0 {
		t.Fatalf("no post may be created after cancellation")
	}
}

func TestUpdateStatusAdvisoryTransition(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.Engine.Publish(env.Ctx, domain.PublishRequest{Title: "Live", Content: "body"}, "tester")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	update, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{
		PostID:             result.PostID,
		NewStatus:          "draft",
		ChangedBy:          "tester",
		ValidateTransition: true,
		IncludeMetadata:    true,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if update.PreviousStatus != "publish" || update.NewStatus != "draft" {
		t.Fatalf("transition = %s to %s", update.PreviousStatus, update.NewStatus)
	}
	if len(update.Warnings) == 0 {
		t.Fatalf("discouraged transition should warn")
	}
	if update.StatusDisplay == nil || update.StatusDisplay.Label == "" || update.Transition == nil {
		t.Fatalf("metadata missing: %+v", update)
	}
	if got := env.Store.posts[result.PostID].Status; got != "draft" {
		t.Fatalf("remote status = %q", got)
	}

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "post.status_changed")
	if err != nil || len(events) != 1 {
		t.Fatalf("status events = %d (%v)", len(events), err)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{PostID: 1, NewStatus: "archived"})
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestCheckHierarchyReport(t *testing.T) {
	env := newTestEnv(t)
	cats := []taxonomy.Category{
		{ID: 1, Name: "Animals"},
		{ID: 2, Name: "Cats", Parent: 1},
		{ID: 3, Name: "Tabby", Parent: 2},
	}
	report := env.Engine.CheckHierarchy(cats, 0)
	if !report.Valid || len(report.Errors) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Terms) != 3 {
		t.Fatalf("terms = %+v", report.Terms)
	}
	if report.Terms[2].Path != "Animals > Cats > Tabby" {
		t.Fatalf("path = %q", report.Terms[2].Path)
	}

	deep := env.Engine.CheckHierarchy(cats, 1)
	if deep.Valid {
		t.Fatalf("depth 2 should exceed limit 1")
	}
}

func TestDryRunPreviewsWithoutRemoteCalls(t *testing.T) {
	env := newTestEnv(t)
	preview := env.Engine.DryRun(domain.PublishRequest{
		Title:      "Preview",
		Content:    "body",
		Categories: []string{"Data Science"},
		SEO:        &domain.SEOInput{MetaTitle: "t"},
	})
	if !preview.Valid {
		t.Fatalf("preview invalid: %+v", preview.FieldErrors)
	}
	if len(preview.Categories) != 1 || preview.Categories[0].Slug != "data-science" {
		t.Fatalf("category preview = %+v", preview.Categories)
	}
	defaulted := false
	for _, w := range preview.SEOWarnings {
		if strings.Contains(w, "defaulted") {
			defaulted = true
		}
	}
	if !defaulted {
		t.Fatalf("expected keyword defaulting warning, got %v", preview.SEOWarnings)
	}
	if len(env.Store.categories) != 0 || len(env.Store.posts) != 0 {
		t.Fatalf("dry run must not touch the store")
	}
}
