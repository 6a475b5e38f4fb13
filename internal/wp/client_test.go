package wp_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/internal/wp"
)

func TestCreatePostSendsAuthAndPayload(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "link": "https://example.com/?p=42", "status": "publish"})
	}))
	defer srv.Close()

	c := wp.New(srv.URL, "bot", "secret", time.Second)
	post, err := c.CreatePost(context.Background(), wp.NewPost{Title: "Hello", Content: "<p>Hi</p>", Status: "publish"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), post.ID)
	assert.Equal(t, "https://example.com/?p=42", post.Link)
	assert.Equal(t, "/wp-json/wp/v2/posts", gotPath)
	assert.True(t, strings.HasPrefix(gotAuth, "Basic "))
	assert.Equal(t, "Hello", gotBody["title"])
}

func TestFindTermExactMatchOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Tech", r.URL.Query().Get("search"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "Technology", "slug": "technology"},
			{"id": 2, "name": "tech", "slug": "tech"},
		})
	}))
	defer srv.Close()

	c := wp.New(srv.URL, "bot", "secret", time.Second)
	term, err := c.FindCategoryByName(context.Background(), "Tech")
	require.NoError(t, err)
	require.NotNil(t, term)
	assert.Equal(t, int64(2), term.ID)

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv2.Close()
	c2 := wp.New(srv2.URL, "bot", "secret", time.Second)
	missing, err := c2.FindCategoryByName(context.Background(), "Nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUploadMediaHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Contains(t, r.Header.Get("Content-Disposition"), `filename="cover.png"`)
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{1, 2, 3}, data)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 9, "source_url": "https://example.com/cover.png"})
	}))
	defer srv.Close()

	c := wp.New(srv.URL, "bot", "secret", time.Second)
	media, err := c.UploadMedia(context.Background(), "cover.png", "image/png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(9), media.ID)
}

func TestUpdateMediaFields(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 9})
	}))
	defer srv.Close()

	c := wp.New(srv.URL, "bot", "secret", time.Second)
	err := c.UpdateMedia(context.Background(), 9, map[string]any{"alt_text": "A tabby cat", "caption": "Office cat"})
	require.NoError(t, err)
	assert.Equal(t, "/wp-json/wp/v2/media/9", gotPath)
	assert.Equal(t, "A tabby cat", gotBody["alt_text"])
	assert.Equal(t, "Office cat", gotBody["caption"])
}

func TestClientSharedAcrossGoroutines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "status": "draft"})
	}))
	defer srv.Close()

	c := wp.New(srv.URL, "bot", "secret", time.Second)
	require.NotNil(t, c.HTTPClient)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetPost(context.Background(), 1)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"code":"rest_forbidden"}`)
	}))
	defer srv.Close()

	c := wp.New(srv.URL, "bot", "secret", time.Second)
	_, err := c.GetPost(context.Background(), 1)
	require.Error(t, err)
	var apiErr *wp.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "rest_forbidden")
}
