// Package wp is the REST client for the remote content store. It
// performs exactly one attempt per call; retry policy belongs to the
// transport collaborator, not here.
package wp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const restBase = "/wp-json/wp/v2"

// Client talks to one WordPress site. Credentials are fixed at
// construction and never re-read mid-request.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration

	authHeader string
}

// New builds a client from the site base URL and an application
// password pair. The basic-auth header is constructed once here.
func New(baseURL, username, appPassword string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + appPassword))
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
		authHeader: "Basic " + cred,
	}
}

// APIError wraps non-2xx responses from the store.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wordpress api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Post is the store's post resource (partial).
type Post struct {
	ID     int64  `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

// Term is a category or tag resource.
type Term struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Parent      int64  `json:"parent,omitempty"`
}

// Media is an uploaded media resource.
type Media struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
}

// NewPost is the create-post payload.
type NewPost struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Status     string  `json:"status"`
	Categories []int64 `json:"categories,omitempty"`
	Tags       []int64 `json:"tags,omitempty"`
}

// NewTerm is the create-category/tag payload.
type NewTerm struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Parent      int64  `json:"parent,omitempty"`
}

func (c *Client) CreatePost(ctx context.Context, p NewPost) (Post, error) {
	var resp Post
	err := c.doJSON(ctx, http.MethodPost, "posts", p, &resp)
	return resp, err
}

func (c *Client) GetPost(ctx context.Context, id int64) (Post, error) {
	var resp struct {
		ID     int64  `json:"id"`
		Link   string `json:"link"`
		Status string `json:"status"`
	}
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("posts/%d", id), nil, &resp)
	return Post{ID: resp.ID, Link: resp.Link, Status: resp.Status}, err
}

// UpdatePost posts arbitrary fields onto an existing post. Used for
// status writes, featured_media attachment and both SEO surfaces.
func (c *Client) UpdatePost(ctx context.Context, id int64, fields map[string]any) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("posts/%d", id), fields, nil)
}

func (c *Client) FindCategoryByName(ctx context.Context, name string) (*Term, error) {
	return c.findTerm(ctx, "categories", name)
}

func (c *Client) CreateCategory(ctx context.Context, t NewTerm) (Term, error) {
	var resp Term
	err := c.doJSON(ctx, http.MethodPost, "categories", t, &resp)
	return resp, err
}

func (c *Client) FindTagByName(ctx context.Context, name string) (*Term, error) {
	return c.findTerm(ctx, "tags", name)
}

func (c *Client) CreateTag(ctx context.Context, t NewTerm) (Term, error) {
	var resp Term
	err := c.doJSON(ctx, http.MethodPost, "tags", t, &resp)
	return resp, err
}

// findTerm searches by name and requires an exact (case-insensitive)
// match; the store's search endpoint matches substrings.
func (c *Client) findTerm(ctx context.Context, kind, name string) (*Term, error) {
	endpoint := fmt.Sprintf("%s?search=%s&per_page=100", kind, url.QueryEscape(name))
	var terms []Term
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &terms); err != nil {
		return nil, err
	}
	for i := range terms {
		if strings.EqualFold(terms[i].Name, name) {
			return &terms[i], nil
		}
	}
	return nil, nil
}

// UploadMedia sends raw image bytes. The store derives the attachment
// from the content type and disposition filename.
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (Media, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "media", bytes.NewReader(data))
	if err != nil {
		return Media{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	var resp Media
	if err := c.send(req, &resp); err != nil {
		return Media{}, err
	}
	return resp, nil
}

// UpdateMedia posts fields onto an existing media item. Used to set
// alt text, caption and title after the raw upload.
func (c *Client) UpdateMedia(ctx context.Context, id int64, fields map[string]any) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("media/%d", id), fields, nil)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := c.BaseURL + restBase + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.authHeader)
	return req, nil
}

// send issues one request. The client is shared across concurrent
// callers and must not be mutated past construction.
func (c *Client) send(req *http.Request, out any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
