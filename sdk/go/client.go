package pressgatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Pressgate HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. The returned client is
// safe for concurrent use.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Timeout:    60 * time.Second,
	}
}

// ImageInput describes one image to attach. Set either URL or Data
// (base64-encoded bytes), never both.
type ImageInput struct {
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	AltText  string `json:"alt_text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Title    string `json:"title,omitempty"`
	Featured bool   `json:"featured,omitempty"`
}

// SEOInput carries optional search metadata for a post.
type SEOInput struct {
	MetaTitle          string `json:"meta_title,omitempty"`
	MetaDescription    string `json:"meta_description,omitempty"`
	FocusKeyword       string `json:"focus_keyword,omitempty"`
	OGTitle            string `json:"og_title,omitempty"`
	OGDescription      string `json:"og_description,omitempty"`
	OGImage            string `json:"og_image,omitempty"`
	TwitterTitle       string `json:"twitter_title,omitempty"`
	TwitterDescription string `json:"twitter_description,omitempty"`
}

// PublishRequest is the full publish payload.
type PublishRequest struct {
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Excerpt    string       `json:"excerpt,omitempty"`
	Status     string       `json:"status,omitempty"`
	Categories []string     `json:"categories,omitempty"`
	Tags       []string     `json:"tags,omitempty"`
	Images     []ImageInput `json:"images,omitempty"`
	SEO        *SEOInput    `json:"seo,omitempty"`
}

// ResolvedTerm is a category or tag after lookup-or-create.
type ResolvedTerm struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Created bool   `json:"created"`
}

// ImageOutcome records one image's upload result.
type ImageOutcome struct {
	Index     int    `json:"index"`
	MediaID   int64  `json:"media_id,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Uploaded  bool   `json:"uploaded"`
	Featured  bool   `json:"featured"`
	Error     string `json:"error,omitempty"`
}

// SEOOutcome reports which write surfaces succeeded.
type SEOOutcome struct {
	PrimaryWritten  bool `json:"primary_written"`
	FallbackWritten bool `json:"fallback_written"`
}

// PublishResult is the outcome of one publish call.
type PublishResult struct {
	PostID     int64          `json:"post_id"`
	PostURL    string         `json:"post_url,omitempty"`
	Status     string         `json:"status"`
	Categories []ResolvedTerm `json:"categories,omitempty"`
	Tags       []ResolvedTerm `json:"tags,omitempty"`
	Images     []ImageOutcome `json:"images,omitempty"`
	SEO        *SEOOutcome    `json:"seo,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// StatusUpdateResult reports a status change.
type StatusUpdateResult struct {
	PostID         int64    `json:"post_id"`
	PreviousStatus string   `json:"previous_status"`
	NewStatus      string   `json:"new_status"`
	Timestamp      string   `json:"timestamp"`
	Warnings       []string `json:"warnings,omitempty"`
}

// PublishRecord is one row of the server's publish history.
type PublishRecord struct {
	ID        string `json:"id"`
	PostID    int64  `json:"post_id"`
	PostURL   string `json:"post_url,omitempty"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	ActorID   string `json:"actor_id"`
	CreatedAt string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Publish sends a publish request and returns the result.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	var resp PublishResult
	err := c.do(ctx, http.MethodPost, "v1/publish", req, &resp)
	return resp, err
}

// Validate dry-runs a publish request. The returned map mirrors the
// server's preview body.
func (c *Client) Validate(ctx context.Context, req PublishRequest) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodPost, "v1/validate", req, &resp)
	return resp, err
}

// UpdateStatus moves a post to a new status.
func (c *Client) UpdateStatus(ctx context.Context, postID int64, newStatus, reason string) (StatusUpdateResult, error) {
	body := map[string]any{
		"status":              newStatus,
		"reason":              reason,
		"validate_transition": true,
	}
	var resp StatusUpdateResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/posts/%d/status", postID), body, &resp)
	return resp, err
}

// Publishes returns recent publish history.
func (c *Client) Publishes(ctx context.Context, limit int) ([]PublishRecord, error) {
	endpoint := "v1/publishes"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Publishes []PublishRecord `json:"publishes"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Publishes, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
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

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
