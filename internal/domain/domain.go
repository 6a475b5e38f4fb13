package domain

// PublishRequest is the inbound "publish a post" contract. Callers are
// automated content generators, so every field tolerates loose input;
// the engine validates and normalizes before any remote call.
type PublishRequest struct {
	Title      string       `json:"title" maxLength:"200"`
	Content    string       `json:"content" maxLength:"50000"`
	Excerpt    string       `json:"excerpt,omitempty" maxLength:"500"`
	Status     string       `json:"status,omitempty" enum:"draft,publish,private"`
	Categories []string     `json:"categories,omitempty" maxItems:"10"`
	Tags       []string     `json:"tags,omitempty" maxItems:"20"`
	Images     []ImageInput `json:"images,omitempty" maxItems:"10"`
	SEO        *SEOInput    `json:"seo,omitempty"`
}

// ImageInput describes one image to attach. Exactly one of URL and
// Data must be set; Data is base64-encoded bytes.
type ImageInput struct {
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	AltText  string `json:"alt_text,omitempty" maxLength:"500"`
	Caption  string `json:"caption,omitempty" maxLength:"1000"`
	Title    string `json:"title,omitempty" maxLength:"200"`
	Featured bool   `json:"featured,omitempty"`
}

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

// ImageOutcome records one descriptor's upload result. Outcomes keep
// the input order regardless of upload completion order.
type ImageOutcome struct {
	Index     int    `json:"index"`
	MediaID   int64  `json:"media_id,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Uploaded  bool   `json:"uploaded"`
	Featured  bool   `json:"featured"`
	Error     string `json:"error,omitempty"`
}

type SEOOutcome struct {
	PrimaryWritten  bool `json:"primary_written"`
	FallbackWritten bool `json:"fallback_written"`
}

// ResolvedTerm is a category or tag after lookup-or-create against the
// remote store.
type ResolvedTerm struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Created bool   `json:"created"`
}

// PublishResult is the unified outcome of one publish operation. Once
// PostID is set the operation succeeded; steps after post creation can
// only add warnings, never flip success.
type PublishResult struct {
	PostID     int64          `json:"post_id"`
	PostURL    string         `json:"post_url,omitempty"`
	Status     string         `json:"status" enum:"draft,publish,private"`
	Categories []ResolvedTerm `json:"categories,omitempty"`
	Tags       []ResolvedTerm `json:"tags,omitempty"`
	Images     []ImageOutcome `json:"images,omitempty"`
	SEO        *SEOOutcome    `json:"seo,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
}

// StatusDisplay is presentation metadata for a post status, a pure
// lookup never derived from remote data.
type StatusDisplay struct {
	Status      string `json:"status"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type TransitionInfo struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Recommended bool   `json:"recommended"`
	Note        string `json:"note,omitempty"`
}

type StatusUpdateResult struct {
	PostID          int64           `json:"post_id"`
	PreviousStatus  string          `json:"previous_status"`
	NewStatus       string          `json:"new_status"`
	Timestamp       string          `json:"timestamp" format:"date-time"`
	StatusDisplay   *StatusDisplay  `json:"status_display,omitempty"`
	PreviousDisplay *StatusDisplay  `json:"previous_display,omitempty"`
	Transition      *TransitionInfo `json:"transition,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// PublishRecord is the locally persisted audit row for one publish
// operation. WarningsJSON and ImagesJSON hold the marshalled slices
// from the PublishResult.
type PublishRecord struct {
	ID           string `json:"id"`
	PostID       int64  `json:"post_id"`
	PostURL      string `json:"post_url,omitempty"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	ActorID      string `json:"actor_id"`
	WarningsJSON string `json:"warnings_json,omitempty"`
	ImagesJSON   string `json:"images_json,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
