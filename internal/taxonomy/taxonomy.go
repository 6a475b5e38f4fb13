// Package taxonomy validates and normalizes category and tag input and
// reasons about category hierarchies before anything reaches the
// remote store, which enforces none of this itself.
package taxonomy

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"pressgate/internal/slug"
)

const (
	DefaultMaxNameLength        = 200
	DefaultMaxDescriptionLength = 1000
	DefaultMaxDepth             = 10
)

var (
	ErrNameRequired  = errors.New("name is required")
	ErrNameTooLong   = errors.New("name exceeds maximum length")
	ErrInvalidSlug   = errors.New("slug must contain only lowercase letters, digits and hyphens")
	ErrReservedSlug  = errors.New("slug collides with a reserved word")
	ErrInvalidParent = errors.New("parent must be a positive id")
	ErrSelfParent    = errors.New("category cannot be its own parent")
)

var defaultSlugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

var sanitizePolicy = bluemonday.StrictPolicy()

// Category is a taxonomy term as the validator sees it. ID is zero
// before the remote store assigns one; Parent is zero for roots.
type Category struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Parent      int64  `json:"parent,omitempty"`
}

// Options tune validation. The zero value applies the defaults with
// name required and HTML stripped from descriptions.
type Options struct {
	NameOptional         bool
	MaxNameLength        int
	MaxDescriptionLength int
	AllowHTML            bool
	SlugPattern          *regexp.Regexp
	Slug                 slug.Options
}

// Result carries the outcome of validating a single term. When Err is
// nil the sanitized fields are safe to send to the remote store.
type Result struct {
	Valid       bool
	Err         error
	Warnings    []string
	Name        string
	Description string
	Slug        string
}

func (o Options) maxName() int {
	if o.MaxNameLength > 0 {
		return o.MaxNameLength
	}
	return DefaultMaxNameLength
}

func (o Options) maxDescription() int {
	if o.MaxDescriptionLength > 0 {
		return o.MaxDescriptionLength
	}
	return DefaultMaxDescriptionLength
}

func (o Options) slugPattern() *regexp.Regexp {
	if o.SlugPattern != nil {
		return o.SlugPattern
	}
	return defaultSlugPattern
}

// ValidateCategory validates and normalizes one category. Checks run
// in a fixed order and the first hard violation wins; description
// truncation only ever warns.
func ValidateCategory(input Category, opts Options) Result {
	res := validateTerm(input.Name, input.Slug, input.Description, opts)
	if res.Err != nil {
		return res
	}
	if input.Parent < 0 {
		return invalid(ErrInvalidParent)
	}
	if input.Parent != 0 && input.ID != 0 && input.Parent == input.ID {
		return invalid(ErrSelfParent)
	}
	return res
}

// ValidateTag is ValidateCategory without the hierarchy concerns; tags
// have no parent.
func ValidateTag(input Category, opts Options) Result {
	return validateTerm(input.Name, input.Slug, input.Description, opts)
}

func invalid(err error) Result {
	return Result{Valid: false, Err: err}
}

func validateTerm(name, explicitSlug, description string, opts Options) Result {
	res := Result{}

	name = strings.TrimSpace(name)
	if name == "" && !opts.NameOptional {
		return invalid(ErrNameRequired)
	}
	if len([]rune(name)) > opts.maxName() {
		return invalid(fmt.Errorf("%w (%d > %d)", ErrNameTooLong, len([]rune(name)), opts.maxName()))
	}
	res.Name = name

	if description != "" {
		if !opts.AllowHTML {
			description = html.UnescapeString(sanitizePolicy.Sanitize(description))
		}
		description = strings.TrimSpace(description)
		if runes := []rune(description); len(runes) > opts.maxDescription() {
			description = string(runes[:opts.maxDescription()])
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("description truncated to %d characters", opts.maxDescription()))
		}
	}
	res.Description = description

	if explicitSlug != "" {
		s := strings.TrimSpace(explicitSlug)
		if !opts.slugPattern().MatchString(s) {
			return invalid(fmt.Errorf("%w: %q", ErrInvalidSlug, s))
		}
		if _, reserved := opts.Slug.Reserved[s]; reserved {
			return invalid(fmt.Errorf("%w: %q", ErrReservedSlug, s))
		}
		res.Slug = s
	} else if name != "" {
		res.Slug = slug.MakeWithOptions(name, opts.Slug)
	}

	res.Valid = true
	return res
}

// HierarchyIssue names one node's problem found during a hierarchy
// walk.
type HierarchyIssue struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

type HierarchyResult struct {
	Errors   []HierarchyIssue
	Warnings []HierarchyIssue
}

func (r HierarchyResult) OK() bool { return len(r.Errors) == 0 }

// ValidateHierarchy walks every category's parent chain to its root.
// Depth is the ancestor count: a node at exactly maxDepth warns, a
// node beyond it errors, and revisiting an id mid-walk is a cycle
// error. A parent id absent from the set ends the walk (orphans are
// roots, not errors).
func ValidateHierarchy(cats []Category, maxDepth int) HierarchyResult {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	byID := make(map[int64]Category, len(cats))
	for _, c := range cats {
		if c.ID != 0 {
			byID[c.ID] = c
		}
	}

	var res HierarchyResult
	for _, c := range cats {
		depth := 0
		visited := map[int64]bool{c.ID: true}
		cycle := false
		cur := c
		for cur.Parent != 0 {
			parent, ok := byID[cur.Parent]
			if !ok {
				break
			}
			if visited[parent.ID] {
				res.Errors = append(res.Errors, HierarchyIssue{
					CategoryID: c.ID, Name: c.Name,
					Message: fmt.Sprintf("cycle detected through category %d", parent.ID),
				})
				cycle = true
				break
			}
			visited[parent.ID] = true
			depth++
			cur = parent
		}
		if cycle {
			continue
		}
		switch {
		case depth > maxDepth:
			res.Errors = append(res.Errors, HierarchyIssue{
				CategoryID: c.ID, Name: c.Name,
				Message: fmt.Sprintf("hierarchy depth %d exceeds maximum %d", depth, maxDepth),
			})
		case depth == maxDepth:
			res.Warnings = append(res.Warnings, HierarchyIssue{
				CategoryID: c.ID, Name: c.Name,
				Message: fmt.Sprintf("hierarchy depth %d is at the configured maximum", depth),
			})
		}
	}
	return res
}

// BuildPath joins ancestor names root-to-leaf with " > ". A parent id
// missing from all means the walk stops there; cycles terminate at
// the first revisit.
func BuildPath(cat Category, all []Category) string {
	byID := make(map[int64]Category, len(all))
	for _, c := range all {
		if c.ID != 0 {
			byID[c.ID] = c
		}
	}
	names := []string{cat.Name}
	visited := map[int64]bool{cat.ID: true}
	cur := cat
	for cur.Parent != 0 {
		parent, ok := byID[cur.Parent]
		if !ok || visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		names = append([]string{parent.Name}, names...)
		cur = parent
	}
	return strings.Join(names, " > ")
}

// SortByHierarchy returns categories in depth-first order: roots
// alphabetically, then each root's descendants recursively, children
// alphabetical at every level. Categories whose declared parent is
// absent are treated as roots, never dropped.
func SortByHierarchy(cats []Category) []Category {
	known := make(map[int64]bool, len(cats))
	for _, c := range cats {
		if c.ID != 0 {
			known[c.ID] = true
		}
	}

	children := make(map[int64][]Category)
	var roots []Category
	for _, c := range cats {
		if c.Parent == 0 || !known[c.Parent] || c.Parent == c.ID {
			roots = append(roots, c)
		} else {
			children[c.Parent] = append(children[c.Parent], c)
		}
	}
	byName := func(s []Category) {
		sort.SliceStable(s, func(i, j int) bool {
			return strings.ToLower(s[i].Name) < strings.ToLower(s[j].Name)
		})
	}
	byName(roots)
	for id := range children {
		byName(children[id])
	}

	out := make([]Category, 0, len(cats))
	var walk func(c Category)
	walk = func(c Category) {
		out = append(out, c)
		for _, child := range children[c.ID] {
			walk(child)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}
