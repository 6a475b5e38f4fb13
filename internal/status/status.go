// Package status models the post lifecycle: draft, publish, private.
// The transition graph is complete; checks only annotate, they never
// block a write.
package status

import (
	"fmt"

	"pressgate/internal/domain"
)

type Status string

const (
	Draft   Status = "draft"
	Publish Status = "publish"
	Private Status = "private"
)

// Default is the status applied when a publish request omits one.
const Default = Publish

// All lists every accepted status; the set is closed.
var All = []Status{Draft, Publish, Private}

// Parse validates a caller-supplied status string.
func Parse(s string) (Status, error) {
	switch Status(s) {
	case Draft, Publish, Private:
		return Status(s), nil
	case "":
		return Default, nil
	}
	return "", fmt.Errorf("unknown status %q (must be one of draft, publish, private)", s)
}

var displays = map[Status]domain.StatusDisplay{
	Draft: {
		Status:      string(Draft),
		Label:       "Draft",
		Icon:        "📝",
		Color:       "#b0b5b3",
		Description: "Saved but not visible to readers",
	},
	Publish: {
		Status:      string(Publish),
		Label:       "Published",
		Icon:        "🌐",
		Color:       "#00a32a",
		Description: "Publicly visible on the site",
	},
	Private: {
		Status:      string(Private),
		Label:       "Private",
		Icon:        "🔒",
		Color:       "#996800",
		Description: "Visible only to logged-in editors",
	},
}

// Display returns presentation metadata for a status. Pure lookup;
// unknown values get a minimal placeholder rather than an error.
func Display(s Status) domain.StatusDisplay {
	if d, ok := displays[s]; ok {
		return d
	}
	return domain.StatusDisplay{Status: string(s), Label: string(s)}
}

// CheckTransition evaluates an advisory opinion on from→to. Every
// pairwise transition proceeds; visibility-changing pairs carry a
// note the caller surfaces as a warning.
func CheckTransition(from, to Status) domain.TransitionInfo {
	info := domain.TransitionInfo{From: string(from), To: string(to), Recommended: true}
	switch {
	case from == to:
		info.Note = "status unchanged"
	case from == Draft && to == Publish:
		// the happy path
	case from == Publish && to == Private:
		info.Recommended = false
		info.Note = "post becomes invisible to the public"
	case from == Private && to == Publish:
		info.Recommended = false
		info.Note = "post becomes publicly visible"
	case from == Publish && to == Draft:
		info.Recommended = false
		info.Note = "published post goes offline and its URL stops resolving"
	}
	return info
}
