package engine

import (
	"context"
	"fmt"
	"time"

	"pressgate/internal/domain"
	"pressgate/internal/events"
	"pressgate/internal/status"
)

type StatusUpdateOptions struct {
	PostID             int64
	NewStatus          string
	Reason             string
	ChangedBy          string
	ValidateTransition bool
	IncludeMetadata    bool
}

// UpdateStatus moves a post to a new status. Transition checks are
// advisory only; a discouraged transition goes through with a warning.
func (e Engine) UpdateStatus(ctx context.Context, opts StatusUpdateOptions) (domain.StatusUpdateResult, error) {
	newSt, err := status.Parse(opts.NewStatus)
	if err != nil {
		return domain.StatusUpdateResult{}, &ValidationError{Fields: []FieldError{{Field: "status", Message: err.Error()}}}
	}
	if opts.PostID <= 0 {
		return domain.StatusUpdateResult{}, &ValidationError{Fields: []FieldError{{Field: "post_id", Message: "required"}}}
	}

	post, err := e.Store.GetPost(ctx, opts.PostID)
	if err != nil {
		return domain.StatusUpdateResult{}, fmt.Errorf("fetch post %d: %w", opts.PostID, err)
	}
	prevSt := status.Status(post.Status)

	result := domain.StatusUpdateResult{
		PostID:         opts.PostID,
		PreviousStatus: string(prevSt),
		NewStatus:      string(newSt),
		Timestamp:      e.now().UTC().Format(time.RFC3339),
	}

	info := status.CheckTransition(prevSt, newSt)
	if opts.ValidateTransition && !info.Recommended {
		result.Warnings = append(result.Warnings, fmt.Sprintf("transition %s to %s not recommended: %s", prevSt, newSt, info.Note))
	}

	if err := e.Store.UpdatePost(ctx, opts.PostID, map[string]any{"status": string(newSt)}); err != nil {
		return domain.StatusUpdateResult{}, fmt.Errorf("update post %d status: %w", opts.PostID, err)
	}

	if opts.IncludeMetadata {
		newDisplay := status.Display(newSt)
		prevDisplay := status.Display(prevSt)
		result.StatusDisplay = &newDisplay
		result.PreviousDisplay = &prevDisplay
		result.Transition = &info
	}

	e.recordStatusChange(ctx, opts, result)
	return result, nil
}

func (e Engine) recordStatusChange(ctx context.Context, opts StatusUpdateOptions, result domain.StatusUpdateResult) {
	if e.DB == nil {
		return
	}
	// No local history row for this post is fine; the post may have
	// been published outside this service.
	_ = e.Repo.UpdatePublishStatus(ctx, opts.PostID, result.NewStatus)
	_ = e.Events.Append(ctx, nil, "post.status_changed", "post", fmt.Sprint(opts.PostID), opts.ChangedBy, events.EventPayload{
		"previous_status": result.PreviousStatus,
		"new_status":      result.NewStatus,
		"reason":          opts.Reason,
	})
}
