package repo

import (
	"context"
	"database/sql"
	"errors"

	"pressgate/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// InsertPublish records the audit row for one publish operation.
func (r Repo) InsertPublish(ctx context.Context, rec domain.PublishRecord) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO publishes(id,post_id,post_url,title,status,actor_id,warnings_json,images_json,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.PostID, nullable(rec.PostURL), rec.Title, rec.Status, rec.ActorID,
		nullable(rec.WarningsJSON), nullable(rec.ImagesJSON), rec.CreatedAt)
	return err
}

func scanPublish(scan func(dest ...any) error) (domain.PublishRecord, error) {
	var rec domain.PublishRecord
	var postURL, warnings, images sql.NullString
	err := scan(&rec.ID, &rec.PostID, &postURL, &rec.Title, &rec.Status, &rec.ActorID, &warnings, &images, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	rec.PostURL = postURL.String
	rec.WarningsJSON = warnings.String
	rec.ImagesJSON = images.String
	return rec, nil
}

const publishColumns = `id,post_id,post_url,title,status,actor_id,warnings_json,images_json,created_at`

func (r Repo) GetPublish(ctx context.Context, id string) (domain.PublishRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+publishColumns+` FROM publishes WHERE id=?`, id)
	rec, err := scanPublish(row.Scan)
	if err == sql.ErrNoRows {
		return domain.PublishRecord{}, ErrNotFound
	}
	return rec, err
}

func (r Repo) ListPublishes(ctx context.Context, limit int) ([]domain.PublishRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+publishColumns+` FROM publishes ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PublishRecord
	for rows.Next() {
		rec, err := scanPublish(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdatePublishStatus reflects a later status transition in the audit
// rows for that post.
func (r Repo) UpdatePublishStatus(ctx context.Context, postID int64, newStatus string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE publishes SET status=? WHERE post_id=?`, newStatus, postID)
	return err
}

// LatestEvents lists recent events, newest first, optionally filtered
// by type.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	args := []any{}
	if evtType != "" {
		q += ` WHERE type=?`
		args = append(args, evtType)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return r.queryEvents(ctx, q, args...)
}

// EventsAfter returns up to limit events with id greater than cursor,
// oldest first. Used by the webhook dispatcher.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx,
		`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`,
		cursor, limit)
}

// LatestEventID returns the highest event id, or 0 when no events
// exist. The webhook dispatcher seeds its cursor from it so restarts
// do not replay history.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func (r Repo) queryEvents(ctx context.Context, q string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
