package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/annosync/internal/syncable"
)

// ErrNotFound reports a lookup for an entity the store does not hold.
var ErrNotFound = errors.New("entity not found")

const annotationColumns = `id, kind, title, content_text, pos_x, pos_y, pos_z,
	layer_id, owner_id, created_at, updated_at, pending_sync, last_synced_at, is_deleted`

// ListAnnotations returns every annotation, tombstones included.
func (s *Store) ListAnnotations(ctx context.Context) ([]*syncable.Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	var out []*syncable.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	return out, nil
}

// GetAnnotation returns one annotation by id. ErrNotFound if absent.
func (s *Store) GetAnnotation(ctx context.Context, id uuid.UUID) (*syncable.Annotation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, id.String())
	a, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SaveAnnotation upserts an annotation, sync metadata included.
func (s *Store) SaveAnnotation(ctx context.Context, a *syncable.Annotation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations
		(`+annotationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			content_text = excluded.content_text,
			pos_x = excluded.pos_x,
			pos_y = excluded.pos_y,
			pos_z = excluded.pos_z,
			layer_id = excluded.layer_id,
			owner_id = excluded.owner_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			pending_sync = excluded.pending_sync,
			last_synced_at = excluded.last_synced_at,
			is_deleted = excluded.is_deleted
	`,
		a.Sync.ID.String(),
		string(a.Kind),
		a.Title,
		a.ContentText,
		a.Position.X,
		a.Position.Y,
		a.Position.Z,
		a.LayerID.String(),
		a.OwnerID,
		formatTime(a.CreatedAt),
		formatTime(a.Sync.UpdatedAt),
		boolToInt(a.Sync.PendingSync),
		formatTimePtr(a.Sync.LastSyncedAt),
		boolToInt(a.Sync.Deleted),
	)
	if err != nil {
		return fmt.Errorf("save annotation: %w", err)
	}
	return nil
}

// DeleteAnnotation removes an annotation row outright. Used when a
// remote deletion is applied locally; local user deletes go through the
// tombstone flag instead so the deletion can be propagated first.
func (s *Store) DeleteAnnotation(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAnnotation(sc scanner) (*syncable.Annotation, error) {
	var (
		a          syncable.Annotation
		id, layer  string
		kind       string
		createdAt  string
		updatedAt  string
		pending    int
		lastSynced sql.NullString
		deleted    int
	)
	err := sc.Scan(&id, &kind, &a.Title, &a.ContentText,
		&a.Position.X, &a.Position.Y, &a.Position.Z,
		&layer, &a.OwnerID, &createdAt, &updatedAt,
		&pending, &lastSynced, &deleted)
	if err != nil {
		return nil, err
	}

	if a.Sync.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("scan annotation id: %w", err)
	}
	if a.LayerID, err = uuid.Parse(layer); err != nil {
		return nil, fmt.Errorf("scan annotation layer id: %w", err)
	}
	a.Kind = syncable.AnnotationKind(kind)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.Sync.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if a.Sync.LastSyncedAt, err = parseTimePtr(lastSynced); err != nil {
		return nil, err
	}
	a.Sync.PendingSync = pending != 0
	a.Sync.Deleted = deleted != 0
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
