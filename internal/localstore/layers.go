package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/annosync/internal/syncable"
)

const layerColumns = `id, name, color_hex, is_shared, owner_id,
	created_at, updated_at, pending_sync, last_synced_at, is_deleted`

// ListLayers returns every layer, tombstones included.
func (s *Store) ListLayers(ctx context.Context) ([]*syncable.Layer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+layerColumns+` FROM layers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	var out []*syncable.Layer
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	return out, nil
}

// GetLayer returns one layer by id. ErrNotFound if absent.
func (s *Store) GetLayer(ctx context.Context, id uuid.UUID) (*syncable.Layer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+layerColumns+` FROM layers WHERE id = ?`, id.String())
	l, err := scanLayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// SaveLayer upserts a layer, sync metadata included.
func (s *Store) SaveLayer(ctx context.Context, l *syncable.Layer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO layers
		(`+layerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color_hex = excluded.color_hex,
			is_shared = excluded.is_shared,
			owner_id = excluded.owner_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			pending_sync = excluded.pending_sync,
			last_synced_at = excluded.last_synced_at,
			is_deleted = excluded.is_deleted
	`,
		l.Sync.ID.String(),
		l.Name,
		l.ColorHex,
		boolToInt(l.Shared),
		l.OwnerID,
		formatTime(l.CreatedAt),
		formatTime(l.Sync.UpdatedAt),
		boolToInt(l.Sync.PendingSync),
		formatTimePtr(l.Sync.LastSyncedAt),
		boolToInt(l.Sync.Deleted),
	)
	if err != nil {
		return fmt.Errorf("save layer: %w", err)
	}
	return nil
}

// DeleteLayer removes a layer row outright.
func (s *Store) DeleteLayer(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM layers WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete layer: %w", err)
	}
	return nil
}

// PurgeTombstones drops entities whose deletion has been confirmed
// propagated (tombstoned and no longer pending). Purging is a local
// concern; the coordinator never calls this mid-cycle.
func (s *Store) PurgeTombstones(ctx context.Context) (int64, error) {
	var purged int64
	for _, table := range []string{"annotations", "layers"} {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE is_deleted = 1 AND pending_sync = 0`)
		if err != nil {
			return purged, fmt.Errorf("purge tombstones from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return purged, fmt.Errorf("purge tombstones from %s: %w", table, err)
		}
		purged += n
	}
	return purged, nil
}

func scanLayer(sc scanner) (*syncable.Layer, error) {
	var (
		l          syncable.Layer
		id         string
		shared     int
		createdAt  string
		updatedAt  string
		pending    int
		lastSynced sql.NullString
		deleted    int
	)
	err := sc.Scan(&id, &l.Name, &l.ColorHex, &shared, &l.OwnerID,
		&createdAt, &updatedAt, &pending, &lastSynced, &deleted)
	if err != nil {
		return nil, err
	}

	if l.Sync.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("scan layer id: %w", err)
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if l.Sync.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if l.Sync.LastSyncedAt, err = parseTimePtr(lastSynced); err != nil {
		return nil, err
	}
	l.Shared = shared != 0
	l.Sync.PendingSync = pending != 0
	l.Sync.Deleted = deleted != 0
	return &l, nil
}
