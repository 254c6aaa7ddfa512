package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/annosync/internal/localstore"
	"github.com/roach88/annosync/internal/syncable"
)

// EntitySet binds one entity kind to its local persistence so the
// coordinator can orchestrate every kind through a single code path.
// One adapter exists per entity kind.
type EntitySet interface {
	// RecordType is the remote schema this set syncs.
	RecordType() syncable.RecordType

	// ListAll returns every local entity of the kind, tombstones
	// included.
	ListAll(ctx context.Context) ([]syncable.Entity, error)

	// Get looks up one entity. ok is false when it does not exist
	// locally.
	Get(ctx context.Context, id uuid.UUID) (e syncable.Entity, ok bool, err error)

	// Save upserts an entity.
	Save(ctx context.Context, e syncable.Entity) error

	// Delete removes an entity row outright (remote deletion applied
	// locally).
	Delete(ctx context.Context, id uuid.UUID) error

	// NewEntity returns a blank entity for the insert-from-remote path.
	NewEntity() syncable.Entity
}

// Sets returns the entity sets in their fixed sync order: layers before
// annotations, so a child's layer reference is uploaded after its parent.
// Cross-device referential ordering is not resolved here; a child record
// referencing a parent this device has not seen yet is a known gap.
func Sets(store *localstore.Store) []EntitySet {
	return []EntitySet{
		&layerSet{store: store},
		&annotationSet{store: store},
	}
}

type layerSet struct {
	store *localstore.Store
}

func (s *layerSet) RecordType() syncable.RecordType { return syncable.RecordTypeLayer }

func (s *layerSet) ListAll(ctx context.Context) ([]syncable.Entity, error) {
	layers, err := s.store.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]syncable.Entity, len(layers))
	for i, l := range layers {
		out[i] = l
	}
	return out, nil
}

func (s *layerSet) Get(ctx context.Context, id uuid.UUID) (syncable.Entity, bool, error) {
	l, err := s.store.GetLayer(ctx, id)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}

func (s *layerSet) Save(ctx context.Context, e syncable.Entity) error {
	l, ok := e.(*syncable.Layer)
	if !ok {
		return fmt.Errorf("layer set: unexpected entity type %T", e)
	}
	return s.store.SaveLayer(ctx, l)
}

func (s *layerSet) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteLayer(ctx, id)
}

func (s *layerSet) NewEntity() syncable.Entity { return &syncable.Layer{} }

type annotationSet struct {
	store *localstore.Store
}

func (s *annotationSet) RecordType() syncable.RecordType { return syncable.RecordTypeAnnotation }

func (s *annotationSet) ListAll(ctx context.Context) ([]syncable.Entity, error) {
	annotations, err := s.store.ListAnnotations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]syncable.Entity, len(annotations))
	for i, a := range annotations {
		out[i] = a
	}
	return out, nil
}

func (s *annotationSet) Get(ctx context.Context, id uuid.UUID) (syncable.Entity, bool, error) {
	a, err := s.store.GetAnnotation(ctx, id)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (s *annotationSet) Save(ctx context.Context, e syncable.Entity) error {
	a, ok := e.(*syncable.Annotation)
	if !ok {
		return fmt.Errorf("annotation set: unexpected entity type %T", e)
	}
	return s.store.SaveAnnotation(ctx, a)
}

func (s *annotationSet) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteAnnotation(ctx, id)
}

func (s *annotationSet) NewEntity() syncable.Entity { return &syncable.Annotation{} }
