package badger

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// minContainsTerm is the shortest term matched as a substring of an entity name.
const minContainsTerm = 3

// GraphStore implements storage.GraphStore for BadgerDB.
type GraphStore struct {
	backend *Backend
}

var _ storage.GraphStore = (*GraphStore)(nil)

// NewGraphStore creates a new GraphStore.
func NewGraphStore(backend *Backend) *GraphStore {
	return &GraphStore{backend: backend}
}

// UpsertEntities inserts new entities and merges attributes into existing ones.
// IDs are derived from (name, type, project) when unset.
func (g *GraphStore) UpsertEntities(ctx context.Context, entities ...*core.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	for _, e := range entities {
		if err := core.ValidateEntity(e); err != nil {
			return err
		}
		if e.ID == 0 {
			e.ID = core.EntityID(e.ProjectID, e.Type, e.Name)
		}
	}

	return g.backend.update(ctx, func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, e := range entities {
			key := makeEntityKey(e.ProjectID, e.ID)
			existing, err := readEntity(tx, key)
			if err != nil {
				return err
			}

			stored := *e
			if existing != nil {
				stored = *existing
				stored.Merge(e.Attributes)
			} else {
				stored.Attributes = nil
				stored.Merge(e.Attributes)
				stored.InsertedAt = now
			}
			stored.UpdatedAt = now

			value := storage.MarshalEntity(&stored)
			if err := tx.Set(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertRelationships inserts relationships, replacing attributes of existing ones.
func (g *GraphStore) UpsertRelationships(ctx context.Context, rels ...*core.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	for _, r := range rels {
		if r.ID == 0 {
			r.ID = core.RelationshipID(r.ProjectID, r.SourceID, r.TargetID, r.Type)
		}
		if err := core.ValidateRelationship(r); err != nil {
			return err
		}
	}

	return g.backend.update(ctx, func(tx *badger.Txn) error {
		for _, r := range rels {
			value := storage.MarshalRelationship(r)
			if err := tx.Set(makeRelationshipKey(r.ProjectID, r.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEntity retrieves a single entity by ID.
func (g *GraphStore) GetEntity(ctx context.Context, project core.ProjectID, id core.ID) (*core.Entity, error) {
	var entity *core.Entity
	err := g.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		entity, err = readEntity(tx, makeEntityKey(project, id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, storage.ErrNotFound
	}
	return entity, nil
}

// FindEntities returns entities whose lowercased name equals a term, or contains
// a term of at least minContainsTerm characters.
func (g *GraphStore) FindEntities(ctx context.Context, project core.ProjectID, terms []string) ([]*core.Entity, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}

	var found []*core.Entity
	err := g.backend.scan(ctx, makeProjectPrefix(entityPrefix, project), func(val []byte) error {
		e, err := storage.UnmarshalEntity(val)
		if err != nil {
			return err
		}
		name := strings.ToLower(e.Name)
		for _, term := range lowered {
			if name == term || (len(term) >= minContainsTerm && strings.Contains(name, term)) {
				found = append(found, e)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(found, func(a, b *core.Entity) int {
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return found, nil
}

// RelationshipsOf returns relationships whose source or target is one of ids.
func (g *GraphStore) RelationshipsOf(ctx context.Context, project core.ProjectID, ids ...core.ID) ([]*core.Relationship, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	wanted := make(map[core.ID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	var rels []*core.Relationship
	err := g.backend.scan(ctx, makeProjectPrefix(relationshipPrefix, project), func(val []byte) error {
		r, err := storage.UnmarshalRelationship(val)
		if err != nil {
			return err
		}
		_, src := wanted[r.SourceID]
		_, dst := wanted[r.TargetID]
		if src || dst {
			rels = append(rels, r)
		}
		return nil
	})
	return rels, err
}

// CountEntities returns the number of entities in a project.
func (g *GraphStore) CountEntities(ctx context.Context, project core.ProjectID) (int, error) {
	return g.backend.count(ctx, makeProjectPrefix(entityPrefix, project))
}

// CountRelationships returns the number of relationships in a project.
func (g *GraphStore) CountRelationships(ctx context.Context, project core.ProjectID) (int, error) {
	return g.backend.count(ctx, makeProjectPrefix(relationshipPrefix, project))
}

// DeleteGraph removes all entities and relationships of a project.
func (g *GraphStore) DeleteGraph(ctx context.Context, project core.ProjectID) error {
	if err := g.backend.deletePrefix(ctx, makeProjectPrefix(relationshipPrefix, project)); err != nil {
		return err
	}
	return g.backend.deletePrefix(ctx, makeProjectPrefix(entityPrefix, project))
}

// readEntity returns nil, nil when the key is absent.
func readEntity(tx *badger.Txn, key []byte) (*core.Entity, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var entity *core.Entity
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		entity, unmarshalErr = storage.UnmarshalEntity(val)
		return unmarshalErr
	})
	return entity, err
}
