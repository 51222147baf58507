package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/keylock"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// MemoryStore implements merge.Store in process memory. Writers of one note
// serialise on a per-note lock; the map itself is only held for the copy in
// or out.
type MemoryStore struct {
	locks *keylock.Map

	mu    sync.RWMutex
	notes map[string]map[string]*models.Note
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks: keylock.New(),
		notes: make(map[string]map[string]*models.Note),
	}
}

func (s *MemoryStore) Modify(ctx context.Context, ownerID, id string, fn func(current *models.Note) (*models.Note, error)) error {
	unlock := s.locks.Lock(keylock.Key(ownerID, id))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	current := s.notes[ownerID][id].Clone()
	s.mu.RUnlock()

	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}

	s.mu.Lock()
	owned, ok := s.notes[ownerID]
	if !ok {
		owned = make(map[string]*models.Note)
		s.notes[ownerID] = owned
	}
	owned[id] = next.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SelectUpdatedSince(ctx context.Context, ownerID string, cursor models.Cursor, limit int) ([]*models.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var result []*models.Note
	for _, n := range s.notes[ownerID] {
		if cursor.After(n) {
			result = append(result, n.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt != result[j].UpdatedAt {
			return result[i].UpdatedAt < result[j].UpdatedAt
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
