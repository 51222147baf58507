package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, s *MemoryStore, n *models.Note) {
	t.Helper()
	require.NoError(t, s.Modify(context.Background(), n.OwnerID, n.ID, func(*models.Note) (*models.Note, error) {
		return n, nil
	}))
}

func TestMemoryStore_ModifyIsolatesCopies(t *testing.T) {
	s := NewMemoryStore()
	n := &models.Note{ID: "n1", OwnerID: "u1", Title: "a", UpdatedAt: "2024-05-01T10:00:00.000Z", Version: 1}
	put(t, s, n)
	n.Title = "mutated after write"

	err := s.Modify(context.Background(), "u1", "n1", func(current *models.Note) (*models.Note, error) {
		require.NotNil(t, current)
		assert.Equal(t, "a", current.Title)
		current.Title = "mutated without write"
		return nil, nil
	})
	require.NoError(t, err)

	got, err := s.SelectUpdatedSince(context.Background(), "u1", models.Cursor{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Title)
}

func TestMemoryStore_OwnersArePartitioned(t *testing.T) {
	s := NewMemoryStore()
	put(t, s, &models.Note{ID: "n1", OwnerID: "u1", UpdatedAt: "2024-05-01T10:00:00.000Z", Version: 1})
	put(t, s, &models.Note{ID: "n1", OwnerID: "u2", UpdatedAt: "2024-05-01T10:00:00.000Z", Version: 1})

	got, err := s.SelectUpdatedSince(context.Background(), "u2", models.Cursor{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].OwnerID)
}

func TestMemoryStore_SelectOrdersAndPages(t *testing.T) {
	s := NewMemoryStore()
	put(t, s, &models.Note{ID: "c", OwnerID: "u1", UpdatedAt: "2024-05-01T10:00:01.000Z"})
	put(t, s, &models.Note{ID: "b", OwnerID: "u1", UpdatedAt: "2024-05-01T10:00:00.000Z"})
	put(t, s, &models.Note{ID: "a", OwnerID: "u1", UpdatedAt: "2024-05-01T10:00:00.000Z"})

	page1, err := s.SelectUpdatedSince(context.Background(), "u1", models.Cursor{UpdatedAt: "1970-01-01T00:00:00.000Z"}, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, []string{"a", "b"}, []string{page1[0].ID, page1[1].ID})

	last := page1[len(page1)-1]
	page2, err := s.SelectUpdatedSince(context.Background(), "u1", models.Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID}, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "c", page2[0].ID)
}

func TestMemoryStore_ConcurrentModifySerialisesPerNote(t *testing.T) {
	s := NewMemoryStore()
	const writers = 64

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Modify(context.Background(), "u1", "n1", func(current *models.Note) (*models.Note, error) {
				if current == nil {
					return &models.Note{ID: "n1", OwnerID: "u1", Version: 1}, nil
				}
				next := current.Clone()
				next.Version++
				return next, nil
			})
		}()
	}
	wg.Wait()

	got, err := s.SelectUpdatedSince(context.Background(), "u1", models.Cursor{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(writers), got[0].Version)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Modify(ctx, "u1", "n1", func(*models.Note) (*models.Note, error) {
		return &models.Note{ID: "n1"}, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpen_Memory(t *testing.T) {
	st, err := Open(context.Background(), MemoryDSN, logging.NewNopLogger())
	require.NoError(t, err)
	_, ok := st.(*MemoryStore)
	assert.True(t, ok)
	require.NoError(t, st.Close())
}

func TestOpen_PostgresError(t *testing.T) {
	orig := openPostgres
	t.Cleanup(func() { openPostgres = orig })
	openPostgres = func(ctx context.Context, dsn string) (*sql.DB, error) {
		return nil, fmt.Errorf("db ping error: %s unreachable", dsn)
	}

	_, err := Open(context.Background(), "postgres://nowhere", logging.NewNopLogger())
	require.ErrorContains(t, err, "unreachable")
}
