package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
)

// PostgresStore implements merge.Store. Each Modify runs in its own
// transaction holding a row lock on the note, so concurrent merges of one
// note serialise while unrelated notes proceed in parallel.
type PostgresStore struct {
	db *sql.DB
	rm repomanager.RepositoryManager
}

func NewPostgresStore(db *sql.DB, rm repomanager.RepositoryManager) *PostgresStore {
	return &PostgresStore{db: db, rm: rm}
}

func (s *PostgresStore) Modify(ctx context.Context, ownerID, id string, fn func(current *models.Note) (*models.Note, error)) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Notes(tx)

		// First inserts cannot be row-locked. When two of them race, the loser
		// sees its insert skipped and arbitrates again against the winner's row.
		for attempt := 0; attempt < 2; attempt++ {
			current, err := repo.GetForUpdate(ctx, ownerID, id)
			if errors.Is(err, common.ErrorNotFound) {
				current = nil
			} else if err != nil {
				return err
			}

			next, err := fn(current)
			if err != nil || next == nil {
				return err
			}

			if current != nil {
				return repo.Update(ctx, next)
			}

			inserted, err := repo.InsertIfAbsent(ctx, next)
			if err != nil {
				return err
			}
			if inserted {
				return nil
			}
		}
		return fmt.Errorf("note %s: concurrent insert did not settle", id)
	})
}

func (s *PostgresStore) SelectUpdatedSince(ctx context.Context, ownerID string, cursor models.Cursor, limit int) ([]*models.Note, error) {
	return s.rm.Notes(s.db).SelectUpdatedSince(ctx, ownerID, cursor, limit)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
