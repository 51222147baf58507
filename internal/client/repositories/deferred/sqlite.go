package deferred

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, n *models.Note) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deferred_pulls (owner_id, remote_id, title, body, folder_id, favorite, deleted, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, remote_id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			folder_id = excluded.folder_id,
			favorite = excluded.favorite,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at,
			version = excluded.version
		WHERE excluded.version >= deferred_pulls.version`,
		n.OwnerID, n.RemoteID, n.Title, n.Body, n.FolderID, n.Favorite, n.Deleted, n.UpdatedAt, n.Version)
	if err != nil {
		return fmt.Errorf("failed to defer pulled note %s: %w", n.RemoteID, err)
	}
	return nil
}

func (r *SQLiteRepository) Take(ctx context.Context, ownerID, remoteID string) (*models.Note, error) {
	n := &models.Note{OwnerID: ownerID, RemoteID: remoteID}
	err := r.db.QueryRowContext(ctx, `
		SELECT title, body, folder_id, favorite, deleted, updated_at, version
		FROM deferred_pulls WHERE owner_id = ? AND remote_id = ?`, ownerID, remoteID).
		Scan(&n.Title, &n.Body, &n.FolderID, &n.Favorite, &n.Deleted, &n.UpdatedAt, &n.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deferred note %s: %w", remoteID, err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM deferred_pulls WHERE owner_id = ? AND remote_id = ?`, ownerID, remoteID); err != nil {
		return nil, fmt.Errorf("failed to drop deferred note %s: %w", remoteID, err)
	}
	return n, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deferred_pulls WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count deferred notes: %w", err)
	}
	return n, nil
}
