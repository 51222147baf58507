// Package notes provides PostgreSQL-backed persistence for canonical notes.
package notes

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// Repository is bound to one dbx.DBTX; callers needing atomic
// read-modify-write use a repository bound to a transaction.
type Repository interface {
	// GetForUpdate returns the note and row-locks it until the transaction
	// ends. Absent notes yield common.ErrorNotFound.
	GetForUpdate(ctx context.Context, ownerID, id string) (*models.Note, error)
	// InsertIfAbsent inserts n unless (owner, id) already exists and reports
	// whether the row was written.
	InsertIfAbsent(ctx context.Context, n *models.Note) (bool, error)
	// Update overwrites the mutable columns of n.
	Update(ctx context.Context, n *models.Note) error
	// SelectUpdatedSince returns notes after cursor ordered by (updated_at, id).
	SelectUpdatedSince(ctx context.Context, ownerID string, cursor models.Cursor, limit int) ([]*models.Note, error)
}
