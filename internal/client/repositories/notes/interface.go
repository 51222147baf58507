// Package notes persists the local replica of an owner's notes.
package notes

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

type Repository interface {
	// Get and GetByRemoteID return common.ErrorNotFound for unknown notes.
	Get(ctx context.Context, ownerID, localRef string) (*models.Note, error)
	GetByRemoteID(ctx context.Context, ownerID, remoteID string) (*models.Note, error)
	// FindByPrefix returns the notes whose local ref starts with prefix.
	FindByPrefix(ctx context.Context, ownerID, prefix string) ([]*models.Note, error)
	// Save inserts n or replaces the stored note with the same local ref.
	Save(ctx context.Context, n *models.Note) error
	List(ctx context.Context, ownerID string, f models.ListFilter) ([]*models.Note, error)
	// ListUnsynced returns notes the server has not confirmed yet.
	ListUnsynced(ctx context.Context, ownerID string) ([]*models.Note, error)
	// ListPurgeable returns tombstones with no pending outbox entry.
	ListPurgeable(ctx context.Context, ownerID string) ([]*models.Note, error)
	Delete(ctx context.Context, ownerID, localRef string) error
}
