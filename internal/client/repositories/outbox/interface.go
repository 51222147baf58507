// Package outbox stores the client's pending changes, one row per note.
package outbox

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

type Repository interface {
	// Get returns nil, nil when the note has no pending entry.
	Get(ctx context.Context, ownerID, localRef string) (*models.OutboxEntry, error)
	Insert(ctx context.Context, e *models.OutboxEntry) error
	Update(ctx context.Context, e *models.OutboxEntry) error
	Delete(ctx context.Context, id int64) error
	// DeleteIfRevision removes the entry only if it has not been coalesced
	// since revision was read.
	DeleteIfRevision(ctx context.Context, id, revision int64) (bool, error)
	// List returns up to limit entries in FIFO order. limit <= 0 means all.
	List(ctx context.Context, ownerID string, limit int) ([]*models.OutboxEntry, error)
	Count(ctx context.Context, ownerID string) (int, error)
	ListStalled(ctx context.Context, ownerID string, maxAttempts int) ([]*models.OutboxEntry, error)
	SetRemoteRef(ctx context.Context, id int64, remoteRef string) error
	RecordFailure(ctx context.Context, id int64, lastError string) error
	MarkSent(ctx context.Context, id int64) error
}
