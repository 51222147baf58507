// Package deferred holds pulled server records that arrived while a local
// change to the same note was still pending.
package deferred

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

type Repository interface {
	// Put stores n keyed by its RemoteID, replacing an older deferred copy.
	Put(ctx context.Context, n *models.Note) error
	// Take removes and returns the deferred copy, or nil if there is none.
	Take(ctx context.Context, ownerID, remoteID string) (*models.Note, error)
	Count(ctx context.Context, ownerID string) (int, error)
}
