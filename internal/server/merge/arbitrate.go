package merge

import (
	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// Result is the outcome of one merge. Applied=false is the conflict-loss
// path: the candidate was discarded and Canonical is what the caller must
// reconcile to.
type Result struct {
	Applied   bool
	Canonical *models.Note
	Kind      models.ChangeKind
}

// Arbitrate decides how candidate c affects current (nil when the note does
// not exist yet). It returns the note to persist, or nil when nothing must be
// written, together with the merge result.
//
// The decision depends on timestamps only, so applying the same set of
// candidates in any order converges on the same canonical note. Equal
// timestamps keep the existing note, which makes replays no-ops.
//
// c must already be validated; c.ID must be set.
func Arbitrate(current *models.Note, ownerID string, c models.Candidate) (*models.Note, Result) {
	if current == nil {
		next := &models.Note{
			ID:        c.ID,
			OwnerID:   ownerID,
			Title:     c.Title,
			Body:      c.Body,
			FolderID:  c.FolderID,
			Favorite:  c.Favorite,
			Deleted:   c.Deleted,
			UpdatedAt: c.UpdatedAt,
			Version:   1,
		}
		return next, Result{Applied: true, Canonical: next.Clone(), Kind: kindOf(next)}
	}

	if clock.Compare(c.UpdatedAt, current.UpdatedAt) <= 0 {
		return nil, Result{Applied: false, Canonical: current.Clone()}
	}

	next := current.Clone()
	next.Title = c.Title
	next.Body = c.Body
	next.FolderID = c.FolderID
	next.Favorite = c.Favorite
	next.Deleted = c.Deleted
	next.UpdatedAt = c.UpdatedAt
	next.Version = current.Version + 1

	return next, Result{Applied: true, Canonical: next.Clone(), Kind: kindOf(next)}
}

func kindOf(n *models.Note) models.ChangeKind {
	switch {
	case n.Deleted:
		return models.ChangeDeleted
	case n.Version == 1:
		return models.ChangeCreated
	default:
		return models.ChangeUpdated
	}
}
