package grpc

import (
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

func noteToWire(n *models.Note) rpc.Note {
	return rpc.Note{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		FolderID:  n.FolderID,
		Favorite:  n.Favorite,
		Deleted:   n.Deleted,
		UpdatedAt: n.UpdatedAt,
		Version:   n.Version,
	}
}

// changeToCandidate maps a wire change to a merge candidate. A delete
// carries a tombstone regardless of the flag in its payload.
func changeToCandidate(c rpc.Change) models.Candidate {
	return models.Candidate{
		ID:           c.Note.ID,
		OriginRef:    c.Note.OriginRef,
		Title:        c.Note.Title,
		Body:         c.Note.Body,
		FolderID:     c.Note.FolderID,
		Favorite:     c.Note.Favorite,
		Deleted:      c.Note.Deleted || c.Operation == rpc.OperationDelete,
		UpdatedAt:    c.Note.UpdatedAt,
		KnownVersion: c.KnownVersion,
	}
}
