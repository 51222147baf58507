package merge

import (
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

const (
	maxRefLen   = 64
	maxTitleLen = 1024
	maxBodyLen  = 1 << 20
)

// DeriveID maps a client origin reference to the server id of the note it
// creates. The mapping is deterministic, so a create retried after a lost
// response lands on the same record instead of duplicating it.
func DeriveID(ownerID, originRef string) string {
	return rpc.DeriveNoteID(ownerID, originRef)
}

// Validate checks c and brings it to canonical form: the timestamp is
// normalised and a missing id is derived from the origin ref. Errors wrap
// common.ErrValidation.
func Validate(ownerID string, c *models.Candidate) error {
	if ownerID == "" {
		return fmt.Errorf("%w: empty owner", common.ErrValidation)
	}
	if c.ID == "" && c.OriginRef == "" {
		return fmt.Errorf("%w: id or origin ref required", common.ErrValidation)
	}
	if len(c.ID) > maxRefLen || len(c.OriginRef) > maxRefLen || len(c.FolderID) > maxRefLen {
		return fmt.Errorf("%w: reference longer than %d bytes", common.ErrValidation, maxRefLen)
	}
	if len(c.Title) > maxTitleLen {
		return fmt.Errorf("%w: title longer than %d bytes", common.ErrValidation, maxTitleLen)
	}
	if len(c.Body) > maxBodyLen {
		return fmt.Errorf("%w: body longer than %d bytes", common.ErrValidation, maxBodyLen)
	}

	ts, err := clock.Normalize(c.UpdatedAt)
	if err != nil {
		return err
	}
	c.UpdatedAt = ts

	if c.ID == "" {
		c.ID = DeriveID(ownerID, c.OriginRef)
	}
	return nil
}
