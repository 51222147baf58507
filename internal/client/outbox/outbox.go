// Package outbox implements the client sync queue: the durable list of local
// changes the server has not confirmed yet.
//
// An Outbox is bound to a DBTX. Local mutations construct one over the same
// transaction that writes the note, so a note and its queue entry always move
// together.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	repo "github.com/dmitrijs2005/notesync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

// ErrEntryGone is returned by MarkSucceeded when the answered entry no longer
// exists.
var ErrEntryGone = errors.New("outbox entry gone")

type Outbox struct {
	entries repo.Repository
}

func New(db dbx.DBTX) *Outbox {
	return &Outbox{entries: repo.NewSQLiteRepository(db)}
}

// NewWithRepository is used by tests that need to fail the storage layer.
func NewWithRepository(r repo.Repository) *Outbox {
	return &Outbox{entries: r}
}

// Enqueue records that the note localRef changed locally. remoteRef is the
// note's server id, empty if it has none yet. createdAt is only used when a
// new entry is created; coalesced entries keep their place in the queue. The
// returned entry is nil when the change cancelled a pending create that never
// left this device.
func (o *Outbox) Enqueue(ctx context.Context, ownerID, localRef, remoteRef string, op models.Operation, createdAt string) (*models.OutboxEntry, error) {
	if op != models.OperationUpsert && op != models.OperationDelete {
		return nil, fmt.Errorf("%w: unknown outbox operation %q", common.ErrValidation, op)
	}

	cur, err := o.entries.Get(ctx, ownerID, localRef)
	if err != nil {
		return nil, err
	}

	if cur == nil {
		e := &models.OutboxEntry{
			OwnerID:   ownerID,
			LocalRef:  localRef,
			Operation: op,
			RemoteRef: remoteRef,
			CreatedAt: createdAt,
			Revision:  1,
		}
		if err := o.entries.Insert(ctx, e); err != nil {
			return nil, err
		}
		return e, nil
	}

	bound := cur.RemoteRef == "" && remoteRef != ""
	if bound {
		cur.RemoteRef = remoteRef
	}

	switch {
	case cur.Operation == models.OperationDelete && op == models.OperationDelete:
		if bound {
			if err := o.entries.Update(ctx, cur); err != nil {
				return nil, err
			}
		}
		return cur, nil
	case cur.Operation == models.OperationUpsert && op == models.OperationDelete && !cur.Transmitted():
		if err := o.entries.Delete(ctx, cur.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	cur.Operation = op
	cur.Revision++
	if err := o.entries.Update(ctx, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

// MarkSent flags e as handed to the transport. From then on a DELETE
// coalescing into it is kept even if the answer never arrives.
func (o *Outbox) MarkSent(ctx context.Context, e *models.OutboxEntry) error {
	if e.Sent {
		return nil
	}
	if err := o.entries.MarkSent(ctx, e.ID); err != nil {
		return err
	}
	e.Sent = true
	return nil
}

// Drain returns up to limit entries, oldest first. Entries stay queued until
// they are marked.
func (o *Outbox) Drain(ctx context.Context, ownerID string, limit int) ([]*models.OutboxEntry, error) {
	return o.entries.List(ctx, ownerID, limit)
}

// MarkFailed counts a failed transmission of e and keeps it queued.
func (o *Outbox) MarkFailed(ctx context.Context, e *models.OutboxEntry, cause error) error {
	msg := ""
	if cause != nil {
		msg = Truncate(cause.Error(), common.MaxErrorLength)
	}
	if err := o.entries.RecordFailure(ctx, e.ID, msg); err != nil {
		return err
	}
	e.AttemptCount++
	e.LastError = msg
	return nil
}

// MarkSucceeded resolves e after the server answered for it. If a newer local
// mutation coalesced into the entry since it was drained, the entry stays
// queued with remoteRef bound to it and removed is false. ErrEntryGone means
// the entry left the queue while the answer was pending.
func (o *Outbox) MarkSucceeded(ctx context.Context, e *models.OutboxEntry, remoteRef string) (removed bool, err error) {
	removed, err = o.entries.DeleteIfRevision(ctx, e.ID, e.Revision)
	if err != nil || removed {
		return removed, err
	}
	if remoteRef == "" {
		return false, nil
	}
	if err := o.entries.SetRemoteRef(ctx, e.ID, remoteRef); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return false, ErrEntryGone
		}
		return false, err
	}
	e.RemoteRef = remoteRef
	return false, nil
}

// MarkDiscarded drops an entry the server will never accept.
func (o *Outbox) MarkDiscarded(ctx context.Context, e *models.OutboxEntry) error {
	return o.entries.Delete(ctx, e.ID)
}

// Pending returns the queued entry for localRef, or nil.
func (o *Outbox) Pending(ctx context.Context, ownerID, localRef string) (*models.OutboxEntry, error) {
	return o.entries.Get(ctx, ownerID, localRef)
}

func (o *Outbox) PendingCount(ctx context.Context, ownerID string) (int, error) {
	return o.entries.Count(ctx, ownerID)
}

// Stalled lists entries that have failed at least maxAttempts times.
func (o *Outbox) Stalled(ctx context.Context, ownerID string, maxAttempts int) ([]*models.OutboxEntry, error) {
	return o.entries.ListStalled(ctx, ownerID, maxAttempts)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
