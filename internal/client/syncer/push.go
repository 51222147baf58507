package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/outbox"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/deferred"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/keylock"
	"github.com/dmitrijs2005/notesync/internal/rpc"
)

// PushReport counts how the server answered the pushed entries.
type PushReport struct {
	// Applied changes were accepted as the new canonical state.
	Applied int
	// Lost changes arrived after a newer server state; the local copy now
	// holds the canonical one.
	Lost int
	// Rejected changes were refused for good and dropped from the outbox.
	Rejected int
	// Stalled entries were sent again despite reaching the attempt limit.
	Stalled int
	// Superseded entries were answered but edited again meanwhile; they
	// stay queued.
	Superseded int
}

func (r *PushReport) add(o PushReport) {
	r.Applied += o.Applied
	r.Lost += o.Lost
	r.Rejected += o.Rejected
	r.Stalled += o.Stalled
	r.Superseded += o.Superseded
}

// Push sends the outbox in FIFO batches until it is empty or a batch makes
// no progress. Transport failures count against every entry of the failed
// batch and end the phase.
func (s *Session) Push(ctx context.Context) (PushReport, error) {
	s.phase.Lock()
	defer s.phase.Unlock()

	var total PushReport
	for {
		rep, sent, resolved, err := s.pushBatch(ctx)
		total.add(rep)
		if err != nil {
			return total, err
		}
		if sent < s.batchSize || resolved == 0 {
			return total, nil
		}
	}
}

func toWire(op models.Operation, e *models.OutboxEntry, n *models.Note) rpc.Change {
	c := rpc.Change{
		Operation: rpc.OperationUpsert,
		Note: rpc.Note{
			ID:        n.RemoteID,
			OriginRef: n.LocalRef,
			Title:     n.Title,
			Body:      n.Body,
			FolderID:  n.FolderID,
			Favorite:  n.Favorite,
			Deleted:   n.Deleted,
			UpdatedAt: n.UpdatedAt,
		},
		KnownVersion: n.Version,
	}
	if c.Note.ID == "" {
		c.Note.ID = e.RemoteRef
	}
	if op == models.OperationDelete {
		c.Operation = rpc.OperationDelete
		c.Note.Deleted = true
	}
	return c
}

func (s *Session) pushBatch(ctx context.Context) (rep PushReport, sent, resolved int, err error) {
	ob := outbox.New(s.db)
	drained, err := ob.Drain(ctx, s.ownerID, s.batchSize)
	if err != nil || len(drained) == 0 {
		return rep, 0, 0, err
	}

	batch := make([]*models.OutboxEntry, 0, len(drained))
	changes := make([]rpc.Change, 0, len(drained))
	for _, e := range drained {
		claimed, n, err := s.claim(ctx, e)
		if err != nil {
			return rep, 0, 0, err
		}
		if claimed == nil {
			continue
		}
		if claimed.AttemptCount >= s.maxAttempts {
			rep.Stalled++
			s.logger.Warn(ctx, "resending stalled change", "local_ref", claimed.LocalRef, "attempts", claimed.AttemptCount, "last_error", claimed.LastError)
		}
		batch = append(batch, claimed)
		changes = append(changes, toWire(claimed.Operation, claimed, n))
	}
	if len(batch) == 0 {
		return rep, len(drained), len(drained), nil
	}

	resp, err := s.client.SubmitChanges(ctx, changes)
	if err != nil {
		return rep, len(drained), 0, s.pushFailed(ctx, batch, err)
	}
	s.oracle.Observe(resp.ServerTime)

	resolved = len(drained) - len(batch)
	for i, res := range resp.Results {
		outcome, err := s.reconcile(ctx, batch[i], res)
		if err != nil {
			return rep, len(drained), resolved, err
		}
		switch outcome {
		case outcomeApplied:
			rep.Applied++
		case outcomeLost:
			rep.Lost++
		case outcomeRejected:
			rep.Rejected++
		case outcomeSuperseded:
			rep.Superseded++
		}
		if outcome != outcomeSuperseded {
			resolved++
		}
	}

	s.logger.Debug(ctx, "batch pushed", "sent", len(batch), "applied", rep.Applied, "lost", rep.Lost, "rejected", rep.Rejected)
	return rep, len(drained), resolved, nil
}

// claim re-reads a drained entry and its note under the note's lock and marks
// the entry sent. Local mutations after this point coalesce into an entry the
// server may already hold. A nil entry means there is nothing to send.
func (s *Session) claim(ctx context.Context, drained *models.OutboxEntry) (*models.OutboxEntry, *models.Note, error) {
	unlock := s.locks.Lock(keylock.Key(s.ownerID, drained.LocalRef))
	defer unlock()

	var (
		e *models.OutboxEntry
		n *models.Note
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ob := outbox.New(tx)
		cur, err := ob.Pending(ctx, s.ownerID, drained.LocalRef)
		if err != nil || cur == nil {
			return err
		}
		note, err := notes.NewSQLiteRepository(tx).Get(ctx, s.ownerID, cur.LocalRef)
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "outbox entry without note, dropping", "local_ref", cur.LocalRef)
			return ob.MarkDiscarded(ctx, cur)
		}
		if err != nil {
			return err
		}
		if err := ob.MarkSent(ctx, cur); err != nil {
			return err
		}
		e, n = cur, note
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return e, n, nil
}

func (s *Session) pushFailed(ctx context.Context, batch []*models.OutboxEntry, cause error) error {
	// auth failures and cancellation are not the entries' fault
	if errors.Is(cause, client.ErrUnauthorized) || errors.Is(cause, context.Canceled) || ctx.Err() != nil {
		return cause
	}

	ob := outbox.New(s.db)
	for _, e := range batch {
		if err := ob.MarkFailed(ctx, e, cause); err != nil {
			return errors.Join(cause, err)
		}
	}
	s.logger.Warn(ctx, "push failed", "entries", len(batch), "error", cause)
	return fmt.Errorf("push: %w", cause)
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeLost
	outcomeRejected
	outcomeSuperseded
)

func (s *Session) reconcile(ctx context.Context, e *models.OutboxEntry, res rpc.ChangeResult) (outcome, error) {
	unlock := s.locks.Lock(keylock.Key(s.ownerID, e.LocalRef))
	defer unlock()

	var out outcome
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ob := outbox.New(tx)
		noteRepo := notes.NewSQLiteRepository(tx)

		if res.ErrorCode != "" || res.Canonical == nil {
			if res.ErrorCode != rpc.ErrorCodeInvalid {
				// unknown answer, try again next cycle
				out = outcomeSuperseded
				return ob.MarkFailed(ctx, e, fmt.Errorf("server error %q: %s", res.ErrorCode, res.Error))
			}
			s.logger.Warn(ctx, "change rejected", "local_ref", e.LocalRef, "error", res.Error)
			out = outcomeRejected
			if err := ob.MarkDiscarded(ctx, e); err != nil {
				return err
			}
			n, err := noteRepo.Get(ctx, s.ownerID, e.LocalRef)
			if err != nil {
				return ignoreNotFound(err)
			}
			if n.RemoteID == "" {
				return nil
			}
			return s.applyDeferred(ctx, tx, n, true)
		}

		can := res.Canonical
		removed, err := ob.MarkSucceeded(ctx, e, can.ID)
		if errors.Is(err, outbox.ErrEntryGone) {
			out, err = s.requeue(ctx, tx, e, can)
			return err
		}
		if err != nil {
			return err
		}

		n, err := noteRepo.Get(ctx, s.ownerID, e.LocalRef)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case !removed:
			out = outcomeSuperseded
			n.RemoteID = can.ID
			n.Version = can.Version
		case res.Applied:
			out = outcomeApplied
			n.RemoteID = can.ID
			n.Version = can.Version
			n.UpdatedAt = can.UpdatedAt
		default:
			out = outcomeLost
			overwrite(n, can)
		}
		if err := noteRepo.Save(ctx, n); err != nil {
			return err
		}
		if !removed {
			return nil
		}
		return s.applyDeferred(ctx, tx, n, false)
	})
	return out, err
}

// requeue handles an answer for an entry that left the queue meanwhile. The
// server now holds can; if the local copy is newer it is queued again so it
// reaches the server, otherwise the canonical state is taken.
func (s *Session) requeue(ctx context.Context, tx dbx.DBTX, e *models.OutboxEntry, can *rpc.Note) (outcome, error) {
	noteRepo := notes.NewSQLiteRepository(tx)
	n, err := noteRepo.Get(ctx, s.ownerID, e.LocalRef)
	if err != nil {
		return outcomeApplied, ignoreNotFound(err)
	}

	if clock.Compare(n.UpdatedAt, can.UpdatedAt) <= 0 {
		overwrite(n, can)
		return outcomeLost, noteRepo.Save(ctx, n)
	}

	n.RemoteID = can.ID
	n.Version = can.Version
	if err := noteRepo.Save(ctx, n); err != nil {
		return outcomeSuperseded, err
	}
	op := models.OperationUpsert
	if n.Deleted {
		op = models.OperationDelete
	}
	if _, err := outbox.New(tx).Enqueue(ctx, s.ownerID, n.LocalRef, can.ID, op, n.UpdatedAt); err != nil {
		return outcomeSuperseded, err
	}
	s.logger.Debug(ctx, "answered change requeued", "local_ref", n.LocalRef, "operation", op)
	return outcomeSuperseded, nil
}

// applyDeferred applies a pull that was held back while n had a pending
// change, if it is newer than n. force applies it regardless.
func (s *Session) applyDeferred(ctx context.Context, tx dbx.DBTX, n *models.Note, force bool) error {
	held, err := deferred.NewSQLiteRepository(tx).Take(ctx, s.ownerID, n.RemoteID)
	if err != nil || held == nil {
		return err
	}
	if !force && !newer(held.UpdatedAt, held.Version, n) {
		return nil
	}
	n.Title = held.Title
	n.Body = held.Body
	n.FolderID = held.FolderID
	n.Favorite = held.Favorite
	n.Deleted = held.Deleted
	n.UpdatedAt = held.UpdatedAt
	n.Version = held.Version
	s.logger.Debug(ctx, "deferred pull applied", "local_ref", n.LocalRef, "version", n.Version)
	return notes.NewSQLiteRepository(tx).Save(ctx, n)
}

func overwrite(n *models.Note, can *rpc.Note) {
	n.RemoteID = can.ID
	n.Title = can.Title
	n.Body = can.Body
	n.FolderID = can.FolderID
	n.Favorite = can.Favorite
	n.Deleted = can.Deleted
	n.UpdatedAt = can.UpdatedAt
	n.Version = can.Version
}

// newer reports whether a server state (updatedAt, version) should replace n.
func newer(updatedAt string, version int64, n *models.Note) bool {
	if c := clock.Compare(updatedAt, n.UpdatedAt); c != 0 {
		return c > 0
	}
	return version > n.Version
}

func ignoreNotFound(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}
