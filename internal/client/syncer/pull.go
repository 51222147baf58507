package syncer

import (
	"context"
	"errors"
	"sort"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/outbox"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/deferred"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/keylock"
	"github.com/dmitrijs2005/notesync/internal/rpc"
)

type PullReport struct {
	Pages    int
	Received int
	Applied  int
	// Deferred records were held back behind a pending local change.
	Deferred  int
	Watermark models.Watermark
}

// maxPagesPerPull bounds one Pull so a server that keeps returning full pages
// cannot pin the session.
const maxPagesPerPull = 1000

// Pull fetches server changes after the watermark, page by page. Each page
// is applied and the watermark advanced in a single local transaction, so an
// interrupted pull resumes from the last complete page.
func (s *Session) Pull(ctx context.Context) (PullReport, error) {
	s.phase.Lock()
	defer s.phase.Unlock()

	var rep PullReport
	wm, err := s.loadWatermark(ctx, s.db)
	if err != nil {
		return rep, err
	}
	rep.Watermark = wm

	for rep.Pages < maxPagesPerPull {
		resp, err := s.client.PullChanges(ctx, wm, s.pageSize)
		if err != nil {
			return rep, err
		}
		rep.Pages++
		if len(resp.Items) == 0 {
			break
		}

		applied, held, next, err := s.applyPage(ctx, resp.Items)
		if err != nil {
			return rep, err
		}
		rep.Received += len(resp.Items)
		rep.Applied += applied
		rep.Deferred += held
		wm = next
		rep.Watermark = wm

		if resp.PageSize <= 0 || len(resp.Items) < resp.PageSize {
			break
		}
	}

	if rep.Received > 0 {
		s.logger.Debug(ctx, "pulled", "received", rep.Received, "applied", rep.Applied, "deferred", rep.Deferred, "pages", rep.Pages)
	}
	return rep, nil
}

// pulled pairs a server record with the local ref it maps to.
type pulled struct {
	item     rpc.Note
	localRef string
}

// resolve maps each item to a local ref: the note already bound to its id,
// an unconfirmed local create whose derived id matches, or a fresh ref equal
// to the server id.
func (s *Session) resolve(ctx context.Context, items []rpc.Note) ([]pulled, error) {
	repo := notes.NewSQLiteRepository(s.db)

	unsynced, err := repo.ListUnsynced(ctx, s.ownerID)
	if err != nil {
		return nil, err
	}
	derived := make(map[string]string, len(unsynced))
	for _, n := range unsynced {
		derived[rpc.DeriveNoteID(s.ownerID, n.LocalRef)] = n.LocalRef
	}

	out := make([]pulled, 0, len(items))
	for _, it := range items {
		p := pulled{item: it, localRef: it.ID}
		n, err := repo.GetByRemoteID(ctx, s.ownerID, it.ID)
		switch {
		case err == nil:
			p.localRef = n.LocalRef
		case errors.Is(err, common.ErrorNotFound):
			if ref, ok := derived[it.ID]; ok {
				p.localRef = ref
			}
		default:
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) lockAll(refs []string) func() {
	keys := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		k := keylock.Key(s.ownerID, r)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	// fixed order, so two multi-key holders cannot deadlock
	sort.Strings(keys)

	unlocks := make([]func(), 0, len(keys))
	for _, k := range keys {
		unlocks = append(unlocks, s.locks.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (s *Session) applyPage(ctx context.Context, items []rpc.Note) (applied, held int, next models.Watermark, err error) {
	resolved, err := s.resolve(ctx, items)
	if err != nil {
		return 0, 0, next, err
	}

	refs := make([]string, len(resolved))
	for i, p := range resolved {
		refs[i] = p.localRef
	}
	unlock := s.lockAll(refs)
	defer unlock()

	last := items[len(items)-1]
	next = models.Watermark{UpdatedAt: last.UpdatedAt, ID: last.ID}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		applied, held = 0, 0
		for _, p := range resolved {
			ok, deferredOne, err := s.ingest(ctx, tx, p)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
			if deferredOne {
				held++
			}
		}
		return metadata.StoreJSON(ctx, metadata.NewSQLiteRepository(tx), s.watermarkKey(), next)
	})
	if err != nil {
		return 0, 0, models.Watermark{}, err
	}

	for _, it := range items {
		s.oracle.Observe(it.UpdatedAt)
	}
	return applied, held, next, nil
}

func fromWire(ownerID, localRef string, it rpc.Note) *models.Note {
	return &models.Note{
		LocalRef:  localRef,
		OwnerID:   ownerID,
		RemoteID:  it.ID,
		Title:     it.Title,
		Body:      it.Body,
		FolderID:  it.FolderID,
		Favorite:  it.Favorite,
		Deleted:   it.Deleted,
		UpdatedAt: it.UpdatedAt,
		Version:   it.Version,
	}
}

// ingest applies one pulled record. A record whose local note has a pending
// change is parked in deferred_pulls instead.
func (s *Session) ingest(ctx context.Context, tx dbx.DBTX, p pulled) (applied, held bool, err error) {
	it := p.item
	if it.UpdatedAt, err = clock.Normalize(it.UpdatedAt); err != nil {
		s.logger.Warn(ctx, "skipping pulled note with bad timestamp", "id", it.ID, "error", err)
		return false, false, nil
	}

	noteRepo := notes.NewSQLiteRepository(tx)
	local, err := noteRepo.Get(ctx, s.ownerID, p.localRef)
	if errors.Is(err, common.ErrorNotFound) {
		if it.Deleted {
			// nothing to delete here
			return false, false, nil
		}
		return true, false, noteRepo.Save(ctx, fromWire(s.ownerID, p.localRef, it))
	}
	if err != nil {
		return false, false, err
	}

	entry, err := outbox.New(tx).Pending(ctx, s.ownerID, local.LocalRef)
	if err != nil {
		return false, false, err
	}
	if entry != nil {
		if err := deferred.NewSQLiteRepository(tx).Put(ctx, fromWire(s.ownerID, local.LocalRef, it)); err != nil {
			return false, false, err
		}
		if local.RemoteID == "" {
			local.RemoteID = it.ID
			return false, true, noteRepo.Save(ctx, local)
		}
		return false, true, nil
	}

	if !newer(it.UpdatedAt, it.Version, local) {
		if local.RemoteID == "" {
			local.RemoteID = it.ID
			return false, false, noteRepo.Save(ctx, local)
		}
		return false, false, nil
	}
	return true, false, noteRepo.Save(ctx, fromWire(s.ownerID, local.LocalRef, it))
}
