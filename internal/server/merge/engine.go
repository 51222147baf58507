// Package merge is the authoritative side of the sync protocol. It arbitrates
// incoming changes with last-write-wins on canonical timestamps and serves
// ordered change pages to pulling clients.
package merge

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

const (
	DefaultPageSize = 500
	MaxPageSize     = 1000
)

// Store is the durable storage collaborator of the engine.
type Store interface {
	// Modify runs fn with the note (ownerID, id) locked against concurrent
	// writers; current is nil when the note does not exist. A non-nil note
	// returned by fn is persisted atomically with the read.
	Modify(ctx context.Context, ownerID, id string, fn func(current *models.Note) (*models.Note, error)) error

	// SelectUpdatedSince returns up to limit notes of ownerID sorting after
	// cursor, ordered by (UpdatedAt, ID).
	SelectUpdatedSince(ctx context.Context, ownerID string, cursor models.Cursor, limit int) ([]*models.Note, error)
}

// ChangeHook observes applied merges once they are durable.
type ChangeHook func(ctx context.Context, ownerID string, res Result)

type Option func(*Engine)

// WithChangeHook registers h to run after every applied merge.
func WithChangeHook(h ChangeHook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, h) }
}

// WithMaxPageSize caps the page size a client may request.
func WithMaxPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPage = n
		}
	}
}

type Engine struct {
	store   Store
	logger  logging.Logger
	hooks   []ChangeHook
	maxPage int
}

func NewEngine(store Store, l logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		logger:  l.With("module", "merge"),
		maxPage: MaxPageSize,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Apply merges candidate c into ownerID's notes. Losing the arbitration is
// reported through Result.Applied, never as an error; errors are either
// validation failures (common.ErrValidation) or storage failures.
func (e *Engine) Apply(ctx context.Context, ownerID string, c models.Candidate) (Result, error) {
	if err := Validate(ownerID, &c); err != nil {
		return Result{}, err
	}

	var res Result
	err := e.store.Modify(ctx, ownerID, c.ID, func(current *models.Note) (*models.Note, error) {
		var next *models.Note
		next, res = Arbitrate(current, ownerID, c)
		return next, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("merge note %s: %w", c.ID, err)
	}

	if !res.Applied {
		e.logger.Info(ctx, "Candidate lost arbitration",
			"owner", ownerID, "note", c.ID,
			"candidate_updated_at", c.UpdatedAt,
			"canonical_updated_at", res.Canonical.UpdatedAt,
			"known_version", c.KnownVersion,
			"canonical_version", res.Canonical.Version)
		return res, nil
	}

	e.logger.Debug(ctx, "Candidate applied", "owner", ownerID, "note", c.ID,
		"kind", res.Kind, "version", res.Canonical.Version)

	for _, h := range e.hooks {
		h(ctx, ownerID, res)
	}
	return res, nil
}

// Pull returns the next page of ownerID's notes after cursor. A page of
// exactly the effective page size means more may follow.
func (e *Engine) Pull(ctx context.Context, ownerID string, cursor models.Cursor, pageSize int) ([]*models.Note, int, error) {
	if ownerID == "" {
		return nil, 0, fmt.Errorf("%w: empty owner", common.ErrValidation)
	}
	if cursor.UpdatedAt == "" {
		cursor.UpdatedAt = clock.Epoch
	}
	ts, err := clock.Normalize(cursor.UpdatedAt)
	if err != nil {
		return nil, 0, err
	}
	cursor.UpdatedAt = ts

	limit := e.PageSize(pageSize)
	notes, err := e.store.SelectUpdatedSince(ctx, ownerID, cursor, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("select updated notes: %w", err)
	}
	return notes, limit, nil
}

// PageSize resolves a requested page size against the default and the cap.
func (e *Engine) PageSize(requested int) int {
	switch {
	case requested <= 0:
		return min(DefaultPageSize, e.maxPage)
	case requested > e.maxPage:
		return e.maxPage
	default:
		return requested
	}
}
