// Package syncer runs the client side of the sync protocol: it pushes the
// outbox to the server, reconciles each answer with the local replica and
// pulls server changes past the stored watermark.
package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/outbox"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/deferred"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/keylock"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

const (
	DefaultBatchSize   = 100
	DefaultPageSize    = 500
	DefaultMaxAttempts = 5
)

type Session struct {
	db      *sql.DB
	client  client.Client
	ownerID string
	oracle  *clock.Oracle
	locks   *keylock.Map
	logger  logging.Logger

	batchSize   int
	pageSize    int
	maxAttempts int
	retryBase   time.Duration
	retryMax    uint64

	// phase serialises push and pull
	phase   sync.Mutex
	trigger chan struct{}

	mu       sync.Mutex
	lastSync time.Time
	lastErr  error
}

type Option func(*Session)

func WithBatchSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithPageSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMaxAttempts sets how many failed transmissions mark an entry as stalled.
func WithMaxAttempts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetry tunes the backoff Run uses for unavailable servers.
func WithRetry(base time.Duration, maxRetries uint64) Option {
	return func(s *Session) {
		s.retryBase = base
		s.retryMax = maxRetries
	}
}

func NewSession(db *sql.DB, c client.Client, ownerID string, oracle *clock.Oracle, locks *keylock.Map, l logging.Logger, opts ...Option) *Session {
	s := &Session{
		db:          db,
		client:      c,
		ownerID:     ownerID,
		oracle:      oracle,
		locks:       locks,
		logger:      l.With("module", "syncer", "owner_id", ownerID),
		batchSize:   DefaultBatchSize,
		pageSize:    DefaultPageSize,
		maxAttempts: DefaultMaxAttempts,
		retryBase:   500 * time.Millisecond,
		retryMax:    5,
		trigger:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) watermarkKey() string {
	return "watermark." + s.ownerID
}

func (s *Session) loadWatermark(ctx context.Context, db dbx.DBTX) (models.Watermark, error) {
	wm := models.EpochWatermark()
	if _, err := metadata.LoadJSON(ctx, metadata.NewSQLiteRepository(db), s.watermarkKey(), &wm); err != nil {
		return wm, fmt.Errorf("load watermark: %w", err)
	}
	return wm, nil
}

// Status is a snapshot of the session for display.
type Status struct {
	OwnerID   string
	Pending   int
	Stalled   []*models.OutboxEntry
	Deferred  int
	Watermark models.Watermark
	LastSync  time.Time
	LastError string
}

func (s *Session) Status(ctx context.Context) (*Status, error) {
	ob := outbox.New(s.db)
	pending, err := ob.PendingCount(ctx, s.ownerID)
	if err != nil {
		return nil, err
	}
	stalled, err := ob.Stalled(ctx, s.ownerID, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	held, err := deferred.NewSQLiteRepository(s.db).Count(ctx, s.ownerID)
	if err != nil {
		return nil, err
	}
	wm, err := s.loadWatermark(ctx, s.db)
	if err != nil {
		return nil, err
	}

	st := &Status{
		OwnerID:   s.ownerID,
		Pending:   pending,
		Stalled:   stalled,
		Deferred:  held,
		Watermark: wm,
	}
	s.mu.Lock()
	st.LastSync = s.lastSync
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()
	return st, nil
}

func (s *Session) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err == nil {
		s.lastSync = time.Now()
	}
}

// Report sums up one sync cycle.
type Report struct {
	Push PushReport
	Pull PullReport
}

// SyncOnce pushes the outbox and then pulls. A failed push skips the pull.
func (s *Session) SyncOnce(ctx context.Context) (Report, error) {
	var rep Report
	var err error

	rep.Push, err = s.Push(ctx)
	if err == nil {
		rep.Pull, err = s.Pull(ctx)
	}
	s.record(err)
	return rep, err
}

// Resync forgets the watermark and pulls everything again.
//
// The watermark only moves forward in (updated_at, id) order. A change that
// another device synced late, carrying an older updated_at than the stored
// watermark, is never returned by Pull; Resync picks it up.
func (s *Session) Resync(ctx context.Context) (PullReport, error) {
	s.phase.Lock()
	err := metadata.StoreJSON(ctx, metadata.NewSQLiteRepository(s.db), s.watermarkKey(), models.EpochWatermark())
	s.phase.Unlock()
	if err != nil {
		return PullReport{}, fmt.Errorf("reset watermark: %w", err)
	}
	s.logger.Info(ctx, "watermark reset")
	return s.Pull(ctx)
}
