// Package storage opens the durable store behind the merge engine.
package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/merge"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
)

// MemoryDSN selects the in-process store.
const MemoryDSN = "memory"

// Store is a merge.Store that owns resources.
type Store interface {
	merge.Store
	Close() error
}

var openPostgres = repomanager.OpenPostgres

// Open returns the store selected by dsn: MemoryDSN for the in-memory store,
// anything else is a PostgreSQL DSN. Postgres schemas are migrated on open.
func Open(ctx context.Context, dsn string, l logging.Logger) (Store, error) {
	if dsn == MemoryDSN {
		l.Warn(ctx, "Using in-memory store, data will not survive restarts")
		return NewMemoryStore(), nil
	}

	db, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	l.Info(ctx, "Connected to PostgreSQL")
	return NewPostgresStore(db, rm), nil
}
