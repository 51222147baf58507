package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

const entryColumns = `id, owner_id, local_ref, operation, remote_ref, attempt_count, last_error, created_at, revision, sent`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.OutboxEntry, error) {
	e := &models.OutboxEntry{}
	var op string
	if err := row.Scan(&e.ID, &e.OwnerID, &e.LocalRef, &op, &e.RemoteRef,
		&e.AttemptCount, &e.LastError, &e.CreatedAt, &e.Revision, &e.Sent); err != nil {
		return nil, err
	}
	e.Operation = models.Operation(op)
	return e, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, ownerID, localRef string) (*models.OutboxEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM outbox WHERE owner_id = ? AND local_ref = ?`, ownerID, localRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *models.OutboxEntry) error {
	if e.Revision == 0 {
		e.Revision = 1
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (owner_id, local_ref, operation, remote_ref, attempt_count, last_error, created_at, revision, sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OwnerID, e.LocalRef, string(e.Operation), e.RemoteRef, e.AttemptCount, e.LastError, e.CreatedAt, e.Revision, e.Sent)
	if err != nil {
		return fmt.Errorf("failed to insert outbox entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read outbox id: %w", err)
	}
	e.ID = id
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, e *models.OutboxEntry) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET operation = ?, remote_ref = ?, attempt_count = ?, last_error = ?, revision = ?, sent = ?
		WHERE id = ?`,
		string(e.Operation), e.RemoteRef, e.AttemptCount, e.LastError, e.Revision, e.Sent, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update outbox entry %d: %w", e.ID, err)
	}
	return dbx.ExpectOne(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete outbox entry %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteIfRevision(ctx context.Context, id, revision int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ? AND revision = ?`, id, revision)
	if err != nil {
		return false, fmt.Errorf("failed to delete outbox entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]*models.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox: %w", err)
	}
	defer rows.Close()

	var result []*models.OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) List(ctx context.Context, ownerID string, limit int) ([]*models.OutboxEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(ctx, `SELECT `+entryColumns+` FROM outbox WHERE owner_id = ?
		ORDER BY created_at, id LIMIT ?`, ownerID, limit)
}

func (r *SQLiteRepository) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ListStalled(ctx context.Context, ownerID string, maxAttempts int) ([]*models.OutboxEntry, error) {
	return r.query(ctx, `SELECT `+entryColumns+` FROM outbox WHERE owner_id = ? AND attempt_count >= ?
		ORDER BY created_at, id`, ownerID, maxAttempts)
}

func (r *SQLiteRepository) SetRemoteRef(ctx context.Context, id int64, remoteRef string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET remote_ref = ? WHERE id = ?`, remoteRef, id)
	if err != nil {
		return fmt.Errorf("failed to bind remote ref on outbox entry %d: %w", id, err)
	}
	return dbx.ExpectOne(res)
}

func (r *SQLiteRepository) RecordFailure(ctx context.Context, id int64, lastError string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET attempt_count = attempt_count + 1, last_error = ? WHERE id = ?`, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure %d: %w", id, err)
	}
	return dbx.ExpectOne(res)
}

func (r *SQLiteRepository) MarkSent(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry %d sent: %w", id, err)
	}
	return dbx.ExpectOne(res)
}
