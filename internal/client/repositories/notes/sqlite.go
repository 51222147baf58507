package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

const noteColumns = `local_ref, owner_id, COALESCE(remote_id, ''), title, body, folder_id, favorite, deleted, updated_at, version`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (*models.Note, error) {
	n := &models.Note{}
	err := row.Scan(&n.LocalRef, &n.OwnerID, &n.RemoteID, &n.Title, &n.Body, &n.FolderID,
		&n.Favorite, &n.Deleted, &n.UpdatedAt, &n.Version)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, where string, args ...any) (*models.Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, ownerID, localRef string) (*models.Note, error) {
	return r.getOne(ctx, `owner_id = ? AND local_ref = ?`, ownerID, localRef)
}

func (r *SQLiteRepository) GetByRemoteID(ctx context.Context, ownerID, remoteID string) (*models.Note, error) {
	return r.getOne(ctx, `owner_id = ? AND remote_id = ?`, ownerID, remoteID)
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]*models.Note, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) FindByPrefix(ctx context.Context, ownerID, prefix string) ([]*models.Note, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return r.query(ctx, `SELECT `+noteColumns+` FROM notes
		WHERE owner_id = ? AND local_ref LIKE ? ESCAPE '\'
		ORDER BY local_ref LIMIT 10`, ownerID, escaped+"%")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *SQLiteRepository) Save(ctx context.Context, n *models.Note) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notes (local_ref, owner_id, remote_id, title, body, folder_id, favorite, deleted, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (local_ref) DO UPDATE SET
			remote_id = excluded.remote_id,
			title = excluded.title,
			body = excluded.body,
			folder_id = excluded.folder_id,
			favorite = excluded.favorite,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at,
			version = excluded.version
		WHERE notes.owner_id = excluded.owner_id`,
		n.LocalRef, n.OwnerID, nullable(n.RemoteID), n.Title, n.Body, n.FolderID,
		n.Favorite, n.Deleted, n.UpdatedAt, n.Version)
	if err != nil {
		return fmt.Errorf("failed to save note %s: %w", n.LocalRef, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, ownerID string, f models.ListFilter) ([]*models.Note, error) {
	q := `SELECT ` + noteColumns + ` FROM notes WHERE owner_id = ? AND deleted = ?`
	args := []any{ownerID, f.Trash}
	if f.FavoritesOnly {
		q += ` AND favorite = 1`
	}
	if f.FolderID != "" {
		q += ` AND folder_id = ?`
		args = append(args, f.FolderID)
	}
	q += ` ORDER BY favorite DESC, updated_at DESC, local_ref`
	return r.query(ctx, q, args...)
}

func (r *SQLiteRepository) ListUnsynced(ctx context.Context, ownerID string) ([]*models.Note, error) {
	return r.query(ctx, `SELECT `+noteColumns+` FROM notes WHERE owner_id = ? AND remote_id IS NULL`, ownerID)
}

func (r *SQLiteRepository) ListPurgeable(ctx context.Context, ownerID string) ([]*models.Note, error) {
	return r.query(ctx, `SELECT `+noteColumns+` FROM notes n
		WHERE n.owner_id = ? AND n.deleted = 1
		AND NOT EXISTS (SELECT 1 FROM outbox o WHERE o.owner_id = n.owner_id AND o.local_ref = n.local_ref)
		ORDER BY n.updated_at`, ownerID)
}

func (r *SQLiteRepository) Delete(ctx context.Context, ownerID, localRef string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE owner_id = ? AND local_ref = ?`, ownerID, localRef)
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %w", localRef, err)
	}
	return nil
}
