package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const noteColumns = `id, owner_id, title, body, folder_id, favorite, deleted, updated_at, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var n models.Note
	if err := s.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Body, &n.FolderID,
		&n.Favorite, &n.Deleted, &n.UpdatedAt, &n.Version); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, ownerID, id string) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE owner_id = $1 AND id = $2 FOR UPDATE`

	n, err := scanNote(r.db.QueryRowContext(ctx, query, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select note: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, n *models.Note) (bool, error) {
	query := `
		INSERT INTO notes (` + noteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner_id, id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		n.ID, n.OwnerID, n.Title, n.Body, n.FolderID, n.Favorite, n.Deleted, n.UpdatedAt, n.Version)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	err = dbx.ExpectOne(res)
	if errors.Is(err, dbx.ErrNoRowsAffected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresRepository) Update(ctx context.Context, n *models.Note) error {
	query := `
		UPDATE notes SET
			title = $3, body = $4, folder_id = $5, favorite = $6,
			deleted = $7, updated_at = $8, version = $9
		WHERE owner_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query,
		n.OwnerID, n.ID, n.Title, n.Body, n.FolderID, n.Favorite, n.Deleted, n.UpdatedAt, n.Version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.ExpectOne(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return common.ErrorNotFound
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) SelectUpdatedSince(ctx context.Context, ownerID string, cursor models.Cursor, limit int) ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE owner_id = $1 AND (updated_at, id) > ($2, $3)
		ORDER BY updated_at, id
		LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, ownerID, cursor.UpdatedAt, cursor.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Note, 0, limit)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
