// Package services contains the application services of the notesync client.
// Every mutation writes the note and its outbox entry in one local transaction,
// so the replica stays usable with no server in reach.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/outbox"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/keylock"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/google/uuid"
)

const (
	MaxTitleLength = 1024
	MaxBodyLength  = 1 << 20
)

var (
	ErrAmbiguousRef = errors.New("reference matches more than one note")
	ErrInTrash      = errors.New("note is in the trash")
)

// NoteInput is the editable content of a new note.
type NoteInput struct {
	Title    string
	Body     string
	FolderID string
	Favorite bool
}

// NoteEdit changes the fields that are set.
type NoteEdit struct {
	Title    *string
	Body     *string
	FolderID *string
}

type NoteService interface {
	Create(ctx context.Context, in NoteInput) (*models.Note, error)
	Update(ctx context.Context, ref string, edit NoteEdit) (*models.Note, error)
	Delete(ctx context.Context, ref string) (*models.Note, error)
	Restore(ctx context.Context, ref string) (*models.Note, error)
	ToggleFavorite(ctx context.Context, ref string) (*models.Note, error)
	// Get resolves ref as a full local ref or a unique prefix of one.
	Get(ctx context.Context, ref string) (*models.Note, error)
	List(ctx context.Context, f models.ListFilter) ([]*models.Note, error)
	// Purge removes trashed notes whose deletion the server has confirmed.
	Purge(ctx context.Context) (int, error)
}

type NoteOption func(*noteService)

// WithOnChange registers fn to run after every committed mutation. The CLI
// uses it to nudge the sync session.
func WithOnChange(fn func()) NoteOption {
	return func(s *noteService) { s.onChange = fn }
}

type noteService struct {
	db       *sql.DB
	ownerID  string
	oracle   *clock.Oracle
	locks    *keylock.Map
	logger   logging.Logger
	onChange func()
}

func NewNoteService(db *sql.DB, ownerID string, oracle *clock.Oracle, locks *keylock.Map, l logging.Logger, opts ...NoteOption) NoteService {
	s := &noteService{
		db:       db,
		ownerID:  ownerID,
		oracle:   oracle,
		locks:    locks,
		logger:   l.With("module", "notes"),
		onChange: func() {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func validateContent(title, body string) error {
	if len(title) > MaxTitleLength {
		return fmt.Errorf("%w: title longer than %d bytes", common.ErrValidation, MaxTitleLength)
	}
	if len(body) > MaxBodyLength {
		return fmt.Errorf("%w: body larger than %d bytes", common.ErrValidation, MaxBodyLength)
	}
	if !utf8.ValidString(title) || !utf8.ValidString(body) {
		return fmt.Errorf("%w: note text is not valid UTF-8", common.ErrValidation)
	}
	return nil
}

func (s *noteService) Create(ctx context.Context, in NoteInput) (*models.Note, error) {
	if err := validateContent(in.Title, in.Body); err != nil {
		return nil, err
	}

	n := &models.Note{
		LocalRef: uuid.NewString(),
		OwnerID:  s.ownerID,
		Title:    in.Title,
		Body:     in.Body,
		FolderID: in.FolderID,
		Favorite: in.Favorite,
	}

	unlock := s.locks.Lock(keylock.Key(s.ownerID, n.LocalRef))
	defer unlock()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n.UpdatedAt = s.oracle.Now()
		if err := notes.NewSQLiteRepository(tx).Save(ctx, n); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, s.ownerID, n.LocalRef, "", models.OperationUpsert, n.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	s.logger.Debug(ctx, "note created", "local_ref", n.LocalRef)
	s.onChange()
	return n, nil
}

// mutate loads the note behind ref under its lock, lets fn change it and
// persists the result with a fresh timestamp and an outbox entry for op.
func (s *noteService) mutate(ctx context.Context, ref string, op models.Operation, fn func(n *models.Note) error) (*models.Note, error) {
	resolved, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(keylock.Key(s.ownerID, resolved.LocalRef))
	defer unlock()

	var n *models.Note
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := notes.NewSQLiteRepository(tx)
		// re-read under the lock, a pull may have replaced the copy
		cur, err := repo.Get(ctx, s.ownerID, resolved.LocalRef)
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		cur.UpdatedAt = s.oracle.Now()
		if err := repo.Save(ctx, cur); err != nil {
			return err
		}
		if _, err := outbox.New(tx).Enqueue(ctx, s.ownerID, cur.LocalRef, cur.RemoteID, op, cur.UpdatedAt); err != nil {
			return err
		}
		n = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.onChange()
	return n, nil
}

func (s *noteService) Update(ctx context.Context, ref string, edit NoteEdit) (*models.Note, error) {
	n, err := s.mutate(ctx, ref, models.OperationUpsert, func(n *models.Note) error {
		if n.Deleted {
			return ErrInTrash
		}
		if edit.Title != nil {
			n.Title = *edit.Title
		}
		if edit.Body != nil {
			n.Body = *edit.Body
		}
		if edit.FolderID != nil {
			n.FolderID = *edit.FolderID
		}
		return validateContent(n.Title, n.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return n, nil
}

func (s *noteService) Delete(ctx context.Context, ref string) (*models.Note, error) {
	n, err := s.mutate(ctx, ref, models.OperationDelete, func(n *models.Note) error {
		if n.Deleted {
			return ErrInTrash
		}
		n.Deleted = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete note: %w", err)
	}
	return n, nil
}

func (s *noteService) Restore(ctx context.Context, ref string) (*models.Note, error) {
	n, err := s.mutate(ctx, ref, models.OperationUpsert, func(n *models.Note) error {
		if !n.Deleted {
			return fmt.Errorf("%w: note is not in the trash", common.ErrValidation)
		}
		n.Deleted = false
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("restore note: %w", err)
	}
	return n, nil
}

func (s *noteService) ToggleFavorite(ctx context.Context, ref string) (*models.Note, error) {
	n, err := s.mutate(ctx, ref, models.OperationUpsert, func(n *models.Note) error {
		if n.Deleted {
			return ErrInTrash
		}
		n.Favorite = !n.Favorite
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("toggle favorite: %w", err)
	}
	return n, nil
}

func (s *noteService) Get(ctx context.Context, ref string) (*models.Note, error) {
	if ref == "" {
		return nil, common.ErrorNotFound
	}
	repo := notes.NewSQLiteRepository(s.db)

	n, err := repo.Get(ctx, s.ownerID, ref)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	matches, err := repo.FindByPrefix(ctx, s.ownerID, ref)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, common.ErrorNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousRef, ref)
	}
}

func (s *noteService) List(ctx context.Context, f models.ListFilter) ([]*models.Note, error) {
	return notes.NewSQLiteRepository(s.db).List(ctx, s.ownerID, f)
}

func (s *noteService) Purge(ctx context.Context) (int, error) {
	var purged int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := notes.NewSQLiteRepository(tx)
		candidates, err := repo.ListPurgeable(ctx, s.ownerID)
		if err != nil {
			return err
		}
		for _, n := range candidates {
			if err := repo.Delete(ctx, s.ownerID, n.LocalRef); err != nil {
				return err
			}
		}
		purged = len(candidates)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge trash: %w", err)
	}
	if purged > 0 {
		s.logger.Info(ctx, "trash purged", "count", purged)
	}
	return purged, nil
}
