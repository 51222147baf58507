package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/netx"
)

var errNotSynced = errors.New("note has not reached the server yet, run 'sync' first")

func (a *App) syncedNote(ctx context.Context, ref string) (*models.Note, error) {
	ns, err := a.notes()
	if err != nil {
		return nil, err
	}
	n, err := ns.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !n.Synced() {
		return nil, errNotSynced
	}
	return n, nil
}

// Attach uploads the file at path as an attachment of the note and prints
// the object key needed to fetch it back.
func (a *App) Attach(ctx context.Context, ref, path string) error {
	n, err := a.syncedNote(ctx, ref)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	resp, err := a.api.PresignUpload(ctx, n.RemoteID)
	if err != nil {
		return fmt.Errorf("presign upload: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := netx.Upload(ctx, nil, resp.URL, f, info.Size(), contentType); err != nil {
		return err
	}

	a.logger.Info(ctx, "attachment uploaded", "note_id", n.RemoteID, "key", resp.Key, "size", info.Size())
	fmt.Fprintf(a.out, "Uploaded %s\n", resp.Key)
	return nil
}

// Fetch downloads the attachment key of the note into dest.
func (a *App) Fetch(ctx context.Context, ref, key, dest string) error {
	n, err := a.syncedNote(ctx, ref)
	if err != nil {
		return err
	}

	resp, err := a.api.PresignDownload(ctx, n.RemoteID, key)
	if err != nil {
		return fmt.Errorf("presign download: %w", err)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	size, err := netx.Download(ctx, nil, resp.URL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}

	fmt.Fprintf(a.out, "Saved %d bytes to %s\n", size, dest)
	return nil
}
