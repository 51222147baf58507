package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/services"
)

const shortRefLen = 8

func shortRef(ref string) string {
	if len(ref) <= shortRefLen {
		return ref
	}
	return ref[:shortRefLen]
}

func syncState(n *models.Note) string {
	if !n.Synced() {
		return "local"
	}
	return fmt.Sprintf("v%d", n.Version)
}

func printNotes(w io.Writer, list []*models.Note) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No notes.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REF\tFAV\tTITLE\tFOLDER\tUPDATED\tSTATE")
	for _, n := range list {
		fav := ""
		if n.Favorite {
			fav = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortRef(n.LocalRef), fav, n.Title, n.FolderID, n.UpdatedAt, syncState(n))
	}
	return tw.Flush()
}

func printNote(w io.Writer, n *models.Note) {
	fmt.Fprintf(w, "Ref:      %s\n", n.LocalRef)
	if n.RemoteID != "" {
		fmt.Fprintf(w, "ID:       %s (v%d)\n", n.RemoteID, n.Version)
	}
	fmt.Fprintf(w, "Title:    %s\n", n.Title)
	if n.FolderID != "" {
		fmt.Fprintf(w, "Folder:   %s\n", n.FolderID)
	}
	fmt.Fprintf(w, "Favorite: %t\n", n.Favorite)
	fmt.Fprintf(w, "Updated:  %s\n", n.UpdatedAt)
	if n.Deleted {
		fmt.Fprintln(w, "In trash")
	}
	if n.Body != "" {
		fmt.Fprintf(w, "\n%s\n", n.Body)
	}
}

func (a *App) notes() (services.NoteService, error) {
	if err := a.requireLogin(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.noteService, nil
}

func (a *App) Add(ctx context.Context, in services.NoteInput) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	n, err := ns.Create(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created %s\n", shortRef(n.LocalRef))
	return nil
}

// AddPrompt asks for the missing title and the body of a new note.
func (a *App) AddPrompt(ctx context.Context, title string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	var err error
	if title == "" {
		if title, err = GetSimpleText(a.reader, "Title", a.out); err != nil {
			return err
		}
	}
	body, err := GetMultiline(a.reader, "Body", a.out)
	if err != nil {
		return err
	}
	return a.Add(ctx, services.NoteInput{Title: title, Body: body})
}

func (a *App) Edit(ctx context.Context, ref string, edit services.NoteEdit) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	n, err := ns.Update(ctx, ref, edit)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s\n", shortRef(n.LocalRef))
	return nil
}

// EditPrompt shows the current note and asks for a new title and body.
// Empty answers keep the current value.
func (a *App) EditPrompt(ctx context.Context, ref string) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	n, err := ns.Get(ctx, ref)
	if err != nil {
		return err
	}
	printNote(a.out, n)

	var edit services.NoteEdit
	title, err := GetSimpleText(a.reader, "New title (empty keeps current)", a.out)
	if err != nil {
		return err
	}
	if title != "" {
		edit.Title = &title
	}
	body, err := GetMultiline(a.reader, "New body (empty keeps current)", a.out)
	if err != nil {
		return err
	}
	if body != "" {
		edit.Body = &body
	}
	if edit.Title == nil && edit.Body == nil {
		fmt.Fprintln(a.out, "Nothing changed.")
		return nil
	}
	return a.Edit(ctx, n.LocalRef, edit)
}

func (a *App) Delete(ctx context.Context, ref string) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	n, err := ns.Delete(ctx, ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Moved %s to trash\n", shortRef(n.LocalRef))
	return nil
}

func (a *App) Restore(ctx context.Context, ref string) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	n, err := ns.Restore(ctx, ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Restored %s\n", shortRef(n.LocalRef))
	return nil
}

func (a *App) Favorite(ctx context.Context, ref string) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	n, err := ns.ToggleFavorite(ctx, ref)
	if err != nil {
		return err
	}
	state := "removed from favorites"
	if n.Favorite {
		state = "added to favorites"
	}
	fmt.Fprintf(a.out, "%s %s\n", shortRef(n.LocalRef), state)
	return nil
}

func (a *App) Show(ctx context.Context, ref string) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	n, err := ns.Get(ctx, ref)
	if err != nil {
		return err
	}
	printNote(a.out, n)
	return nil
}

func (a *App) List(ctx context.Context, f models.ListFilter) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	list, err := ns.List(ctx, f)
	if err != nil {
		return err
	}
	return printNotes(a.out, list)
}

// Purge drops trashed notes the server already knows are deleted.
func (a *App) Purge(ctx context.Context) error {
	ns, err := a.notes()
	if err != nil {
		return err
	}
	n, err := ns.Purge(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Purged %d note(s)\n", n)
	return nil
}

// parseListArgs reads REPL list arguments: "trash", "fav" and
// "folder=<id>" in any order.
func parseListArgs(args []string) (models.ListFilter, error) {
	var f models.ListFilter
	for _, arg := range args {
		switch {
		case arg == "trash":
			f.Trash = true
		case arg == "fav" || arg == "favorites":
			f.FavoritesOnly = true
		case strings.HasPrefix(arg, "folder="):
			f.FolderID = strings.TrimPrefix(arg, "folder=")
		default:
			return f, fmt.Errorf("unknown list argument %q", arg)
		}
	}
	return f, nil
}
