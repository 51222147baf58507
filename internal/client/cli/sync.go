package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/syncer"
)

func (a *App) currentSession() (*syncer.Session, error) {
	if err := a.requireLogin(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, nil
}

func (a *App) printPush(r syncer.PushReport) {
	fmt.Fprintf(a.out, "Pushed:  %d applied, %d lost to newer edits, %d superseded, %d rejected\n",
		r.Applied, r.Lost, r.Superseded, r.Rejected)
	if r.Stalled > 0 {
		fmt.Fprintf(a.out, "Warning: %d change(s) keep failing, see 'status'\n", r.Stalled)
	}
}

func (a *App) printPull(r syncer.PullReport) {
	fmt.Fprintf(a.out, "Pulled:  %d note(s) in %d page(s), %d applied, %d held for pending edits\n",
		r.Received, r.Pages, r.Applied, r.Deferred)
}

// Sync runs one push and pull cycle in the foreground.
func (a *App) Sync(ctx context.Context) error {
	s, err := a.currentSession()
	if err != nil {
		return err
	}
	rep, err := s.SyncOnce(ctx)
	a.printPush(rep.Push)
	if err != nil {
		return err
	}
	a.printPull(rep.Pull)
	return nil
}

// Resync pulls every note again, starting from an empty watermark.
func (a *App) Resync(ctx context.Context) error {
	s, err := a.currentSession()
	if err != nil {
		return err
	}
	rep, err := s.Resync(ctx)
	if err != nil {
		return err
	}
	a.printPull(rep)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	s, err := a.currentSession()
	if err != nil {
		return err
	}
	st, err := s.Status(ctx)
	if err != nil {
		return err
	}

	w := a.out
	fmt.Fprintf(w, "Owner:      %s\n", st.OwnerID)
	fmt.Fprintf(w, "Server:     %s\n", a.config.ServerEndpointAddr)

	pctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	serverTime, perr := a.authService.Ping(pctx)
	cancel()
	if perr != nil {
		fmt.Fprintf(w, "Connection: offline (%v)\n", perr)
	} else {
		fmt.Fprintf(w, "Connection: online, server time %s\n", serverTime)
	}

	fmt.Fprintf(w, "Pending:    %d\n", st.Pending)
	fmt.Fprintf(w, "Deferred:   %d\n", st.Deferred)
	if st.Watermark.ID != "" {
		fmt.Fprintf(w, "Watermark:  %s (%s)\n", st.Watermark.UpdatedAt, st.Watermark.ID)
	} else {
		fmt.Fprintf(w, "Watermark:  %s\n", st.Watermark.UpdatedAt)
	}
	fmt.Fprintln(w, "            changes older than the watermark need `resync`")
	if !st.LastSync.IsZero() {
		fmt.Fprintf(w, "Last sync:  %s\n", st.LastSync.Format("2006-01-02 15:04:05"))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", st.LastError)
	}

	fmt.Fprintf(w, "Stalled:    %d\n", len(st.Stalled))
	for _, e := range st.Stalled {
		fmt.Fprintf(w, "  %s %s attempts=%d: %s\n", shortRef(e.LocalRef), e.Operation, e.AttemptCount, e.LastError)
	}
	return nil
}

// Watch syncs in the foreground until ctx is cancelled, pulling as soon as
// the server announces a change.
func (a *App) Watch(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Watching for changes every %s (Ctrl-C to stop)\n", a.config.SyncInterval)
	return a.runSync(ctx)
}
