package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	a.mu.Lock()
	owner, mode := a.ownerID, a.Mode
	a.mu.Unlock()

	s := ""
	if owner != "" {
		s = shortRef(owner) + " "
	}
	if mode != "" {
		s = s + string(mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root runs the interactive shell until the user exits. While it runs the
// replica syncs in the background (unless auto sync is off) and the prompt
// tracks connectivity.
func (a *App) Root(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.interactive = true
	fmt.Fprintln(a.out, "Welcome to notesync (type 'help' for commands)")

	a.checkOnline(ctx)
	if a.isLoggedIn() {
		a.startBackground(ctx)
	} else {
		fmt.Fprintln(a.out, "Not logged in. Use 'login <token>' to start syncing.")
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}
