package cli

import (
	"context"
	"errors"
	"fmt"
)

// getSecret is an indirection over GetSecret so tests can skip the terminal.
var getSecret = GetSecret

// Login stores token as the current session. An empty token is read from
// the terminal without echo.
//
// The token is issued by the server operator (see cmd/tokengen); the client
// only extracts the owner id from it. Switching owners keeps both replicas
// in the local database, scoped by owner.
func (a *App) Login(ctx context.Context, token string) error {
	if token == "" {
		var err error
		token, err = getSecret(a.out, "Enter access token: ")
		if err != nil {
			return err
		}
	}
	if token == "" {
		return errors.New("empty access token")
	}

	owner, err := a.authService.Login(ctx, token)
	if err != nil {
		a.logger.Warn(ctx, "login failed", "error", err)
		return fmt.Errorf("login: %w", err)
	}

	a.stopBackground()
	a.bind(token, owner)
	a.logger.Info(ctx, "logged in", "owner_id", owner)
	fmt.Fprintf(a.out, "Logged in as %s\n", owner)

	if a.interactive {
		a.checkOnline(ctx)
		a.startBackground(ctx)
	}
	return nil
}

// Logout forgets the stored token. Local notes and pending changes stay in
// the replica and sync on the next login of the same owner.
func (a *App) Logout(ctx context.Context) error {
	a.stopBackground()
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.unbind()
	a.logger.Info(ctx, "logged out")
	fmt.Fprintln(a.out, "Logged out. Local notes are kept.")
	return nil
}
