package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/realtime"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/filex"
	"github.com/dmitrijs2005/notesync/internal/keylock"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// remote is the API surface the App needs; *client.GRPCClient satisfies it.
type remote interface {
	client.Client
	SetAccessToken(token string)
}

type App struct {
	config    *config.Config
	db        *sql.DB
	api       remote
	logger    logging.Logger
	oracle    *clock.Oracle
	locks     *keylock.Map
	sessionID string

	authService services.AuthService

	mu          sync.Mutex
	noteService services.NoteService
	session     *syncer.Session
	ownerID     string
	token       string
	Mode        Mode
	stopSync    context.CancelFunc
	// interactive is set by the shell, which syncs in the background.
	interactive bool

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local replica under c.DataDir and prepares the API
// client. A session stored by an earlier login is restored.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	dir := c.DataDir
	if dir == "" {
		var err error
		if dir, err = filex.DefaultDataDir(); err != nil {
			return nil, err
		}
	}
	dir, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	c.DataDir = dir

	logger := logging.NewFileLogger(logging.FileOptions{
		Path:       c.LogPath(),
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Level:      logging.ParseLevel(c.LogLevel),
	})

	db, err := client.InitDatabase(ctx, c.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	sessionID := uuid.NewString()
	api, err := client.NewGRPCClient(c.ServerEndpointAddr,
		client.WithSessionID(sessionID),
		client.WithRequestTimeout(c.RequestTimeout),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a, err := newApp(ctx, c, db, api, logger, sessionID)
	if err != nil {
		_ = api.Close()
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, c *config.Config, db *sql.DB, api remote, l logging.Logger, sessionID string) (*App, error) {
	a := &App{
		config:      c,
		db:          db,
		api:         api,
		logger:      l.With("module", "cli"),
		oracle:      clock.NewOracle(),
		locks:       keylock.New(),
		sessionID:   sessionID,
		authService: services.NewAuthService(api, db),
		Mode:        ModeOffline,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}

	token, owner, err := a.authService.Session(ctx)
	switch {
	case err == nil:
		a.bind(token, owner)
	case !errors.Is(err, client.ErrNotLoggedIn):
		return nil, err
	}
	return a, nil
}

// bind points the note service and the sync session at owner.
func (a *App) bind(token, owner string) {
	a.api.SetAccessToken(token)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.token, a.ownerID = token, owner
	a.noteService = services.NewNoteService(a.db, owner, a.oracle, a.locks, a.logger, services.WithOnChange(a.nudge))
	a.session = syncer.NewSession(a.db, a.api, owner, a.oracle, a.locks, a.logger,
		syncer.WithBatchSize(a.config.BatchSize),
		syncer.WithPageSize(a.config.PageSize),
		syncer.WithMaxAttempts(a.config.MaxAttempts),
	)
}

func (a *App) unbind() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token, a.ownerID = "", ""
	a.noteService = nil
	a.session = nil
	a.api.SetAccessToken("")
}

func (a *App) nudge() {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	if s != nil {
		s.Trigger()
	}
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownerID != ""
}

func (a *App) requireLogin() error {
	if !a.isLoggedIn() {
		return fmt.Errorf("%w: run 'login <token>' first", client.ErrNotLoggedIn)
	}
	return nil
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()

	if changed {
		fmt.Fprintf(a.out, "Switched to %s mode\n", mode)
		a.logger.Info(context.Background(), "connectivity changed", "mode", mode)
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

// Close stops background work and releases the API connection and the DB.
func (a *App) Close() error {
	a.stopBackground()
	return errors.Join(a.api.Close(), a.db.Close())
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := a.authService.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runSync runs the sync loop and, when a realtime URL is configured, the
// change listener. The first of them to fail stops the other.
func (a *App) runSync(ctx context.Context) error {
	a.mu.Lock()
	s, token := a.session, a.token
	a.mu.Unlock()
	if s == nil {
		return client.ErrNotLoggedIn
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(ctx, a.config.SyncInterval)
	})
	if a.config.RealtimeURL != "" {
		l := realtime.NewListener(a.config.RealtimeURL, token, a.sessionID, s.Trigger, a.logger,
			realtime.WithDebounce(a.config.RealtimeDebounce))
		g.Go(func() error {
			return l.Run(ctx)
		})
	}
	return g.Wait()
}

// startBackground runs runSync until ctx ends or stopBackground is called.
// It does nothing when auto sync is off or a background sync is running.
func (a *App) startBackground(ctx context.Context) {
	if !a.config.AutoSync || !a.isLoggedIn() {
		return
	}

	a.mu.Lock()
	if a.stopSync != nil {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.stopSync = cancel
	a.mu.Unlock()

	go func() {
		err := a.runSync(ctx)
		if err != nil && ctx.Err() == nil {
			a.logger.Error(ctx, "background sync stopped", "error", err)
			printlnFn("Background sync stopped:", err)
		}
	}()
}

func (a *App) stopBackground() {
	a.mu.Lock()
	cancel := a.stopSync
	a.stopSync = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
