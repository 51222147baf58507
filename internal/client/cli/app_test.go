package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"github.com/dmitrijs2005/notesync/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverTime = "2026-10-14T10:00:00.000Z"

// fakeRemote accepts every change as applied and serves empty pulls.
type fakeRemote struct {
	client.Client

	mu      sync.Mutex
	token   string
	pingErr error
	objects string // base URL for presigned links
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) SetAccessToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeRemote) currentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeRemote) Ping(ctx context.Context) (string, error) {
	if f.pingErr != nil {
		return "", f.pingErr
	}
	return serverTime, nil
}

func (f *fakeRemote) SubmitChanges(ctx context.Context, changes []rpc.Change) (*rpc.SubmitChangesResponse, error) {
	out := make([]rpc.ChangeResult, len(changes))
	for i, c := range changes {
		can := c.Note
		if can.ID == "" {
			can.ID = rpc.DeriveNoteID("alice", c.Note.OriginRef)
		}
		can.Version = c.KnownVersion + 1
		out[i] = rpc.ChangeResult{Applied: true, Canonical: &can}
	}
	return &rpc.SubmitChangesResponse{Results: out, ServerTime: serverTime}, nil
}

func (f *fakeRemote) PullChanges(ctx context.Context, since models.Watermark, pageSize int) (*rpc.PullChangesResponse, error) {
	return &rpc.PullChangesResponse{Items: []rpc.Note{}, PageSize: pageSize, ServerNow: serverTime}, nil
}

func (f *fakeRemote) PresignUpload(ctx context.Context, noteID string) (*rpc.PresignAttachmentResponse, error) {
	key := "users/alice/" + noteID + "/obj"
	return &rpc.PresignAttachmentResponse{Key: key, URL: f.objects + "/" + key}, nil
}

func (f *fakeRemote) PresignDownload(ctx context.Context, noteID, key string) (*rpc.PresignAttachmentResponse, error) {
	return &rpc.PresignAttachmentResponse{Key: key, URL: f.objects + "/" + key}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RealtimeURL = ""
	return cfg
}

func newTestApp(t *testing.T, fake *fakeRemote) (*App, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()

	db, err := client.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a, err := newApp(ctx, testConfig(), db, fake, logging.NewNopLogger(), "session-1")
	require.NoError(t, err)

	var out bytes.Buffer
	a.out = &out
	return a, &out
}

func token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := auth.GenerateToken(owner, []byte("secret"), time.Hour)
	require.NoError(t, err)
	return tok
}

func loggedIn(t *testing.T, fake *fakeRemote) (*App, *bytes.Buffer) {
	t.Helper()
	a, out := newTestApp(t, fake)
	require.NoError(t, a.Login(context.Background(), token(t, "alice")))
	out.Reset()
	return a, out
}

func onlyRef(t *testing.T, a *App, f models.ListFilter) string {
	t.Helper()
	list, err := a.noteService.List(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0].LocalRef
}

func TestCommandsRequireLogin(t *testing.T) {
	a, _ := newTestApp(t, &fakeRemote{})
	ctx := context.Background()

	assert.False(t, a.isLoggedIn())
	assert.ErrorIs(t, a.List(ctx, models.ListFilter{}), client.ErrNotLoggedIn)
	assert.ErrorIs(t, a.Sync(ctx), client.ErrNotLoggedIn)
	assert.ErrorIs(t, a.Status(ctx), client.ErrNotLoggedIn)
	assert.ErrorIs(t, a.Watch(ctx), client.ErrNotLoggedIn)
}

func TestLoginLogout(t *testing.T) {
	fake := &fakeRemote{}
	a, out := newTestApp(t, fake)
	ctx := context.Background()
	tok := token(t, "alice")

	require.NoError(t, a.Login(ctx, tok))
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, tok, fake.currentToken())
	assert.Contains(t, out.String(), "Logged in as alice")

	// a second App over the same replica restores the session
	b, err := newApp(ctx, testConfig(), a.db, fake, logging.NewNopLogger(), "session-2")
	require.NoError(t, err)
	assert.True(t, b.isLoggedIn())

	require.NoError(t, a.Logout(ctx))
	assert.False(t, a.isLoggedIn())
	assert.Empty(t, fake.currentToken())
}

func TestLoginPromptsForToken(t *testing.T) {
	a, _ := newTestApp(t, &fakeRemote{})
	tok := token(t, "bob")

	old := getSecret
	getSecret = func(io.Writer, string) (string, error) { return tok, nil }
	t.Cleanup(func() { getSecret = old })

	require.NoError(t, a.Login(context.Background(), ""))
	assert.Equal(t, "bob", a.ownerID)
}

func TestLoginRejectsGarbage(t *testing.T) {
	a, _ := newTestApp(t, &fakeRemote{})
	assert.Error(t, a.Login(context.Background(), "not-a-token"))
	assert.False(t, a.isLoggedIn())
}

func TestNoteCommands(t *testing.T) {
	a, out := loggedIn(t, &fakeRemote{})
	ctx := context.Background()

	a.reader = rdr("\n")
	require.NoError(t, a.AddPrompt(ctx, "groceries"))
	assert.Contains(t, out.String(), "Created")

	ref := onlyRef(t, a, models.ListFilter{})

	out.Reset()
	require.NoError(t, a.List(ctx, models.ListFilter{}))
	assert.Contains(t, out.String(), "groceries")
	assert.Contains(t, out.String(), "local")

	out.Reset()
	require.NoError(t, a.Favorite(ctx, shortRef(ref)))
	assert.Contains(t, out.String(), "added to favorites")

	require.NoError(t, a.Delete(ctx, ref))
	assert.Equal(t, ref, onlyRef(t, a, models.ListFilter{Trash: true}))

	require.NoError(t, a.Restore(ctx, ref))
	assert.Equal(t, ref, onlyRef(t, a, models.ListFilter{}))

	out.Reset()
	require.NoError(t, a.Show(ctx, ref))
	assert.Contains(t, out.String(), "Title:    groceries")
	assert.Contains(t, out.String(), "Favorite: true")
}

func TestEditPrompt(t *testing.T) {
	a, out := loggedIn(t, &fakeRemote{})
	ctx := context.Background()

	a.reader = rdr("\n")
	require.NoError(t, a.AddPrompt(ctx, "draft"))
	ref := onlyRef(t, a, models.ListFilter{})

	a.reader = rdr("final\nfirst line\nsecond line\n\n")
	require.NoError(t, a.EditPrompt(ctx, ref))
	assert.Contains(t, out.String(), "Updated")

	n, err := a.noteService.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "final", n.Title)
	assert.Equal(t, "first line\nsecond line", n.Body)

	out.Reset()
	a.reader = rdr("\n\n")
	require.NoError(t, a.EditPrompt(ctx, ref))
	assert.Contains(t, out.String(), "Nothing changed.")
}

func TestSyncAndStatus(t *testing.T) {
	a, out := loggedIn(t, &fakeRemote{})
	ctx := context.Background()

	a.reader = rdr("body\n\n")
	require.NoError(t, a.AddPrompt(ctx, "hello"))

	out.Reset()
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, out.String(), "Pending:    1")
	assert.Contains(t, out.String(), "Connection: online, server time "+serverTime)

	out.Reset()
	require.NoError(t, a.Sync(ctx))
	assert.Contains(t, out.String(), "Pushed:  1 applied")
	assert.Contains(t, out.String(), "Pulled:  0 note(s)")

	out.Reset()
	require.NoError(t, a.List(ctx, models.ListFilter{}))
	assert.Contains(t, out.String(), "v1")

	out.Reset()
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, out.String(), "Pending:    0")
	assert.Contains(t, out.String(), "Stalled:    0")
	assert.Contains(t, out.String(), "need `resync`")
	assert.Contains(t, out.String(), "Last sync:")
}

func TestStatusOffline(t *testing.T) {
	a, out := loggedIn(t, &fakeRemote{pingErr: client.ErrUnavailable})

	require.NoError(t, a.Status(context.Background()))
	assert.Contains(t, out.String(), "Connection: offline")
}

func TestAttachNeedsSyncedNote(t *testing.T) {
	a, _ := loggedIn(t, &fakeRemote{})
	ctx := context.Background()

	a.reader = rdr("\n")
	require.NoError(t, a.AddPrompt(ctx, "pic"))
	ref := onlyRef(t, a, models.ListFilter{})

	assert.ErrorIs(t, a.Attach(ctx, ref, "whatever.png"), errNotSynced)
}

func TestAttachAndFetch(t *testing.T) {
	var mu sync.Mutex
	objects := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = b
		case http.MethodGet:
			b, ok := objects[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(b)
		}
	}))
	defer srv.Close()

	a, out := loggedIn(t, &fakeRemote{objects: srv.URL})
	ctx := context.Background()

	a.reader = rdr("\n")
	require.NoError(t, a.AddPrompt(ctx, "trip"))
	require.NoError(t, a.Sync(ctx))
	ref := onlyRef(t, a, models.ListFilter{})

	dir := t.TempDir()
	src := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(src, []byte("png-bytes"), 0o600))

	out.Reset()
	require.NoError(t, a.Attach(ctx, ref, src))
	line := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(line, "Uploaded "), line)
	key := strings.TrimPrefix(line, "Uploaded ")

	dest := filepath.Join(dir, "copy.png")
	require.NoError(t, a.Fetch(ctx, ref, key, dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(got))

	// a failed download leaves no partial file behind
	missing := filepath.Join(dir, "missing.png")
	assert.Error(t, a.Fetch(ctx, ref, "users/alice/none", missing))
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestSetMode_ChangesAndPrintsOnce(t *testing.T) {
	a, out := newTestApp(t, &fakeRemote{})

	a.setMode(ModeOnline)
	assert.Equal(t, ModeOnline, a.mode())
	assert.Equal(t, "Switched to online mode\n", out.String())

	out.Reset()
	a.setMode(ModeOnline)
	assert.Empty(t, out.String())

	a.setMode(ModeOffline)
	assert.Equal(t, "Switched to offline mode\n", out.String())
}

func TestCheckOnline(t *testing.T) {
	fake := &fakeRemote{}
	a, _ := newTestApp(t, fake)

	a.checkOnline(context.Background())
	assert.Equal(t, ModeOnline, a.mode())

	fake.pingErr = client.ErrUnavailable
	a.checkOnline(context.Background())
	assert.Equal(t, ModeOffline, a.mode())
}

func TestGetStatus(t *testing.T) {
	a := &App{}
	assert.Equal(t, "", a.getStatus())

	a = &App{ownerID: "alice", Mode: ModeOnline}
	assert.Equal(t, "(alice online)", a.getStatus())
}

func TestParseListArgs(t *testing.T) {
	f, err := parseListArgs([]string{"trash", "fav", "folder=work"})
	require.NoError(t, err)
	assert.Equal(t, models.ListFilter{Trash: true, FavoritesOnly: true, FolderID: "work"}, f)

	_, err = parseListArgs([]string{"bogus"})
	assert.Error(t, err)
}
