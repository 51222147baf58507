package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/outbox"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/keylock"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient answers SubmitChanges with submitFn and PullChanges with pullFn,
// or an empty page when pullFn is nil.
type fakeClient struct {
	client.Client

	mu       sync.Mutex
	submits  [][]rpc.Change
	submitFn func(changes []rpc.Change) (*rpc.SubmitChangesResponse, error)
	pullErr  error
	pullFn   func(since models.Watermark, pageSize int) (*rpc.PullChangesResponse, error)
	pulls    atomic.Int32
}

func (f *fakeClient) SubmitChanges(ctx context.Context, changes []rpc.Change) (*rpc.SubmitChangesResponse, error) {
	f.mu.Lock()
	f.submits = append(f.submits, changes)
	f.mu.Unlock()
	return f.submitFn(changes)
}

func (f *fakeClient) PullChanges(ctx context.Context, since models.Watermark, pageSize int) (*rpc.PullChangesResponse, error) {
	f.pulls.Add(1)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if f.pullFn != nil {
		return f.pullFn(since, pageSize)
	}
	return &rpc.PullChangesResponse{Items: []rpc.Note{}, PageSize: pageSize, ServerNow: clock.Epoch}, nil
}

func fail(err error) func([]rpc.Change) (*rpc.SubmitChangesResponse, error) {
	return func([]rpc.Change) (*rpc.SubmitChangesResponse, error) { return nil, err }
}

func answer(res rpc.ChangeResult) func([]rpc.Change) (*rpc.SubmitChangesResponse, error) {
	return func(changes []rpc.Change) (*rpc.SubmitChangesResponse, error) {
		out := make([]rpc.ChangeResult, len(changes))
		for i := range out {
			out[i] = res
		}
		return &rpc.SubmitChangesResponse{Results: out, ServerTime: clock.Epoch}, nil
	}
}

func newFixture(t *testing.T, fake *fakeClient, opts ...Option) (services.NoteService, *Session, *outbox.Outbox) {
	t.Helper()
	db := openDB(t)
	oracle := clock.NewOracleWithSource(func() time.Time { return t0 })
	locks := keylock.New()
	l := logging.NewNopLogger()
	opts = append([]Option{WithRetry(time.Millisecond, 2)}, opts...)
	return services.NewNoteService(db, "alice", oracle, locks, l),
		NewSession(db, fake, "alice", oracle, locks, l, opts...),
		outbox.New(db)
}

func TestPushTransportFailureKeepsEntries(t *testing.T) {
	fake := &fakeClient{submitFn: fail(client.ErrUnavailable)}
	notes, s, ob := newFixture(t, fake)
	ctx := context.Background()

	n, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)

	_, err = s.Push(ctx)
	assert.ErrorIs(t, err, client.ErrUnavailable)

	e, err := ob.Pending(ctx, "alice", n.LocalRef)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.AttemptCount)
	assert.Equal(t, "server unavailable", e.LastError)
}

func TestPushUnauthorizedDoesNotCountAttempts(t *testing.T) {
	fake := &fakeClient{submitFn: fail(client.ErrUnauthorized)}
	notes, s, ob := newFixture(t, fake)
	ctx := context.Background()

	n, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)

	_, err = s.Push(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	e, err := ob.Pending(ctx, "alice", n.LocalRef)
	require.NoError(t, err)
	assert.Zero(t, e.AttemptCount)
}

func TestPushRejectedIsDiscarded(t *testing.T) {
	fake := &fakeClient{submitFn: answer(rpc.ChangeResult{ErrorCode: rpc.ErrorCodeInvalid, Error: "title too long"})}
	notes, s, ob := newFixture(t, fake)
	ctx := context.Background()

	_, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)

	rep, err := s.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rejected)

	n, err := ob.PendingCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPushStalledEntriesAreStillSent(t *testing.T) {
	fake := &fakeClient{submitFn: fail(client.ErrUnavailable)}
	notes, s, ob := newFixture(t, fake, WithMaxAttempts(2))
	ctx := context.Background()

	n, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = s.Push(ctx)
		require.Error(t, err)
	}

	st, err := s.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st.Stalled, 1)
	assert.Equal(t, n.LocalRef, st.Stalled[0].LocalRef)

	fake.submitFn = answer(rpc.ChangeResult{Applied: true, Canonical: &rpc.Note{ID: "r1", UpdatedAt: n.UpdatedAt, Version: 1}})
	rep, err := s.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stalled)
	assert.Equal(t, 1, rep.Applied)
	assert.Len(t, fake.submits, 3)

	pending, err := ob.PendingCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestPushSupersededEntryStaysQueued(t *testing.T) {
	fake := &fakeClient{}
	notes, s, ob := newFixture(t, fake)
	ctx := context.Background()

	n, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)

	title := "edited in flight"
	fake.submitFn = func(changes []rpc.Change) (*rpc.SubmitChangesResponse, error) {
		_, err := notes.Update(ctx, n.LocalRef, services.NoteEdit{Title: &title})
		require.NoError(t, err)
		return answer(rpc.ChangeResult{Applied: true, Canonical: &rpc.Note{ID: "r1", Title: "a", UpdatedAt: changes[0].Note.UpdatedAt, Version: 1}})(changes)
	}

	rep, err := s.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Superseded)

	e, err := ob.Pending(ctx, "alice", n.LocalRef)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "r1", e.RemoteRef)

	got, err := notes.Get(ctx, n.LocalRef)
	require.NoError(t, err)
	assert.Equal(t, "edited in flight", got.Title, "local edit survives")
	assert.Equal(t, "r1", got.RemoteID)
	assert.Equal(t, int64(1), got.Version)
}

func TestPushDeleteWhileCreateInFlight(t *testing.T) {
	tests := []struct {
		name    string
		applied bool
	}{
		{name: "create applied", applied: true},
		{name: "create lost", applied: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeClient{}
			notes, s, ob := newFixture(t, fake)
			ctx := context.Background()

			n, err := notes.Create(ctx, services.NoteInput{Title: "a"})
			require.NoError(t, err)

			fake.submitFn = func(changes []rpc.Change) (*rpc.SubmitChangesResponse, error) {
				_, err := notes.Delete(ctx, n.LocalRef)
				require.NoError(t, err)
				return answer(rpc.ChangeResult{Applied: tt.applied, Canonical: &rpc.Note{ID: "r1", Title: "a", UpdatedAt: changes[0].Note.UpdatedAt, Version: 1}})(changes)
			}

			rep, err := s.Push(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, rep.Superseded)

			e, err := ob.Pending(ctx, "alice", n.LocalRef)
			require.NoError(t, err)
			require.NotNil(t, e, "the delete must stay queued")
			assert.Equal(t, models.OperationDelete, e.Operation)
			assert.Equal(t, "r1", e.RemoteRef)

			got, err := notes.Get(ctx, n.LocalRef)
			require.NoError(t, err)
			assert.True(t, got.Deleted)
			assert.Equal(t, "r1", got.RemoteID)

			var sent []rpc.Change
			fake.submitFn = func(changes []rpc.Change) (*rpc.SubmitChangesResponse, error) {
				sent = changes
				return answer(rpc.ChangeResult{Applied: true, Canonical: &rpc.Note{ID: "r1", Deleted: true, UpdatedAt: changes[0].Note.UpdatedAt, Version: 2}})(changes)
			}
			rep, err = s.Push(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, rep.Applied)
			require.Len(t, sent, 1)
			assert.Equal(t, rpc.OperationDelete, sent[0].Operation)
			assert.Equal(t, "r1", sent[0].Note.ID)
			assert.True(t, sent[0].Note.Deleted)
			assert.Equal(t, int64(1), sent[0].KnownVersion)

			pending, err := ob.PendingCount(ctx, "alice")
			require.NoError(t, err)
			assert.Zero(t, pending)
		})
	}
}

func TestPushAnswerForVanishedEntryRequeues(t *testing.T) {
	fake := &fakeClient{}
	notes, s, ob := newFixture(t, fake)
	ctx := context.Background()

	n, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)

	fake.submitFn = func(changes []rpc.Change) (*rpc.SubmitChangesResponse, error) {
		// the sent entry disappears and a fresh, unsent one replaces it
		e, err := ob.Pending(ctx, "alice", n.LocalRef)
		require.NoError(t, err)
		require.NoError(t, ob.MarkDiscarded(ctx, e))
		_, err = notes.Delete(ctx, n.LocalRef)
		require.NoError(t, err)
		return answer(rpc.ChangeResult{Applied: true, Canonical: &rpc.Note{ID: "r1", Title: "a", UpdatedAt: changes[0].Note.UpdatedAt, Version: 1}})(changes)
	}

	rep, err := s.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Superseded)

	e, err := ob.Pending(ctx, "alice", n.LocalRef)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, models.OperationDelete, e.Operation)
	assert.Equal(t, "r1", e.RemoteRef)
}

func TestPullFailureKeepsLastPageWatermark(t *testing.T) {
	page := []rpc.Note{
		{ID: "r1", Title: "one", UpdatedAt: "2024-03-01T12:00:01.000Z", Version: 1},
		{ID: "r2", Title: "two", UpdatedAt: "2024-03-01T12:00:02.000Z", Version: 1},
	}
	fake := &fakeClient{}
	var seen []models.Watermark
	fake.pullFn = func(since models.Watermark, pageSize int) (*rpc.PullChangesResponse, error) {
		seen = append(seen, since)
		if len(seen) == 1 {
			return &rpc.PullChangesResponse{Items: page, PageSize: 2, ServerNow: clock.Epoch}, nil
		}
		return nil, client.ErrUnavailable
	}
	notes, s, _ := newFixture(t, fake, WithPageSize(2))
	ctx := context.Background()

	rep, err := s.Pull(ctx)
	assert.ErrorIs(t, err, client.ErrUnavailable)
	assert.Equal(t, 2, rep.Applied)

	want := models.Watermark{UpdatedAt: "2024-03-01T12:00:02.000Z", ID: "r2"}
	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, st.Watermark)

	list, err := notes.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2, "the complete page stays applied")

	fake.pullFn = func(since models.Watermark, pageSize int) (*rpc.PullChangesResponse, error) {
		seen = append(seen, since)
		return &rpc.PullChangesResponse{Items: []rpc.Note{}, PageSize: 2, ServerNow: clock.Epoch}, nil
	}
	_, err = s.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Equal(t, want, seen[1], "the failed request started after page one")
	assert.Equal(t, want, seen[2], "the next pull resumes there")
}

func TestPullCancelledMidwayKeepsWatermark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeClient{}
	fake.pullFn = func(since models.Watermark, pageSize int) (*rpc.PullChangesResponse, error) {
		if since.ID == "" {
			return &rpc.PullChangesResponse{Items: []rpc.Note{{ID: "r1", Title: "one", UpdatedAt: "2024-03-01T12:00:01.000Z", Version: 1}}, PageSize: 1, ServerNow: clock.Epoch}, nil
		}
		cancel()
		return nil, context.Canceled
	}
	_, s, _ := newFixture(t, fake, WithPageSize(1))

	_, err := s.Pull(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Watermark{UpdatedAt: "2024-03-01T12:00:01.000Z", ID: "r1"}, st.Watermark)
}

func TestPushCarriesDeleteFlag(t *testing.T) {
	fake := &fakeClient{}
	notes, s, _ := newFixture(t, fake)
	ctx := context.Background()

	n, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)
	fake.submitFn = answer(rpc.ChangeResult{Applied: true, Canonical: &rpc.Note{ID: "r1", UpdatedAt: n.UpdatedAt, Version: 1}})
	_, err = s.Push(ctx)
	require.NoError(t, err)

	_, err = notes.Delete(ctx, n.LocalRef)
	require.NoError(t, err)
	fake.submitFn = answer(rpc.ChangeResult{Applied: true, Canonical: &rpc.Note{ID: "r1", Deleted: true, UpdatedAt: n.UpdatedAt, Version: 2}})
	_, err = s.Push(ctx)
	require.NoError(t, err)

	last := fake.submits[len(fake.submits)-1]
	require.Len(t, last, 1)
	assert.Equal(t, rpc.OperationDelete, last[0].Operation)
	assert.True(t, last[0].Note.Deleted)
	assert.Equal(t, "r1", last[0].Note.ID)
	assert.Equal(t, int64(1), last[0].KnownVersion)
}

func TestSyncOnceSkipsPullAfterFailedPush(t *testing.T) {
	fake := &fakeClient{submitFn: fail(client.ErrUnavailable)}
	notes, s, _ := newFixture(t, fake)
	ctx := context.Background()

	_, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)

	_, err = s.SyncOnce(ctx)
	require.Error(t, err)
	assert.Zero(t, fake.pulls.Load())

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, st.LastError, "server unavailable")
	assert.True(t, st.LastSync.IsZero())
}

func TestRunStopsOnUnauthorized(t *testing.T) {
	fake := &fakeClient{pullErr: client.ErrUnauthorized}
	_, s, _ := newFixture(t, fake)

	err := s.Run(context.Background(), time.Hour)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestRunRetriesUnavailableThenWaits(t *testing.T) {
	fake := &fakeClient{pullErr: client.ErrUnavailable}
	_, s, _ := newFixture(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Hour) }()

	// first attempt plus two retries
	require.Eventually(t, func() bool { return fake.pulls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunSyncsOnTrigger(t *testing.T) {
	fake := &fakeClient{}
	_, s, _ := newFixture(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool { return fake.pulls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Trigger()
	s.Trigger()
	require.Eventually(t, func() bool { return fake.pulls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.LastSync.IsZero())
	assert.Empty(t, st.LastError)
}

func TestPushFailureCauseIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeClient{submitFn: fail(boom)}
	notes, s, _ := newFixture(t, fake)
	ctx := context.Background()

	_, err := notes.Create(ctx, services.NoteInput{Title: "a"})
	require.NoError(t, err)
	_, err = s.Push(ctx)
	assert.ErrorIs(t, err, boom)
}
