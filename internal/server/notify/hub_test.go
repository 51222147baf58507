package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/merge"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(buffer int) *Hub {
	return NewHub(buffer, logging.NewNopLogger())
}

func TestPublish_OnlyOwnerGroup(t *testing.T) {
	h := newHub(4)
	a := h.Join("u1", "s1")
	b := h.Join("u1", "s2")
	stranger := h.Join("u2", "s3")
	defer a.Close()
	defer b.Close()
	defer stranger.Close()

	n := h.Publish(context.Background(), Event{Kind: models.ChangeCreated, RecordID: "n1", OwnerID: "u1"})
	assert.Equal(t, 2, n)

	assert.Equal(t, "n1", (<-a.Events()).RecordID)
	assert.Equal(t, "n1", (<-b.Events()).RecordID)
	assert.Len(t, stranger.Events(), 0)
}

func TestPublish_SkipsOrigin(t *testing.T) {
	h := newHub(4)
	origin := h.Join("u1", "s1")
	peer := h.Join("u1", "s2")

	n := h.Publish(context.Background(), Event{RecordID: "n1", OwnerID: "u1", Origin: "s1"})
	assert.Equal(t, 1, n)
	assert.Len(t, origin.Events(), 0)
	assert.Len(t, peer.Events(), 1)
}

func TestPublish_DropsWhenBufferFull(t *testing.T) {
	h := newHub(1)
	sub := h.Join("u1", "s1")

	assert.Equal(t, 1, h.Publish(context.Background(), Event{RecordID: "n1", OwnerID: "u1"}))
	assert.Equal(t, 0, h.Publish(context.Background(), Event{RecordID: "n2", OwnerID: "u1"}))

	assert.Equal(t, "n1", (<-sub.Events()).RecordID)
}

func TestClose_LeavesGroupAndClosesChannel(t *testing.T) {
	h := newHub(1)
	sub := h.Join("u1", "s1")
	require.Equal(t, 1, h.Sessions("u1"))

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, h.Sessions("u1"))
	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, h.Publish(context.Background(), Event{OwnerID: "u1"}))
}

func TestOnChangeApplied(t *testing.T) {
	h := newHub(4)
	self := h.Join("u1", "s1")
	peer := h.Join("u1", "s2")

	ctx := WithOriginSession(context.Background(), "s1")
	h.OnChangeApplied(ctx, "u1", merge.Result{
		Applied:   true,
		Kind:      models.ChangeDeleted,
		Canonical: &models.Note{ID: "n1", OwnerID: "u1", Version: 3, UpdatedAt: "2024-05-01T10:00:00.000Z", Deleted: true},
	})
	h.OnChangeApplied(ctx, "u1", merge.Result{Applied: false, Canonical: &models.Note{ID: "n2"}})

	require.Len(t, peer.Events(), 1)
	ev := <-peer.Events()
	assert.Equal(t, Event{
		Kind: models.ChangeDeleted, RecordID: "n1", OwnerID: "u1", Version: 3,
		UpdatedAt: "2024-05-01T10:00:00.000Z", Origin: "s1",
	}, ev)
	assert.Len(t, self.Events(), 0)
}

func TestOriginSession(t *testing.T) {
	assert.Equal(t, "", OriginSession(context.Background()))
	assert.Equal(t, "", OriginSession(WithOriginSession(context.Background(), "")))
	assert.Equal(t, "s9", OriginSession(WithOriginSession(context.Background(), "s9")))
}

func TestConcurrentJoinPublishClose(t *testing.T) {
	h := newHub(8)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := h.Join("u1", "s")
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			h.Publish(context.Background(), Event{OwnerID: "u1"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Sessions("u1"))
}
