// Package notify fans applied merges out to the owner's live sessions.
//
// Delivery is at-most-once and never blocks the merge path: a subscriber
// whose buffer is full misses the event. Pulls converge regardless, so a
// missed event only delays a peer until its next scheduled sync.
package notify

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/merge"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// Event describes one applied change.
type Event struct {
	Kind      models.ChangeKind `json:"kind"`
	RecordID  string            `json:"record_id"`
	OwnerID   string            `json:"owner_id"`
	Version   int64             `json:"version"`
	UpdatedAt string            `json:"updated_at"`
	// Origin is the session that submitted the change, if known.
	Origin string `json:"-"`
}

// Subscription is one session's membership in its owner's group.
type Subscription struct {
	ownerID   string
	sessionID string
	events    chan Event
	hub       *Hub
	once      sync.Once
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) SessionID() string { return s.sessionID }

// Close leaves the group. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.leave(s) })
}

type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}
	buffer int
	logger logging.Logger
}

func NewHub(buffer int, l logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		groups: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: l.With("module", "notify"),
	}
}

// Join adds a session to ownerID's group.
func (h *Hub) Join(ownerID, sessionID string) *Subscription {
	sub := &Subscription{
		ownerID:   ownerID,
		sessionID: sessionID,
		events:    make(chan Event, h.buffer),
		hub:       h,
	}

	h.mu.Lock()
	g, ok := h.groups[ownerID]
	if !ok {
		g = make(map[*Subscription]struct{})
		h.groups[ownerID] = g
	}
	g[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) leave(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g := h.groups[sub.ownerID]
	if _, ok := g[sub]; !ok {
		return
	}
	delete(g, sub)
	if len(g) == 0 {
		delete(h.groups, sub.ownerID)
	}
	close(sub.events)
}

// Publish delivers ev to every session of ev.OwnerID except ev.Origin and
// reports how many sessions received it.
func (h *Hub) Publish(ctx context.Context, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.groups[ev.OwnerID] {
		if ev.Origin != "" && sub.sessionID == ev.Origin {
			continue
		}
		select {
		case sub.events <- ev:
			delivered++
		default:
			h.logger.Warn(ctx, "Subscriber buffer full, dropping event",
				"owner", ev.OwnerID, "session", sub.sessionID, "note", ev.RecordID)
		}
	}
	return delivered
}

// Sessions reports how many sessions ownerID currently has.
func (h *Hub) Sessions(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[ownerID])
}

// OnChangeApplied adapts the hub to merge.ChangeHook.
func (h *Hub) OnChangeApplied(ctx context.Context, ownerID string, res merge.Result) {
	if !res.Applied || res.Canonical == nil {
		return
	}
	h.Publish(ctx, Event{
		Kind:      res.Kind,
		RecordID:  res.Canonical.ID,
		OwnerID:   ownerID,
		Version:   res.Canonical.Version,
		UpdatedAt: res.Canonical.UpdatedAt,
		Origin:    OriginSession(ctx),
	})
}

type ctxKey struct{}

// WithOriginSession tags ctx with the session submitting a change so the
// hub can skip echoing the change back to it.
func WithOriginSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, sessionID)
}

func OriginSession(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}
