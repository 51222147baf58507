// Package models defines server-side data models persisted by the
// authoritative replica.
package models

// Note is the canonical, server-held copy of a user's note.
type Note struct {
	// ID is server assigned and unique within OwnerID.
	ID string
	// OwnerID is taken from the authenticated identity, never from a payload.
	OwnerID string

	Title    string
	Body     string
	FolderID string
	Favorite bool

	// Deleted marks a tombstone. Tombstones are kept so deletions replicate
	// and order correctly against concurrent edits.
	Deleted bool

	// UpdatedAt is a canonical timestamp (see package clock).
	UpdatedAt string
	// Version grows by one with every accepted mutation.
	Version int64
}

// Candidate is a proposed mutation submitted by a client.
type Candidate struct {
	// ID is empty for records the client has never seen confirmed.
	ID string
	// OriginRef is the client's local reference for the record. The server
	// derives the record id from it when ID is empty.
	OriginRef string

	Title    string
	Body     string
	FolderID string
	Favorite bool
	Deleted  bool

	UpdatedAt string
	// KnownVersion is the version the client last saw. It is informational
	// only; arbitration uses UpdatedAt alone.
	KnownVersion int64
}

// ChangeKind classifies an applied merge for notification purposes.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Cursor is a position in the (UpdatedAt, ID) ordering of a user's notes.
// Pulls return notes strictly after it.
type Cursor struct {
	UpdatedAt string
	ID        string
}

// After reports whether n sorts strictly after c.
func (c Cursor) After(n *Note) bool {
	if n.UpdatedAt != c.UpdatedAt {
		return n.UpdatedAt > c.UpdatedAt
	}
	return n.ID > c.ID
}

// Clone returns a copy of n that shares no state with it.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}
