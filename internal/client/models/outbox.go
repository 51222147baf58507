package models

type Operation string

const (
	OperationUpsert Operation = "UPSERT"
	OperationDelete Operation = "DELETE"
)

// OutboxEntry is one pending change. There is at most one entry per
// (OwnerID, LocalRef); later mutations coalesce into it and bump Revision.
type OutboxEntry struct {
	ID           int64
	OwnerID      string
	LocalRef     string
	Operation    Operation
	RemoteRef    string
	AttemptCount int
	// Sent is set once the entry has been submitted. A sent change may be
	// on the server even when no answer arrived.
	Sent         bool
	LastError    string
	CreatedAt    string
	Revision     int64
}

// Transmitted reports whether the server may already hold the note behind e.
func (e *OutboxEntry) Transmitted() bool {
	return e.RemoteRef != "" || e.Sent || e.AttemptCount > 0
}
