package rpc

import "github.com/google/uuid"

// SessionHeaderName is the metadata key a client uses to identify its
// realtime session, so its own changes are not echoed back to it.
const SessionHeaderName = "session_id"

// ErrorCodeInvalid marks a change rejected for good. Clients drop it.
const ErrorCodeInvalid = "invalid"

type Operation string

const (
	OperationUpsert Operation = "upsert"
	OperationDelete Operation = "delete"
)

// Note is the wire form of a note.
type Note struct {
	ID        string `json:"id,omitempty"`
	OriginRef string `json:"origin_ref,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	FolderID  string `json:"folder_id,omitempty"`
	Favorite  bool   `json:"favorite"`
	Deleted   bool   `json:"deleted"`
	UpdatedAt string `json:"updated_at"`
	Version   int64  `json:"version,omitempty"`
}

// Change is one outbox entry on the wire.
type Change struct {
	Operation    Operation `json:"operation"`
	Note         Note      `json:"note"`
	KnownVersion int64     `json:"known_version,omitempty"`
}

type SubmitChangesRequest struct {
	Changes []Change `json:"changes"`
}

// ChangeResult answers the change at the same index of the request.
type ChangeResult struct {
	Applied   bool   `json:"applied"`
	Canonical *Note  `json:"canonical,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SubmitChangesResponse struct {
	Results    []ChangeResult `json:"results"`
	ServerTime string         `json:"server_time"`
}

// PullChangesRequest asks for notes after the (Since, SinceID) cursor.
type PullChangesRequest struct {
	Since    string `json:"since"`
	SinceID  string `json:"since_id,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type PullChangesResponse struct {
	Items []Note `json:"items"`
	// PageSize is the size the server applied; a full page means more may follow.
	PageSize  int    `json:"page_size"`
	ServerNow string `json:"server_now"`
}

type PingRequest struct{}

type PingResponse struct {
	Status     string `json:"status"`
	ServerTime string `json:"server_time"`
}

type PresignAttachmentRequest struct {
	NoteID string `json:"note_id"`
	// Key is required for downloads and ignored for uploads.
	Key string `json:"key,omitempty"`
}

type PresignAttachmentResponse struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// DeriveNoteID is the id the server assigns to a note first submitted with
// originRef. Clients use it to recognise their own creates in a pull whose
// push response never arrived.
func DeriveNoteID(ownerID, originRef string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("notesync:"+ownerID+"/"+originRef)).String()
}
