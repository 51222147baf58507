package models

import "time"

// AttachmentTicket lets a client move an attachment blob to or from object
// storage directly, using a short-lived presigned URL.
type AttachmentTicket struct {
	NoteID    string
	Key       string
	URL       string
	ExpiresAt time.Time
}
