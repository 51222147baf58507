package models

import "github.com/dmitrijs2005/notesync/internal/clock"

// Watermark is the pull cursor: every server change up to and including
// (UpdatedAt, ID) has been applied locally.
type Watermark struct {
	UpdatedAt string `json:"updated_at"`
	ID        string `json:"id,omitempty"`
}

// EpochWatermark is the cursor of a replica that has never pulled.
func EpochWatermark() Watermark {
	return Watermark{UpdatedAt: clock.Epoch}
}
