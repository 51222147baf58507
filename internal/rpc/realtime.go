package rpc

// Realtime message types sent over the notification websocket.
const (
	MessageHello  = "hello"
	MessageChange = "change"
)

// RealtimeMessage is one frame of the notification websocket. Hello frames
// carry ServerTime and SessionID, change frames the remaining fields.
type RealtimeMessage struct {
	Type       string `json:"type"`
	ServerTime string `json:"server_time,omitempty"`
	SessionID  string `json:"session_id,omitempty"`

	Kind      string `json:"kind,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	Version   int64  `json:"version,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
