package domain

// TransceiverInfo is a read-only view of one engine transceiver.
type TransceiverInfo struct {
	MID       string `json:"mid"`
	Kind      string `json:"kind"`
	Direction string `json:"direction"`
	Sending   bool   `json:"-"`
	Receiving bool   `json:"-"`
	TrackID   string `json:"track_id,omitempty"`
	Packets   uint64 `json:"-"`
}

// RemoteTrack identifies an inbound track.
type RemoteTrack struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
	Kind     string `json:"kind"`
	MimeType string `json:"mime_type,omitempty"`
}

type SendingInfo struct {
	MID  string `json:"mid"`
	Kind string `json:"kind"`
	Mode string `json:"mode"`
}

type ReceivingInfo struct {
	MID     string `json:"mid"`
	Kind    string `json:"kind"`
	TrackID string `json:"track_id,omitempty"`
	Packets uint64 `json:"packets"`
}

// DebugInfo lists the active transceivers of a session.
type DebugInfo struct {
	Phase     string          `json:"phase"`
	Sending   []SendingInfo   `json:"sending"`
	Receiving []ReceivingInfo `json:"receiving"`
}
