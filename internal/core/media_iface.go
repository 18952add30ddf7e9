package core

import (
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaEngine creates negotiation sessions. One engine serves many sessions.
type MediaEngine interface {
	NewPeer(ev PeerEvents) (PeerSession, error)
}

// PeerEvents are the engine reactions the orchestrator subscribes to.
// A nil candidate in OnICECandidate means gathering finished.
type PeerEvents struct {
	OnICECandidate func(*webrtc.ICECandidateInit)
	OnTrack        func(domain.RemoteTrack)
	OnTrackEnded   func(domain.RemoteTrack)
	OnClosed       func()
}

type PeerSession interface {
	// AddTrack attaches a local track on a new send-only transceiver.
	AddTrack(LocalTrack) (TrackSender, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// HasRemoteDescription reports whether a remote description was applied.
	HasRemoteDescription() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	Transceivers() []domain.TransceiverInfo
	// Detach drops every registered reaction. Close after Detach is silent.
	Detach()
	Close() error
}

// TrackSender is the outbound half of a transceiver.
type TrackSender interface {
	MID() string
	// ReplaceTrack swaps the attached track without renegotiation.
	ReplaceTrack(LocalTrack) error
	SetMaxBitrate(bps int) error
	SetCodecPreferences(mimeTypes []string) error
}
