package core

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type EnvelopeType string

const (
	EnvelopeOffer           EnvelopeType = "offer"
	EnvelopeAnswer          EnvelopeType = "answer"
	EnvelopeCandidate       EnvelopeType = "candidate"
	EnvelopeEndOfCandidates EnvelopeType = "endOfCandidates"
	EnvelopeMode            EnvelopeType = "mode"
	EnvelopeError           EnvelopeType = "error"
	EnvelopePong            EnvelopeType = "pong"
)

// Envelope is the signaling wire message. One envelope per transport frame.
type Envelope struct {
	Type          EnvelopeType `json:"type"`
	Token         string       `json:"token,omitempty"`
	SDP           string       `json:"sdp,omitempty"`
	Candidate     string       `json:"candidate,omitempty"`
	SDPMid        *string      `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16      `json:"sdpMLineIndex,omitempty"`
	Active        *bool        `json:"active,omitempty"`
	Error         string       `json:"error,omitempty"`
	Message       string       `json:"message,omitempty"`
}

func OfferEnvelope(token, sdp string) Envelope {
	return Envelope{Type: EnvelopeOffer, Token: token, SDP: sdp}
}

func AnswerEnvelope(sdp string) Envelope {
	return Envelope{Type: EnvelopeAnswer, SDP: sdp}
}

func ModeEnvelope(active bool) Envelope {
	return Envelope{Type: EnvelopeMode, Active: &active}
}

// CandidateEnvelope maps a local candidate. A nil candidate marks the end of gathering.
func CandidateEnvelope(ci *webrtc.ICECandidateInit) Envelope {
	if ci == nil || ci.Candidate == "" {
		return Envelope{Type: EnvelopeEndOfCandidates}
	}
	return Envelope{
		Type:          EnvelopeCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}

// ICECandidate returns the remote candidate carried by a candidate envelope.
func (e Envelope) ICECandidate() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     e.Candidate,
		SDPMid:        e.SDPMid,
		SDPMLineIndex: e.SDPMLineIndex,
	}
}

// ServerError reports whether the envelope is a server-side rejection.
// A non-empty error field wins over any other type.
func (e Envelope) ServerError() (string, bool) {
	if e.Error != "" {
		return e.Error, true
	}
	if e.Type != EnvelopeError {
		return "", false
	}
	if e.Message != "" {
		return e.Message, true
	}
	return "unknown server error", true
}

// IsActive is the activity flag of a mode envelope; absent means false.
func (e Envelope) IsActive() bool {
	return e.Active != nil && *e.Active
}

func (e Envelope) Encode() (Frame, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}
	return b, nil
}

func DecodeEnvelope(f Frame) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
