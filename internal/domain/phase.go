package domain

// Phase is the connection phase of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiringMedia
	PhaseAwaitingTransportOpen
	PhaseNegotiating
	PhaseEstablished
	PhaseRenegotiating
	PhaseClosed
)

var phaseNames = [...]string{
	PhaseIdle:                  "idle",
	PhaseAcquiringMedia:        "acquiring_media",
	PhaseAwaitingTransportOpen: "awaiting_transport_open",
	PhaseNegotiating:           "negotiating",
	PhaseEstablished:           "established",
	PhaseRenegotiating:         "renegotiating",
	PhaseClosed:                "closed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
