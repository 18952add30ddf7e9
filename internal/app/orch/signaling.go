package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceClient/internal/app/sdpfix"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
)

var errMediaFailed = errors.New("media connection failed")

func (s *Session) signalingLive() bool {
	switch s.phase {
	case domain.PhaseAwaitingTransportOpen, domain.PhaseNegotiating,
		domain.PhaseEstablished, domain.PhaseRenegotiating:
		return true
	}
	return false
}

// onSignalMessage handles one envelope, in arrival order.
func (s *Session) onSignalMessage(f core.Frame) {
	if !s.signalingLive() {
		return
	}
	env, err := core.DecodeEnvelope(f)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed envelope")
		return
	}

	// An error field overrides whatever else the envelope says.
	if msg, ok := env.ServerError(); ok {
		s.onServerError(msg)
		return
	}

	switch env.Type {
	case core.EnvelopeAnswer:
		s.onAnswer(env.SDP)
	case core.EnvelopeOffer:
		s.onServerOffer(env.SDP)
	case core.EnvelopeCandidate:
		s.onRemoteCandidate(env.ICECandidate())
	case core.EnvelopeMode:
		s.notify.remoteMode(env.IsActive())
	case core.EnvelopeEndOfCandidates, core.EnvelopePong:
	default:
		s.log.Debug().Str("type", string(env.Type)).Msg("unknown envelope")
	}
}

func (s *Session) onServerError(msg string) {
	rejected := &ServerRejectedError{Message: msg}
	if s.pending != nil {
		s.fail(rejected)
		return
	}
	s.terminate(rejected)
}

func (s *Session) onAnswer(sdp string) {
	if s.peer == nil {
		return
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: s.repairBundle(sdp)}
	if err := s.peer.SetRemoteDescription(desc); err != nil {
		if s.pending != nil {
			s.fail(fmt.Errorf("%w: apply answer: %w", ErrNegotiation, err))
			return
		}
		s.log.Warn().Err(err).Msg("answer not applied")
		return
	}
	s.setPhase(domain.PhaseEstablished)
	if s.pending != nil {
		s.log.Info().Msg("answer applied, session established")
		s.resolve(nil)
	}
}

// repairBundle makes sure a remote description carries a bundle group.
func (s *Session) repairBundle(sdp string) string {
	if sdpfix.HasBundle(sdp) {
		return sdp
	}
	fixed := sdpfix.EnsureBundle(sdp)
	if fixed != sdp {
		s.log.Debug().Msg("bundle group synthesized")
	}
	return fixed
}

// onServerOffer answers a server initiated renegotiation. It never settles
// the pending handshake; failures are logged.
func (s *Session) onServerOffer(sdp string) {
	if s.peer == nil {
		return
	}
	prev := s.phase
	if prev == domain.PhaseEstablished {
		s.setPhase(domain.PhaseRenegotiating)
	}
	if err := s.renegotiate(sdp); err != nil {
		s.log.Warn().Err(err).Msg("renegotiation failed")
	} else {
		s.log.Info().Msg("renegotiated")
	}
	if prev == domain.PhaseEstablished {
		s.setPhase(domain.PhaseEstablished)
	}
}

func (s *Session) renegotiate(sdp string) error {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: s.repairBundle(sdp)}
	if err := s.peer.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("apply offer: %w", err)
	}
	answer, err := s.peer.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if s.opts.ForcePassiveSetup {
		answer.SDP = sdpfix.ForcePassiveSetup(answer.SDP)
	}
	if err := s.peer.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	if err := s.send(core.AnswerEnvelope(answer.SDP)); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	// Mode is not part of the description; newcomers learn it from here.
	s.announce()
	return nil
}

func (s *Session) onRemoteCandidate(c webrtc.ICECandidateInit) {
	if s.peer == nil || !s.peer.HasRemoteDescription() {
		s.log.Debug().Msg("candidate before remote description, dropped")
		return
	}
	if err := s.peer.AddICECandidate(c); err != nil {
		s.log.Debug().Err(err).Msg("candidate not applied")
	}
}

func (s *Session) onLocalCandidate(c *webrtc.ICECandidateInit) {
	if s.signal == nil {
		return
	}
	if err := s.send(core.CandidateEnvelope(c)); err != nil {
		s.log.Debug().Err(err).Msg("candidate not sent")
	}
}

func (s *Session) onSignalClosed(err error) {
	if s.pending != nil {
		if err == nil {
			s.fail(ErrTransportClosed)
		} else {
			s.fail(fmt.Errorf("%w: %w", ErrTransportError, err))
		}
		return
	}
	if s.phase == domain.PhaseEstablished {
		s.terminate(err)
	}
}

// terminate ends an established session the caller did not ask to end.
func (s *Session) terminate(reason error) {
	s.log.Warn().AnErr("reason", reason).Msg("session ended")
	s.teardown()
	s.setPhase(domain.PhaseClosed)
	s.notify.disconnect(reason)
}
