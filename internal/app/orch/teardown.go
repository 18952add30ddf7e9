package orch

import (
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/sourcegraph/conc/panics"
)

// disconnect is the caller-requested end: a pending handshake is rejected
// first, then everything is released. No disconnect notification fires.
func (s *Session) disconnect() {
	s.resolve(ErrClosedDuringHandshake)
	if s.phase == domain.PhaseIdle {
		return
	}
	s.teardown()
	s.setPhase(domain.PhaseClosed)
	s.log.Info().Msg("disconnected")
}

// teardown releases every owned resource. It is safe to call in any phase
// and more than once. Reactions are detached before anything is closed, so
// nothing released here can re-enter the session.
func (s *Session) teardown() {
	s.gen++
	if s.video.unsubscribe != nil {
		s.video.unsubscribe()
		s.video.unsubscribe = nil
	}
	if s.peer != nil {
		s.guard("detach peer", s.peer.Detach)
	}
	if s.cancelJoin != nil {
		s.cancelJoin()
		s.cancelJoin = nil
	}

	if s.signal != nil {
		s.guard("close transport", s.signal.Close)
		s.signal = nil
	}
	if s.peer != nil {
		peer := s.peer
		s.guard("close peer", func() {
			if err := peer.Close(); err != nil {
				s.log.Warn().Err(err).Msg("peer close")
			}
		})
		s.peer = nil
	}
	for _, t := range []struct {
		name string
		stop func()
	}{
		{"stop video", stopFunc(s.video.live)},
		{"stop placeholder", stopFunc(s.video.placeholder)},
		{"stop audio", stopFunc(s.audio)},
	} {
		s.guard(t.name, t.stop)
	}

	s.audio = nil
	s.audioTx = nil
	s.video = videoState{}
	s.setMode(domain.VideoDisabled)
}

func stopFunc(t interface{ Stop() }) func() {
	return func() {
		if t != nil {
			t.Stop()
		}
	}
}

// guard runs one release step; a panic is logged and does not stop the rest.
func (s *Session) guard(step string, fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		s.log.Error().Str("step", step).Str("panic", r.String()).Msg("teardown step failed")
	}
}
