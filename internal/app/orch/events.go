package orch

import (
	"context"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
)

type event any

// caller commands
type (
	joinCmd struct {
		address string
		token   string
		result  chan error
	}
	abandonCmd struct {
		result chan error
		reply  chan bool
	}
	disconnectCmd struct {
		reply chan error
	}
	videoCmd struct {
		ctx    context.Context
		target domain.VideoMode
		enable bool
		reply  chan error
	}
	debugCmd struct {
		reply chan domain.DebugInfo
	}
	closeCmd struct{}
)

// adapter reactions, tagged with the generation they belong to
type (
	mediaAcquired struct {
		gen         uint64
		audio       core.LocalTrack
		placeholder core.LocalTrack
		err         error
	}
	dialed struct {
		gen  uint64
		conn core.SignalConnection
		err  error
	}
	signalMessage struct {
		gen   uint64
		frame core.Frame
	}
	signalClosed struct {
		gen uint64
		err error
	}
	deadlineFired struct {
		gen uint64
	}
	localCandidate struct {
		gen  uint64
		cand *webrtc.ICECandidateInit
	}
	remoteTrack struct {
		gen   uint64
		track domain.RemoteTrack
		ended bool
	}
	peerClosed struct {
		gen uint64
	}
	videoEnded struct {
		gen   uint64
		track core.LocalTrack
		err   error
	}
)

func (s *Session) loop() {
	defer close(s.done)
	for ev := range s.events {
		if s.dispatch(ev) {
			return
		}
	}
}

// dispatch runs one reaction to completion. It reports whether the loop must stop.
func (s *Session) dispatch(ev event) bool {
	switch e := ev.(type) {
	case joinCmd:
		s.handleJoin(e)
	case abandonCmd:
		abandoned := s.pending != nil && s.pending.result == e.result
		if abandoned {
			s.disconnect()
		}
		e.reply <- abandoned
	case disconnectCmd:
		s.disconnect()
		e.reply <- nil
	case videoCmd:
		e.reply <- s.handleVideo(e)
	case debugCmd:
		e.reply <- s.debugInfo()
	case closeCmd:
		s.disconnect()
		s.log.Info().Msg("session closed")
		return true

	case mediaAcquired:
		s.onMediaAcquired(e)
	case dialed:
		s.onDialed(e)
	case signalMessage:
		if e.gen == s.gen {
			s.onSignalMessage(e.frame)
		}
	case signalClosed:
		if e.gen == s.gen {
			s.onSignalClosed(e.err)
		}
	case deadlineFired:
		if e.gen == s.gen && s.pending != nil {
			s.fail(ErrHandshakeTimeout)
		}
	case localCandidate:
		if e.gen == s.gen {
			s.onLocalCandidate(e.cand)
		}
	case remoteTrack:
		if e.gen != s.gen {
			break
		}
		if e.ended {
			s.log.Info().Str("track_id", e.track.ID).Msg("remote track ended")
			s.notify.trackEnded(e.track)
		} else {
			s.log.Info().Str("track_id", e.track.ID).Str("kind", e.track.Kind).Msg("remote track")
			s.notify.track(e.track)
		}
	case peerClosed:
		if e.gen == s.gen {
			s.onPeerClosed()
		}
	case videoEnded:
		if e.gen == s.gen {
			s.onVideoEnded(e.track, e.err)
		}
	}
	return false
}
