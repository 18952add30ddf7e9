package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// pendingHandshake is settled exactly once, then dropped.
type pendingHandshake struct {
	result chan error
	timer  *time.Timer
}

func (p *pendingHandshake) settle(err error) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.result <- err
}

// resolve settles the pending handshake, if any, with err.
func (s *Session) resolve(err error) {
	p := s.pending
	if p == nil {
		return
	}
	s.pending = nil
	p.settle(err)
}

func (s *Session) handleJoin(cmd joinCmd) {
	s.disconnect()

	s.gen++
	gen := s.gen
	sid := uuid.NewString()
	s.log = s.base.With().Str("sid", sid).Logger()
	s.token = cmd.token
	s.address = cmd.address
	s.pending = &pendingHandshake{result: cmd.result}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelJoin = cancel

	s.log.Info().Str("address", cmd.address).Msg("joining")
	s.setPhase(domain.PhaseAcquiringMedia)

	go func() {
		ev := mediaAcquired{gen: gen}
		ev.audio, ev.err = s.capture.AcquireAudio(ctx)
		if ev.err == nil {
			ev.placeholder, ev.err = s.capture.Placeholder(ctx)
			if ev.err != nil {
				ev.audio.Stop()
				ev.audio = nil
			}
		}
		if !s.post(ev) {
			stopTracks(ev.audio, ev.placeholder)
		}
	}()
}

func (s *Session) onMediaAcquired(ev mediaAcquired) {
	if ev.gen != s.gen || s.phase != domain.PhaseAcquiringMedia {
		stopTracks(ev.audio, ev.placeholder)
		return
	}
	if ev.err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrMediaAcquisition, ev.err))
		return
	}
	s.audio = ev.audio
	s.video.placeholder = ev.placeholder
	s.log.Info().Str("audio", ev.audio.ID()).Msg("microphone acquired")

	s.setPhase(domain.PhaseAwaitingTransportOpen)
	gen := s.gen
	s.pending.timer = time.AfterFunc(s.opts.HandshakeTimeout, func() {
		s.post(deadlineFired{gen: gen})
	})

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandshakeTimeout)
	prev := s.cancelJoin
	s.cancelJoin = func() {
		cancel()
		prev()
	}
	address := s.address
	go s.dial(ctx, gen, address)
}

// dial opens the transport off the loop. Transport events are held back
// until the dial outcome itself has been posted, so the loop sees them in order.
func (s *Session) dial(ctx context.Context, gen uint64, address string) {
	ready := make(chan struct{})
	ev := core.SignalEvents{
		OnMessage: func(f core.Frame) {
			<-ready
			s.post(signalMessage{gen: gen, frame: f})
		},
		OnClosed: func(err error) {
			<-ready
			s.post(signalClosed{gen: gen, err: err})
		},
	}
	conn, err := s.dialer.Dial(ctx, address, ev)
	if !s.post(dialed{gen: gen, conn: conn, err: err}) && conn != nil {
		conn.Close()
	}
	close(ready)
}

func (s *Session) onDialed(ev dialed) {
	if ev.gen != s.gen || s.phase != domain.PhaseAwaitingTransportOpen {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}
	if ev.err != nil {
		if errors.Is(ev.err, context.DeadlineExceeded) {
			s.fail(fmt.Errorf("%w: %w", ErrHandshakeTimeout, ev.err))
			return
		}
		s.fail(fmt.Errorf("%w: %w", ErrTransportError, ev.err))
		return
	}
	s.signal = ev.conn
	s.log.Info().Msg("transport open")
	s.setPhase(domain.PhaseNegotiating)

	if err := s.offer(); err != nil {
		s.fail(err)
	}
}

// offer builds the media session and sends the initial offer with the token.
func (s *Session) offer() error {
	gen := s.gen
	peer, err := s.engine.NewPeer(core.PeerEvents{
		OnICECandidate: func(c *webrtc.ICECandidateInit) {
			s.post(localCandidate{gen: gen, cand: c})
		},
		OnTrack: func(rt domain.RemoteTrack) {
			s.post(remoteTrack{gen: gen, track: rt})
		},
		OnTrackEnded: func(rt domain.RemoteTrack) {
			s.post(remoteTrack{gen: gen, track: rt, ended: true})
		},
		OnClosed: func() {
			s.post(peerClosed{gen: gen})
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiation, err)
	}
	s.peer = peer

	if s.audioTx, err = peer.AddTrack(s.audio); err != nil {
		return fmt.Errorf("%w: add audio: %w", ErrNegotiation, err)
	}
	if s.video.sender, err = peer.AddTrack(s.video.placeholder); err != nil {
		return fmt.Errorf("%w: add video: %w", ErrNegotiation, err)
	}
	if len(s.opts.VideoCodecs) > 0 {
		if err := s.video.sender.SetCodecPreferences(s.opts.VideoCodecs); err != nil {
			s.log.Warn().Err(err).Strs("codecs", s.opts.VideoCodecs).Msg("codec preference not applied")
		}
	}
	s.applyBitrate()

	offer, err := peer.CreateOffer()
	if err != nil {
		return fmt.Errorf("%w: create offer: %w", ErrNegotiation, err)
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local offer: %w", ErrNegotiation, err)
	}
	if err := s.send(core.OfferEnvelope(s.token, offer.SDP)); err != nil {
		return fmt.Errorf("%w: send offer: %w", ErrTransportError, err)
	}
	s.log.Info().Msg("offer sent")
	return nil
}

// fail ends a handshake: everything is released before the caller hears about it.
func (s *Session) fail(err error) {
	s.log.Warn().Err(err).Msg("join failed")
	p := s.pending
	s.pending = nil
	s.teardown()
	s.setPhase(domain.PhaseClosed)
	if p != nil {
		p.settle(err)
	}
}

func (s *Session) onPeerClosed() {
	if s.pending != nil {
		s.fail(fmt.Errorf("%w: media connection failed", ErrNegotiation))
		return
	}
	if s.phase == domain.PhaseEstablished {
		s.terminate(errMediaFailed)
	}
}

func stopTracks(tracks ...core.LocalTrack) {
	for _, t := range tracks {
		if t != nil {
			t.Stop()
		}
	}
}

func (s *Session) send(env core.Envelope) error {
	if s.signal == nil {
		return ErrNotConnected
	}
	f, err := env.Encode()
	if err != nil {
		return err
	}
	return s.signal.TrySend(f)
}
