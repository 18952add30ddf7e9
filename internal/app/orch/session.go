// Package orch drives one client media session: the signaling handshake,
// server-initiated renegotiation, the outbound video mode and teardown.
//
// All session state is owned by a single goroutine. Public methods and adapter
// callbacks post events to it; adapter callbacks are tagged with the
// generation they were registered under, so events from a torn down
// transport or engine are dropped.
package orch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/rs/zerolog"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	eventBuffer             = 64
)

type Options struct {
	HandshakeTimeout time.Duration
	// ForcePassiveSetup rewrites a=setup:active to passive in answers to
	// server offers.
	ForcePassiveSetup  bool
	MaxVideoBitrateBPS int
	VideoCodecs        []string
}

func DefaultOptions() Options {
	return Options{
		HandshakeTimeout:   DefaultHandshakeTimeout,
		ForcePassiveSetup:  true,
		MaxVideoBitrateBPS: 3000 * 1000,
	}
}

// Session is the client side of one signaling + media session. It may be
// joined again after a failure or Disconnect; Close ends it for good.
type Session struct {
	dialer  core.SignalDialer
	engine  core.MediaEngine
	capture core.MediaCapture
	notify  Notifications
	opts    Options
	base    zerolog.Logger

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	phaseView atomic.Int32
	modeView  atomic.Int32

	// owned by the loop goroutine
	gen        uint64
	log        zerolog.Logger
	phase      domain.Phase
	token      string
	address    string
	cancelJoin context.CancelFunc
	pending    *pendingHandshake
	signal     core.SignalConnection
	peer       core.PeerSession
	audio      core.LocalTrack
	audioTx    core.TrackSender
	video      videoState
}

func NewSession(
	dialer core.SignalDialer,
	engine core.MediaEngine,
	capture core.MediaCapture,
	notify Notifications,
	opts Options,
	logger zerolog.Logger,
) *Session {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	base := logger.With().Str("module", "orch").Logger().Hook(logHook{fn: notify.OnLog})
	s := &Session{
		dialer:  dialer,
		engine:  engine,
		capture: capture,
		notify:  notify,
		opts:    opts,
		base:    base,
		events:  make(chan event, eventBuffer),
		done:    make(chan struct{}),
		log:     base,
	}
	go s.loop()
	return s
}

// Join tears down any previous session, then runs the handshake against
// address. It returns once the server answered or the handshake failed.
// If ctx ends first, the handshake is abandoned and ctx.Err() returned.
func (s *Session) Join(ctx context.Context, address, token string) error {
	if address == "" || token == "" {
		return ErrInvalidArguments
	}
	result := make(chan error, 1)
	if !s.post(joinCmd{address: address, token: token, result: result}) {
		return ErrSessionClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if s.abandon(result) {
			return ctx.Err()
		}
		// The loop settled the handshake before the abandon reached it.
		select {
		case err := <-result:
			return err
		default:
			return ctx.Err()
		}
	case <-s.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

// Disconnect releases everything the session holds. A pending Join fails
// with ErrClosedDuringHandshake.
func (s *Session) Disconnect() {
	_ = s.call(func(reply chan error) event { return disconnectCmd{reply: reply} })
}

func (s *Session) EnableCamera(ctx context.Context) error {
	return s.call(func(reply chan error) event {
		return videoCmd{ctx: ctx, target: domain.VideoCamera, enable: true, reply: reply}
	})
}

func (s *Session) DisableCamera(ctx context.Context) error {
	return s.call(func(reply chan error) event {
		return videoCmd{ctx: ctx, target: domain.VideoCamera, reply: reply}
	})
}

func (s *Session) EnableScreenShare(ctx context.Context) error {
	return s.call(func(reply chan error) event {
		return videoCmd{ctx: ctx, target: domain.VideoScreenShare, enable: true, reply: reply}
	})
}

func (s *Session) DisableScreenShare(ctx context.Context) error {
	return s.call(func(reply chan error) event {
		return videoCmd{ctx: ctx, target: domain.VideoScreenShare, reply: reply}
	})
}

// DebugInfo lists the transceivers of the live media session.
func (s *Session) DebugInfo() domain.DebugInfo {
	reply := make(chan domain.DebugInfo, 1)
	if !s.post(debugCmd{reply: reply}) {
		return domain.DebugInfo{Phase: domain.PhaseClosed.String()}
	}
	select {
	case info := <-reply:
		return info
	case <-s.done:
		return domain.DebugInfo{Phase: domain.PhaseClosed.String()}
	}
}

func (s *Session) Phase() domain.Phase { return domain.Phase(s.phaseView.Load()) }

func (s *Session) VideoMode() domain.VideoMode { return domain.VideoMode(s.modeView.Load()) }

// Close disconnects and stops the session goroutine. Later calls fail with
// ErrSessionClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.post(closeCmd{})
	})
	<-s.done
}

// post hands ev to the loop. It reports false once the loop has exited.
func (s *Session) post(ev event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// abandon drops the join waiting on result. It reports false when that
// join was already settled.
func (s *Session) abandon(result chan error) bool {
	reply := make(chan bool, 1)
	if !s.post(abandonCmd{result: result, reply: reply}) {
		return true
	}
	select {
	case abandoned := <-reply:
		return abandoned
	case <-s.done:
		return true
	}
}

func (s *Session) call(build func(reply chan error) event) error {
	reply := make(chan error, 1)
	if !s.post(build(reply)) {
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) setPhase(p domain.Phase) {
	if s.phase == p {
		return
	}
	s.log.Debug().Str("from", s.phase.String()).Str("to", p.String()).Msg("phase")
	s.phase = p
	s.phaseView.Store(int32(p))
}
