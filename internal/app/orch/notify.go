package orch

import (
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/rs/zerolog"
)

// Notifications are delivered on the session goroutine. A callback must not
// call back into the Session and wait for it.
type Notifications struct {
	OnLog        func(level zerolog.Level, msg string)
	OnTrack      func(domain.RemoteTrack)
	OnTrackEnded func(domain.RemoteTrack)
	// OnDisconnect fires when an established session ends without the
	// caller asking for it. err is nil for an orderly transport close.
	OnDisconnect func(err error)
	OnRemoteMode func(active bool)
}

func (n Notifications) track(rt domain.RemoteTrack) {
	if n.OnTrack != nil {
		n.OnTrack(rt)
	}
}

func (n Notifications) trackEnded(rt domain.RemoteTrack) {
	if n.OnTrackEnded != nil {
		n.OnTrackEnded(rt)
	}
}

func (n Notifications) disconnect(err error) {
	if n.OnDisconnect != nil {
		n.OnDisconnect(err)
	}
}

func (n Notifications) remoteMode(active bool) {
	if n.OnRemoteMode != nil {
		n.OnRemoteMode(active)
	}
}

// logHook mirrors session log lines to OnLog.
type logHook struct{ fn func(zerolog.Level, string) }

func (h logHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if h.fn != nil && msg != "" {
		h.fn(level, msg)
	}
}
