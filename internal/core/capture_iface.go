package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// LocalTrack is a captured (or synthetic) source feeding one outbound track.
type LocalTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	// TrackLocal is what the media engine binds to a sender.
	TrackLocal() webrtc.TrackLocal
	// OnEnded subscribes to a spontaneous end of the source (device revoked,
	// capture stopped externally). The returned func unsubscribes.
	// Stop never fires the subscribers.
	OnEnded(func(error)) (unsubscribe func())
	Stop()
}

// BitrateSetter is implemented by tracks whose encoder accepts a target bitrate.
type BitrateSetter interface {
	SetBitrate(bps int) error
}

type MediaCapture interface {
	AcquireAudio(ctx context.Context) (LocalTrack, error)
	AcquireCamera(ctx context.Context) (LocalTrack, error)
	AcquireScreen(ctx context.Context) (LocalTrack, error)
	// Placeholder returns the low-cost video source used while video is off.
	Placeholder(ctx context.Context) (LocalTrack, error)
}
