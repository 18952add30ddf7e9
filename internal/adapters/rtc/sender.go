package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/pion/webrtc/v4"
)

var ErrBitrateUnsupported = errors.New("track does not accept a bitrate cap")

// trackSender wraps the sending side of one transceiver.
type trackSender struct {
	tr *webrtc.RTPTransceiver

	mu    sync.Mutex
	track core.LocalTrack
}

func (s *trackSender) MID() string { return s.tr.Mid() }

func (s *trackSender) ReplaceTrack(t core.LocalTrack) error {
	if err := s.tr.Sender().ReplaceTrack(t.TrackLocal()); err != nil {
		return err
	}
	s.mu.Lock()
	s.track = t
	s.mu.Unlock()
	return nil
}

// SetMaxBitrate caps the encoder feeding this sender. pion does not rate-limit
// senders itself, so the cap is pushed down to the attached track's encoder.
func (s *trackSender) SetMaxBitrate(bps int) error {
	s.mu.Lock()
	t := s.track
	s.mu.Unlock()

	bs, ok := t.(core.BitrateSetter)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBitrateUnsupported, t.ID())
	}
	return bs.SetBitrate(bps)
}

func (s *trackSender) SetCodecPreferences(mimeTypes []string) error {
	if s.tr.Kind() != webrtc.RTPCodecTypeVideo {
		return nil
	}
	return s.tr.SetCodecPreferences(codecsByMime(mimeTypes))
}
