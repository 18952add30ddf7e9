package rtc

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// rtpSource is the part of *webrtc.TrackRemote an inbound reader needs.
type rtpSource interface {
	ReadRTP() (*rtp.Packet, error)
}

// inboundReader drains one remote track. The end of the track is only
// observable through a read error, so the reader reports it.
type inboundReader struct {
	info    domain.RemoteTrack
	src     rtpSource
	packets atomic.Uint64
}

func (r *inboundReader) Packets() uint64 { return r.packets.Load() }

// loop reads RTP packets from the remote track until it ends or ctx is done.
func (r *inboundReader) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("inbound ctx done")
			return
		default:
		}
		if _, err := r.src.ReadRTP(); err != nil {
			logger.Info().Err(err).Msg("inbound track ended")
			return
		}
		r.packets.Add(1)
	}
}

type remoteTrackReader struct{ track *webrtc.TrackRemote }

func (t remoteTrackReader) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	return pkt, err
}

func (c *WebRTCConnection) startInbound(track *webrtc.TrackRemote) {
	info := domain.RemoteTrack{
		ID:       track.ID(),
		StreamID: track.StreamID(),
		Kind:     track.Kind().String(),
		MimeType: track.Codec().MimeType,
	}
	c.runInbound(info, remoteTrackReader{track: track})
}

func (c *WebRTCConnection) runInbound(info domain.RemoteTrack, src rtpSource) {
	reader := &inboundReader{info: info, src: src}

	c.mu.Lock()
	c.inbound[info.ID] = reader
	c.mu.Unlock()

	logger := log.With().
		Str("module", "webrtc").
		Str("track_id", info.ID).
		Str("kind", info.Kind).
		Logger()

	if ev, ok := c.events(); ok && ev.OnTrack != nil {
		ev.OnTrack(info)
	}

	go func() {
		reader.loop(c.ctx, &logger)

		c.mu.Lock()
		delete(c.inbound, info.ID)
		c.mu.Unlock()

		if ev, ok := c.events(); ok && ev.OnTrackEnded != nil {
			ev.OnTrackEnded(info)
		}
	}()
}
