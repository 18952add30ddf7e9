package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// WebRTCConnection is the pion-backed core.PeerSession.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	ev       core.PeerEvents
	detached bool
	inbound  map[string]*inboundReader // by track id
}

func newWebRTCConnection(pc *webrtc.PeerConnection, ev core.PeerEvents) *WebRTCConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebRTCConnection{
		pc:      pc,
		ctx:     ctx,
		cancel:  cancel,
		ev:      ev,
		inbound: make(map[string]*inboundReader),
	}
}

func (c *WebRTCConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			if ev, ok := c.events(); ok && ev.OnClosed != nil {
				ev.OnClosed()
			}
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		ev, ok := c.events()
		if !ok || ev.OnICECandidate == nil {
			return
		}
		if cand == nil {
			ev.OnICECandidate(nil)
			return
		}
		ci := cand.ToJSON()
		ev.OnICECandidate(&ci)
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.startInbound(track)
	})
}

// events returns the current reactions unless the owner detached them.
func (c *WebRTCConnection) events() (core.PeerEvents, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ev, !c.detached
}

func (c *WebRTCConnection) AddTrack(t core.LocalTrack) (core.TrackSender, error) {
	tr, err := c.pc.AddTransceiverFromTrack(t.TrackLocal(), webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return nil, err
	}
	return &trackSender{tr: tr, track: t}, nil
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *WebRTCConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *WebRTCConnection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) Transceivers() []domain.TransceiverInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	trs := c.pc.GetTransceivers()
	out := make([]domain.TransceiverInfo, 0, len(trs))
	for _, tr := range trs {
		info := domain.TransceiverInfo{
			MID:       tr.Mid(),
			Kind:      tr.Kind().String(),
			Direction: tr.Direction().String(),
		}
		if s := tr.Sender(); s != nil && s.Track() != nil {
			info.Sending = true
			info.TrackID = s.Track().ID()
		}
		if r := tr.Receiver(); r != nil && r.Track() != nil {
			info.Receiving = true
			if !info.Sending {
				info.TrackID = r.Track().ID()
			}
			if in, ok := c.inbound[r.Track().ID()]; ok {
				info.Packets = in.Packets()
			}
		}
		out = append(out, info)
	}
	return out
}

func (c *WebRTCConnection) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
	c.ev = core.PeerEvents{}
}

func (c *WebRTCConnection) Close() error {
	c.cancel()
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Msg("closed")
	return nil
}
