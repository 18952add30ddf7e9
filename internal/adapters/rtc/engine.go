package rtc

import (
	"fmt"
	"strings"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/pion/webrtc/v4"
)

type EngineOptions struct {
	ICEServers []webrtc.ICEServer
	// AnswerAsServer makes locally generated answers take the passive DTLS role.
	AnswerAsServer bool
}

var opusCodec = webrtc.RTPCodecParameters{
	RTPCodecCapability: webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	},
	PayloadType: 111,
}

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
	{Type: "transport-cc"},
}

var videoCodecs = []webrtc.RTPCodecParameters{
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, RTCPFeedback: videoFeedback},
		PayloadType:        96,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0", RTCPFeedback: videoFeedback},
		PayloadType:        98,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeH264,
			ClockRate:    90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: videoFeedback,
		},
		PayloadType: 102,
	},
}

// Engine builds pion peer connections sharing one media engine setup.
// It implements core.MediaEngine.
type Engine struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(opusCodec, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}
	for _, c := range videoCodecs {
		if err := m.RegisterCodec(c, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}

	se := webrtc.SettingEngine{}
	if opts.AnswerAsServer {
		if err := se.SetAnsweringDTLSRole(webrtc.DTLSRoleServer); err != nil {
			return nil, fmt.Errorf("answering dtls role: %w", err)
		}
	}

	return &Engine{
		api: webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		cfg: webrtc.Configuration{ICEServers: opts.ICEServers},
	}, nil
}

func (e *Engine) NewPeer(ev core.PeerEvents) (core.PeerSession, error) {
	pc, err := e.api.NewPeerConnection(e.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := newWebRTCConnection(pc, ev)
	c.start()
	return c, nil
}

// codecsByMime returns the registered video codecs ordered by mimeTypes.
// Unknown names are skipped; codecs not named keep their relative order at the end.
func codecsByMime(mimeTypes []string) []webrtc.RTPCodecParameters {
	out := make([]webrtc.RTPCodecParameters, 0, len(videoCodecs))
	used := make(map[int]bool, len(videoCodecs))
	for _, mt := range mimeTypes {
		for i, c := range videoCodecs {
			if !used[i] && strings.EqualFold(c.MimeType, mt) {
				out = append(out, c)
				used[i] = true
			}
		}
	}
	for i, c := range videoCodecs {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}
