// Package capture acquires local media through pion/mediadevices and exposes
// each source as a core.LocalTrack.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoTrack            = errors.New("capture returned no track")
	ErrBitrateUnsupported = errors.New("encoder does not support bitrate control")
)

type Source struct {
	Width     int
	Height    int
	FrameRate float64
}

type Options struct {
	// VideoCodecs is the preferred order; the first one the vpx encoder
	// supports is used, VP8 otherwise.
	VideoCodecs  []string
	VideoBitrate int // bit/s, initial encoder target
	AudioBitrate int // bit/s

	Camera      Source
	Screen      Source
	Placeholder Source
}

// Capture implements core.MediaCapture.
type Capture struct {
	opts      Options
	videoMime string
	selector  *mediadevices.CodecSelector
}

func New(opts Options) (*Capture, error) {
	videoMime, videoEnc, err := videoEncoder(opts)
	if err != nil {
		return nil, err
	}

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	if opts.AudioBitrate > 0 {
		opusParams.BitRate = opts.AudioBitrate
	}
	opusParams.Latency = opus.Latency20ms

	c := &Capture{
		opts:      opts,
		videoMime: videoMime,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(videoEnc),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}
	log.Info().
		Str("module", "capture").
		Str("video_codec", videoMime).
		Int("video_bitrate", opts.VideoBitrate).
		Msg("capture ready")
	return c, nil
}

func videoEncoder(opts Options) (string, codec.VideoEncoderBuilder, error) {
	for _, mt := range opts.VideoCodecs {
		switch {
		case strings.EqualFold(mt, webrtc.MimeTypeVP8):
			params, err := vpx.NewVP8Params()
			if err != nil {
				return "", nil, fmt.Errorf("vp8 params: %w", err)
			}
			tuneVPX(&params.Params, opts.VideoBitrate)
			return webrtc.MimeTypeVP8, &params, nil
		case strings.EqualFold(mt, webrtc.MimeTypeVP9):
			params, err := vpx.NewVP9Params()
			if err != nil {
				return "", nil, fmt.Errorf("vp9 params: %w", err)
			}
			tuneVPX(&params.Params, opts.VideoBitrate)
			return webrtc.MimeTypeVP9, &params, nil
		default:
			log.Warn().Str("module", "capture").Str("codec", mt).Msg("no local encoder, skipping")
		}
	}
	return videoEncoder(Options{VideoCodecs: []string{webrtc.MimeTypeVP8}, VideoBitrate: opts.VideoBitrate})
}

func tuneVPX(p *vpx.Params, bitrate int) {
	if bitrate > 0 {
		p.BitRate = bitrate
	}
	p.RateControlEndUsage = vpx.RateControlVBR
}

func (c *Capture) AcquireAudio(ctx context.Context) (core.LocalTrack, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(mc *mediadevices.MediaTrackConstraints) {},
		Codec: c.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("microphone: %w", err)
	}
	return c.wrapFirst(ctx, "microphone", stream.GetAudioTracks(), webrtc.MimeTypeOpus)
}

func (c *Capture) AcquireCamera(ctx context.Context) (core.LocalTrack, error) {
	src := c.opts.Camera
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			applySource(mc, src)
		},
		Codec: c.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	return c.wrapFirst(ctx, "camera", stream.GetVideoTracks(), c.videoMime)
}

func (c *Capture) AcquireScreen(ctx context.Context) (core.LocalTrack, error) {
	src := c.opts.Screen
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			applySource(mc, src)
		},
		Codec: c.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("screen: %w", err)
	}
	return c.wrapFirst(ctx, "screen", stream.GetVideoTracks(), c.videoMime)
}

// Placeholder returns a black, low frame rate source.
func (c *Capture) Placeholder(ctx context.Context) (core.LocalTrack, error) {
	src := newBlankSource(c.opts.Placeholder)
	mt := mediadevices.NewVideoTrack(src, c.selector)
	return newTrack(ctx, "placeholder", mt, c.videoMime)
}

func (c *Capture) wrapFirst(ctx context.Context, label string, tracks []mediadevices.Track, mime string) (core.LocalTrack, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%s: %w", label, ErrNoTrack)
	}
	for _, extra := range tracks[1:] {
		_ = extra.Close()
	}
	return newTrack(ctx, label, tracks[0], mime)
}

func applySource(mc *mediadevices.MediaTrackConstraints, src Source) {
	if src.Width > 0 {
		mc.Width = prop.Int(src.Width)
	}
	if src.Height > 0 {
		mc.Height = prop.Int(src.Height)
	}
	if src.FrameRate > 0 {
		mc.FrameRate = prop.Float(src.FrameRate)
	}
}
