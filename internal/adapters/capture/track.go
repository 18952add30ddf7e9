package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const mtu = 1200

// source is the part of mediadevices.Track a Track drives.
type source interface {
	ID() string
	Kind() webrtc.RTPCodecType
	OnEnded(func(error))
	NewRTPReader(codecName string, ssrc uint32, mtu int) (mediadevices.RTPReadCloser, error)
	Close() error
}

// Track pumps encoded RTP from a capture source into a static local track.
// It implements core.LocalTrack and core.BitrateSetter.
type Track struct {
	id     string
	src    source
	local  *webrtc.TrackLocalStaticRTP
	reader mediadevices.RTPReadCloser
	cancel context.CancelFunc
	logger zerolog.Logger

	mu       sync.Mutex
	stopped  bool
	endErr   error
	nextSub  int
	subs     map[int]func(error)
	stopOnce sync.Once
}

func newTrack(ctx context.Context, label string, src source, mime string) (*Track, error) {
	id := label + "-" + uuid.NewString()[:8]
	capability := webrtc.RTPCodecCapability{MimeType: mime}
	switch src.Kind() {
	case webrtc.RTPCodecTypeAudio:
		capability.ClockRate, capability.Channels = 48000, 2
	default:
		capability.ClockRate = 90000
	}

	local, err := webrtc.NewTrackLocalStaticRTP(capability, id, "voice")
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("%s local track: %w", label, err)
	}
	reader, err := src.NewRTPReader(mime, uuid.New().ID(), mtu)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("%s rtp reader: %w", label, err)
	}

	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &Track{
		id:     id,
		src:    src,
		local:  local,
		reader: reader,
		cancel: cancel,
		logger: log.With().Str("module", "capture").Str("track_id", id).Logger(),
		subs:   make(map[int]func(error)),
	}
	src.OnEnded(t.ended)
	go t.pump(pumpCtx)

	t.logger.Info().Str("kind", src.Kind().String()).Str("codec", mime).Msg("track started")
	return t, nil
}

func (t *Track) ID() string { return t.id }

func (t *Track) Kind() webrtc.RTPCodecType { return t.src.Kind() }

func (t *Track) TrackLocal() webrtc.TrackLocal { return t.local }

// OnEnded registers fn for a spontaneous end of the source. If the source
// already ended, fn is called right away on its own goroutine.
func (t *Track) OnEnded(fn func(error)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.endErr != nil {
		go fn(t.endErr)
		return func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// ended fans a source end out to the subscribers, unless Stop got there first.
func (t *Track) ended(err error) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if err == nil {
		err = io.EOF
	}
	t.stopped = true
	t.endErr = err
	subs := make([]func(error), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.subs = map[int]func(error){}
	t.mu.Unlock()

	t.logger.Warn().Err(err).Msg("track ended")
	for _, fn := range subs {
		fn(err)
	}
	t.release()
}

func (t *Track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.subs = map[int]func(error){}
	t.mu.Unlock()
	t.release()
}

func (t *Track) release() {
	t.stopOnce.Do(func() {
		t.cancel()
		if err := t.reader.Close(); err != nil {
			t.logger.Debug().Err(err).Msg("reader close")
		}
		if err := t.src.Close(); err != nil {
			t.logger.Debug().Err(err).Msg("source close")
		}
		t.logger.Info().Msg("track stopped")
	})
}

func (t *Track) SetBitrate(bps int) error {
	ctrl, ok := t.reader.Controller().(codec.BitRateController)
	if !ok {
		return ErrBitrateUnsupported
	}
	return ctrl.SetBitRate(bps)
}

func (t *Track) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkts, release, err := t.reader.Read()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				t.logger.Warn().Err(err).Msg("rtp read")
			}
			if ctx.Err() == nil {
				t.ended(err)
			}
			return
		}
		for _, pkt := range pkts {
			if err := t.local.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				t.logger.Debug().Err(err).Msg("rtp write")
			}
		}
		release()
	}
}
