package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct{ bitrate int }

func (c *fakeController) SetBitRate(b int) error {
	c.bitrate = b
	return nil
}

type fakeReader struct {
	ctrl   codec.EncoderController
	closed chan struct{}
	once   sync.Once
}

func (r *fakeReader) Read() ([]*rtp.Packet, func(), error) {
	<-r.closed
	return nil, func() {}, io.EOF
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeReader) Controller() codec.EncoderController { return r.ctrl }

type fakeSource struct {
	reader  *fakeReader
	onEnded func(error)
	closes  int
	mu      sync.Mutex
}

func newFakeSource(ctrl codec.EncoderController) *fakeSource {
	return &fakeSource{reader: &fakeReader{ctrl: ctrl, closed: make(chan struct{})}}
}

func (s *fakeSource) ID() string { return "fake" }

func (s *fakeSource) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeVideo }

func (s *fakeSource) OnEnded(fn func(error)) { s.onEnded = fn }

func (s *fakeSource) NewRTPReader(string, uint32, int) (mediadevices.RTPReadCloser, error) {
	return s.reader, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func TestTrackEndFansOutOnce(t *testing.T) {
	src := newFakeSource(nil)
	tr, err := newTrack(context.Background(), "camera", src, webrtc.MimeTypeVP8)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []error
	tr.OnEnded(func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	})
	unsub := tr.OnEnded(func(error) { t.Error("unsubscribed handler called") })
	unsub()

	revoked := errors.New("device revoked")
	src.onEnded(revoked)
	src.onEnded(revoked)

	mu.Lock()
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0], revoked)
	mu.Unlock()
	assert.Equal(t, 1, src.closeCount())
}

func TestTrackEndReachesLateSubscriber(t *testing.T) {
	src := newFakeSource(nil)
	tr, err := newTrack(context.Background(), "screen", src, webrtc.MimeTypeVP8)
	require.NoError(t, err)

	revoked := errors.New("device revoked")
	src.onEnded(revoked)

	got := make(chan error, 1)
	unsub := tr.OnEnded(func(err error) { got <- err })
	unsub()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, revoked)
	case <-time.After(time.Second):
		t.Fatal("late subscriber not notified")
	}
	assert.Equal(t, 1, src.closeCount())
}

func TestTrackStopIsSilent(t *testing.T) {
	src := newFakeSource(nil)
	tr, err := newTrack(context.Background(), "screen", src, webrtc.MimeTypeVP8)
	require.NoError(t, err)

	tr.OnEnded(func(error) { t.Error("stop fired ended handler") })
	tr.Stop()
	tr.Stop()
	src.onEnded(io.EOF)
	tr.OnEnded(func(error) { t.Error("stopped track notified late subscriber") })
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, src.closeCount())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, tr.Kind())
	assert.Equal(t, tr.ID(), tr.TrackLocal().ID())
}

func TestTrackSetBitrate(t *testing.T) {
	ctrl := &fakeController{}
	tr, err := newTrack(context.Background(), "camera", newFakeSource(ctrl), webrtc.MimeTypeVP8)
	require.NoError(t, err)
	defer tr.Stop()

	require.NoError(t, tr.SetBitrate(3_000_000))
	assert.Equal(t, 3_000_000, ctrl.bitrate)

	plain, err := newTrack(context.Background(), "camera", newFakeSource(nil), webrtc.MimeTypeVP8)
	require.NoError(t, err)
	defer plain.Stop()
	assert.ErrorIs(t, plain.SetBitrate(1000), ErrBitrateUnsupported)
}

func TestBlankSource(t *testing.T) {
	src := newBlankSource(Source{Width: 32, Height: 16, FrameRate: 50})

	img, release, err := src.Read()
	require.NoError(t, err)
	release()
	assert.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())
	r, g, b, _ := img.At(5, 5).RGBA()
	assert.Less(t, r>>8, uint32(8))
	assert.Less(t, g>>8, uint32(8))
	assert.Less(t, b>>8, uint32(8))

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	done := make(chan error, 1)
	go func() {
		_, _, err := src.Read()
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("read after close blocked")
	}
}

func TestBlankSourceDefaults(t *testing.T) {
	src := newBlankSource(Source{})
	defer src.Close()
	assert.Equal(t, image.Rect(0, 0, defaultBlankWidth, defaultBlankHeight), src.frame.Bounds())
}
