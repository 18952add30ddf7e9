package capture

import (
	"image"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBlankWidth  = 160
	defaultBlankHeight = 120
	defaultBlankFPS    = 5
)

// blankSource produces black frames at a fixed rate. It satisfies
// mediadevices.VideoSource.
type blankSource struct {
	id    string
	frame *image.YCbCr
	tick  *time.Ticker
	done  chan struct{}
	once  sync.Once
}

func newBlankSource(src Source) *blankSource {
	w, h, fps := src.Width, src.Height, src.FrameRate
	if w <= 0 {
		w = defaultBlankWidth
	}
	if h <= 0 {
		h = defaultBlankHeight
	}
	if fps <= 0 {
		fps = defaultBlankFPS
	}

	frame := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for i := range frame.Y {
		frame.Y[i] = 16
	}
	for i := range frame.Cb {
		frame.Cb[i] = 128
		frame.Cr[i] = 128
	}

	return &blankSource{
		id:    "placeholder-" + uuid.NewString(),
		frame: frame,
		tick:  time.NewTicker(time.Duration(float64(time.Second) / fps)),
		done:  make(chan struct{}),
	}
}

func (s *blankSource) ID() string { return s.id }

func (s *blankSource) Read() (image.Image, func(), error) {
	select {
	case <-s.done:
		return nil, func() {}, io.EOF
	case <-s.tick.C:
		return s.frame, func() {}, nil
	}
}

func (s *blankSource) Close() error {
	s.once.Do(func() {
		s.tick.Stop()
		close(s.done)
	})
	return nil
}
