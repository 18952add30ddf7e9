package orch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// ---- signaling ----

type fakeConn struct {
	ev   core.SignalEvents
	sent chan core.Envelope

	mu      sync.Mutex
	closed  int
	sendErr error
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	err := c.sendErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	env, err := core.DecodeEnvelope(f)
	if err != nil {
		return err
	}
	c.sent <- env
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// deliver plays a server envelope into the session.
func (c *fakeConn) deliver(t *testing.T, env core.Envelope) {
	t.Helper()
	f, err := env.Encode()
	require.NoError(t, err)
	c.ev.OnMessage(f)
}

func (c *fakeConn) deliverRaw(raw string) { c.ev.OnMessage(core.Frame(raw)) }

func (c *fakeConn) remoteClose(err error) { c.ev.OnClosed(err) }

func (c *fakeConn) next(t *testing.T) core.Envelope {
	t.Helper()
	select {
	case env := <-c.sent:
		return env
	case <-time.After(waitFor):
		t.Fatal("no envelope sent")
		return core.Envelope{}
	}
}

// nextOf skips envelopes until one of type typ arrives.
func (c *fakeConn) nextOf(t *testing.T, typ core.EnvelopeType) core.Envelope {
	t.Helper()
	for {
		if env := c.next(t); env.Type == typ {
			return env
		}
	}
}

func (c *fakeConn) quiet(t *testing.T) {
	t.Helper()
	select {
	case env := <-c.sent:
		t.Fatalf("unexpected envelope %q", env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeDialer struct {
	conns chan *fakeConn

	mu    sync.Mutex
	dials int
	err   error
	hang  bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 4)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, ev core.SignalEvents) (core.SignalConnection, error) {
	d.mu.Lock()
	d.dials++
	err, hang := d.err, d.hang
	d.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	c := &fakeConn{ev: ev, sent: make(chan core.Envelope, 32)}
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) wait(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitFor):
		t.Fatal("transport never opened")
		return nil
	}
}

// ---- media engine ----

type fakeSender struct {
	mid  string
	kind string

	mu       sync.Mutex
	track    core.LocalTrack
	history  []string
	bitrate  int
	bpsErr   error
	codecs   []string
	replaceF error
}

func (s *fakeSender) MID() string { return s.mid }

func (s *fakeSender) ReplaceTrack(t core.LocalTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceF != nil {
		return s.replaceF
	}
	s.track = t
	s.history = append(s.history, t.ID())
	return nil
}

func (s *fakeSender) SetMaxBitrate(bps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bpsErr != nil {
		return s.bpsErr
	}
	s.bitrate = bps
	return nil
}

func (s *fakeSender) SetCodecPreferences(m []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codecs = m
	return nil
}

func (s *fakeSender) current() core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *fakeSender) maxBitrate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bitrate
}

type fakePeer struct {
	ev core.PeerEvents

	mu         sync.Mutex
	senders    []*fakeSender
	remote     []webrtc.SessionDescription
	local      []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	remoteErr  error
	onRemote   func()
	closePanic bool
	detached   bool
	closed     int
}

const (
	offerSDP  = "v=0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\na=mid:0\r\na=setup:actpass\r\nm=video 9 UDP/TLS/RTP/SAVPF 96\r\na=mid:1\r\na=setup:actpass\r\n"
	answerSDP = "v=0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\na=mid:0\r\na=setup:active\r\nm=video 9 UDP/TLS/RTP/SAVPF 96\r\na=mid:1\r\na=setup:active\r\n"
)

func (p *fakePeer) AddTrack(t core.LocalTrack) (core.TrackSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &fakeSender{mid: strconv.Itoa(len(p.senders)), kind: t.Kind().String(), track: t}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}, nil
}

func (p *fakePeer) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = append(p.local, d)
	return nil
}

func (p *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onRemote != nil {
		p.onRemote()
	}
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = append(p.remote, d)
	return nil
}

func (p *fakePeer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remote) > 0
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return errors.New("candidate rejected")
}

func (p *fakePeer) Transceivers() []domain.TransceiverInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.TransceiverInfo, 0, len(p.senders))
	for _, s := range p.senders {
		out = append(out, domain.TransceiverInfo{
			MID:       s.mid,
			Kind:      s.kind,
			Direction: "sendrecv",
			Sending:   true,
			Receiving: true,
			TrackID:   "remote-" + s.kind,
			Packets:   7,
		})
	}
	return out
}

func (p *fakePeer) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = true
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	if p.closePanic {
		panic("peer close")
	}
	return nil
}

func (p *fakePeer) video() *fakeSender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.senders[1]
}

func (p *fakePeer) lastRemote() webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote[len(p.remote)-1]
}

func (p *fakePeer) candidateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candidates)
}

func (p *fakePeer) state() (detached bool, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detached, p.closed
}

type fakeEngine struct {
	peers chan *fakePeer

	mu         sync.Mutex
	remoteErr  error
	onRemote   func()
	closePanic bool
}

func (e *fakeEngine) NewPeer(ev core.PeerEvents) (core.PeerSession, error) {
	e.mu.Lock()
	p := &fakePeer{ev: ev, remoteErr: e.remoteErr, onRemote: e.onRemote, closePanic: e.closePanic}
	e.mu.Unlock()
	e.peers <- p
	return p, nil
}

func (e *fakeEngine) wait(t *testing.T) *fakePeer {
	t.Helper()
	select {
	case p := <-e.peers:
		return p
	case <-time.After(waitFor):
		t.Fatal("no media session created")
		return nil
	}
}

// ---- capture ----

type fakeTrack struct {
	id   string
	kind webrtc.RTPCodecType

	mu        sync.Mutex
	stopped   bool
	stopPanic bool
	endErr    error
	subs      map[int]func(error)
	next      int
}

func newFakeTrack(id string, kind webrtc.RTPCodecType) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, subs: map[int]func(error){}}
}

func (t *fakeTrack) ID() string { return t.id }

func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func (t *fakeTrack) TrackLocal() webrtc.TrackLocal { return nil }

func (t *fakeTrack) OnEnded(fn func(error)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.endErr != nil {
		go fn(t.endErr)
		return func() {}
	}
	id := t.next
	t.next++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopPanic {
		panic("track stop")
	}
	t.stopped = true
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTrack) subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// end simulates the device going away.
func (t *fakeTrack) end(err error) {
	t.mu.Lock()
	t.endErr = err
	subs := make([]func(error), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

type fakeCapture struct {
	mu        sync.Mutex
	calls     int
	audioErr  error
	cameraErr error
	screenErr error
	tracks    []*fakeTrack

	// prepare runs on each new track before it is handed out.
	prepare func(t *fakeTrack)
}

func (c *fakeCapture) make(kind string, err error) (core.LocalTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if err != nil {
		return nil, err
	}
	k := webrtc.RTPCodecTypeVideo
	if kind == "audio" {
		k = webrtc.RTPCodecTypeAudio
	}
	t := newFakeTrack(kind+"-"+strconv.Itoa(len(c.tracks)), k)
	c.tracks = append(c.tracks, t)
	if c.prepare != nil {
		c.prepare(t)
	}
	return t, nil
}

func (c *fakeCapture) AcquireAudio(context.Context) (core.LocalTrack, error) {
	c.mu.Lock()
	err := c.audioErr
	c.mu.Unlock()
	return c.make("audio", err)
}

func (c *fakeCapture) AcquireCamera(context.Context) (core.LocalTrack, error) {
	c.mu.Lock()
	err := c.cameraErr
	c.mu.Unlock()
	return c.make("camera", err)
}

func (c *fakeCapture) AcquireScreen(context.Context) (core.LocalTrack, error) {
	c.mu.Lock()
	err := c.screenErr
	c.mu.Unlock()
	return c.make("screen", err)
}

func (c *fakeCapture) Placeholder(context.Context) (core.LocalTrack, error) {
	return c.make("placeholder", nil)
}

func (c *fakeCapture) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeCapture) all() []*fakeTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTrack(nil), c.tracks...)
}

func (c *fakeCapture) set(fn func(c *fakeCapture)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
