package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
)

// WsSignalConn is one client-side signaling websocket.
// It owns the read and write pumps; events are reported through core.SignalEvents.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	ev   core.SignalEvents

	pingPeriod time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	pumps      conc.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, ev core.SignalEvents, opts Options) *WsSignalConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WsSignalConn{
		conn:       ws,
		send:       make(chan core.Frame, sendBuffer),
		ev:         ev,
		pingPeriod: opts.PingPeriod,
		ctx:        ctx,
		cancel:     cancel,
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}
	return c
}

func (c *WsSignalConn) start() {
	if c.pingPeriod > 0 {
		pongWait := 2 * c.pingPeriod
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	c.pumps.Go(c.writePump)
	c.pumps.Go(c.readPump)
	go func() {
		if r := c.pumps.WaitAndRecover(); r != nil {
			log.Error().Str("module", "signal").Str("panic", r.String()).Msg("signal pump panicked")
			c.reportClosed(r.AsError())
		}
	}()
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close is the local, silent close: OnClosed is not reported afterwards.
func (c *WsSignalConn) Close() {
	if !c.markClosed() {
		return
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Normal Closure"),
		time.Now().Add(time.Second),
	)
	_ = c.conn.Close()
	log.Debug().Str("module", "signal").Msg("connection closed locally")
}

func (c *WsSignalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// markClosed flips the closed flag once and stops the write pump.
func (c *WsSignalConn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	c.cancel()
	return true
}

// reportClosed tears the socket down after a remote close or a transport error
// and tells the owner, unless the owner closed it first.
func (c *WsSignalConn) reportClosed(err error) {
	if !c.markClosed() {
		return
	}
	_ = c.conn.Close()
	if c.ev.OnClosed != nil {
		c.ev.OnClosed(err)
	}
}
