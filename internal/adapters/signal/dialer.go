package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	// Retries is the number of extra dial attempts after the first one.
	Retries int
}

// Dialer opens client-side signaling websockets. It implements core.SignalDialer.
type Dialer struct {
	opts Options
	ws   *websocket.Dialer
}

func NewDialer(opts Options) *Dialer {
	ws := *websocket.DefaultDialer
	return &Dialer{opts: opts, ws: &ws}
}

func (d *Dialer) Dial(ctx context.Context, address string, ev core.SignalEvents) (core.SignalConnection, error) {
	var ws *websocket.Conn
	attempt := 0
	op := func() error {
		attempt++
		conn, _, err := d.ws.DialContext(ctx, address, nil)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("address", address).Int("attempt", attempt).Msg("dial failed")
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		ws = conn
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.opts.Retries)),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	log.Info().Str("module", "signal").Str("address", address).Msg("websocket connected")
	c := newWsSignalConn(ws, ev, d.opts)
	c.start()
	return c, nil
}
