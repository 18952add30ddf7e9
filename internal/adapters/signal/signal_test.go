package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer echoes text frames until it reads "bye", then closes normally.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				time.Sleep(50 * time.Millisecond)
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSendReceive(t *testing.T) {
	srv := echoServer(t)
	msgs := make(chan core.Frame, 4)
	closed := make(chan error, 1)

	d := NewDialer(Options{ReadLimit: 1024})
	conn, err := d.Dial(context.Background(), wsURL(srv), core.SignalEvents{
		OnMessage: func(f core.Frame) { msgs <- f },
		OnClosed:  func(err error) { closed <- err },
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.TrySend(core.Frame(`{"type":"mode","active":true}`)))
	select {
	case f := <-msgs:
		assert.JSONEq(t, `{"type":"mode","active":true}`, string(f))
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
}

func TestRemoteCloseIsReported(t *testing.T) {
	srv := echoServer(t)
	closed := make(chan error, 1)

	conn, err := NewDialer(Options{}).Dial(context.Background(), wsURL(srv), core.SignalEvents{
		OnClosed: func(err error) { closed <- err },
	})
	require.NoError(t, err)
	require.NoError(t, conn.TrySend(core.Frame("bye")))

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close not reported")
	}
	assert.ErrorIs(t, conn.TrySend(core.Frame("x")), ErrClosed)
}

func TestLocalCloseIsSilent(t *testing.T) {
	srv := echoServer(t)
	closed := make(chan error, 1)

	conn, err := NewDialer(Options{}).Dial(context.Background(), wsURL(srv), core.SignalEvents{
		OnClosed: func(err error) { closed <- err },
	})
	require.NoError(t, err)

	conn.Close()
	conn.Close()

	select {
	case err := <-closed:
		t.Fatalf("unexpected close report: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	assert.ErrorIs(t, conn.TrySend(core.Frame("x")), ErrClosed)
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewDialer(Options{Retries: 1}).Dial(ctx, wsURL(srv), core.SignalEvents{})
	assert.Error(t, err)
}

func TestBackpressure(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}
	require.NoError(t, c.TrySend(core.Frame("a")))
	assert.ErrorIs(t, c.TrySend(core.Frame("b")), ErrBackpressure)
}
