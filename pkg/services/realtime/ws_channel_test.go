package realtime

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newChannelPair upgrades one connection on a test server and returns the
// server-side channel with the dialed client.
func newChannelPair(t *testing.T, userID string, cfg ChannelConfig) (*WSChannel, *websocket.Conn) {
	t.Helper()

	channels := make(chan *WSChannel, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		channels <- NewWSChannel(ws, userID, cfg)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ch := <-channels:
		t.Cleanup(func() { _ = ch.Close() })
		return ch, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never upgraded the connection")
		return nil, nil
	}
}

func isDone(ch *WSChannel) bool {
	select {
	case <-ch.Done():
		return true
	default:
		return false
	}
}

func TestWSChannelDeliversFramesInOrder(t *testing.T) {
	ch, client := newChannelPair(t, "u1", DefaultChannelConfig())
	go ch.WritePump()

	const frames = 20
	for i := 0; i < frames; i++ {
		require.NoError(t, ch.Send([]byte(fmt.Sprintf("frame-%d", i))))
	}

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < frames; i++ {
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("frame-%d", i), string(data))
	}
}

func TestWSChannelFullQueue(t *testing.T) {
	cfg := DefaultChannelConfig()
	cfg.QueueSize = 2
	ch, _ := newChannelPair(t, "u1", cfg)

	// no WritePump, so nothing drains the queue
	require.NoError(t, ch.Send([]byte("a")))
	require.NoError(t, ch.Send([]byte("b")))
	assert.ErrorIs(t, ch.Send([]byte("c")), ErrSendQueueFull)
}

func TestRegistryPrunesChannelWithFullQueue(t *testing.T) {
	cfg := DefaultChannelConfig()
	cfg.QueueSize = 2
	ch, _ := newChannelPair(t, "u1", cfg)

	r := NewConnectionRegistry(4, nil, nil)
	r.Connect("u1", ch)

	for i := 0; i < 3; i++ {
		r.SendTo("u1", []byte("update"))
	}

	assert.False(t, r.IsConnected("u1"))
	assert.Equal(t, 0, r.TotalConnections())
	assert.True(t, isDone(ch))
}

func TestWSChannelSendAfterClose(t *testing.T) {
	ch, client := newChannelPair(t, "u1", DefaultChannelConfig())

	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
	assert.True(t, isDone(ch))
	assert.ErrorIs(t, ch.Send([]byte("late")), ErrChannelClosed)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWSChannelFailedWriteClosesChannel(t *testing.T) {
	ch, _ := newChannelPair(t, "u1", DefaultChannelConfig())
	go ch.WritePump()

	// break the transport underneath the channel
	require.NoError(t, ch.ws.Close())
	require.NoError(t, ch.Send([]byte("lost")))

	assert.Eventually(t, func() bool { return isDone(ch) }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, ch.Send([]byte("after")), ErrChannelClosed)
}

func TestWSChannelPingsPeer(t *testing.T) {
	cfg := DefaultChannelConfig()
	cfg.ReadTimeout = 2 * time.Second
	cfg.PingInterval = 20 * time.Millisecond
	ch, client := newChannelPair(t, "u1", cfg)
	go ch.WritePump()

	pings := make(chan struct{}, 8)
	client.SetPingHandler(func(string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}
