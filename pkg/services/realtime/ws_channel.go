package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ChannelConfig tunes a websocket channel
type ChannelConfig struct {
	QueueSize     int
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration
	PingInterval  time.Duration
	MaxFrameBytes int64
}

// DefaultChannelConfig returns default channel configuration
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		QueueSize:     64,
		WriteTimeout:  10 * time.Second,
		ReadTimeout:   60 * time.Second,
		PingInterval:  54 * time.Second,
		MaxFrameBytes: 64 * 1024,
	}
}

// WSChannel is a Channel over a gorilla websocket connection. Frames are
// queued by Send and written by a single WritePump goroutine.
type WSChannel struct {
	id     string
	userID string
	ws     *websocket.Conn
	cfg    ChannelConfig

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSChannel wraps an upgraded connection for userID
func NewWSChannel(ws *websocket.Conn, userID string, cfg ChannelConfig) *WSChannel {
	def := DefaultChannelConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.ReadTimeout {
		cfg.PingInterval = cfg.ReadTimeout * 9 / 10
	}

	c := &WSChannel{
		id:     uuid.New().String(),
		userID: userID,
		ws:     ws,
		cfg:    cfg,
		send:   make(chan []byte, cfg.QueueSize),
		done:   make(chan struct{}),
	}

	if cfg.MaxFrameBytes > 0 {
		ws.SetReadLimit(cfg.MaxFrameBytes)
	}
	_ = ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})
	return c
}

func (c *WSChannel) ID() string     { return c.id }
func (c *WSChannel) UserID() string { return c.userID }

// Done is closed once the channel is closed.
func (c *WSChannel) Done() <-chan struct{} { return c.done }

// Send queues msg without blocking
func (c *WSChannel) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return ErrSendQueueFull
	}
}

// ReadMessage blocks for the next inbound frame. Only one goroutine may read.
func (c *WSChannel) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	return data, nil
}

// WritePump drains the outbound queue and pings the peer until the channel
// closes or a write fails. A failed write closes the channel.
func (c *WSChannel) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// Close sends a close frame and tears down the connection. Safe to call
// more than once and from any goroutine.
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.ws.Close()
	})
	return err
}
