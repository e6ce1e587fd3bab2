// Package realtime owns the live duplex channels of connected users and
// fans structured events out to them.
package realtime

import "errors"

var (
	// ErrChannelClosed is returned when sending on a channel that has been closed.
	ErrChannelClosed = errors.New("realtime: channel closed")

	// ErrSendQueueFull is returned when a channel's outbound queue cannot take more frames.
	ErrSendQueueFull = errors.New("realtime: send queue full")
)

// Channel is a single duplex transport bound to one user for its lifetime.
type Channel interface {
	ID() string
	UserID() string
	// Send queues msg for delivery. It must not block on the peer.
	Send(msg []byte) error
	Close() error
}
