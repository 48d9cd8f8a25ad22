// Package transport exposes WebRTC data channels, and websockets as a
// fallback, to rooms as ordinary coordinator clients.
package transport

import (
	"rtc-transport/pkg/protocol"

	"github.com/pkg/errors"
)

const (
	// pingBacklog is the queue length past which a PING is skipped.
	pingBacklog    = 256
	readBufferSize = 64 * 1024
)

var (
	ErrChannelUnavailable = errors.New("channel is not open")
	ErrSendQueueFull      = errors.New("send queue full")
)

// Channel is a message-oriented connection to one client. Send and Ping never
// block: frames are queued for a single writer goroutine. Send never drops a
// frame while the channel is open; Ping is skipped when the client is too far
// behind.
type Channel interface {
	// Start launches the channel's pumps, delivering what it reads to h.
	Start(h Handler)

	ReadyState() protocol.ReadyState

	Send(frame []byte) error

	// Ping queues a liveness probe and reports whether it could.
	Ping() bool

	// Close flushes queued frames and closes the connection.
	Close() error

	// Done fires once the connection is closed.
	Done() <-chan struct{}
}

// Handler receives what a Channel reads. PING and PONG never reach OnFrame.
type Handler struct {
	OnFrame func(frame []byte)
	OnPong  func()
}

func (h Handler) frame(frame []byte) {
	if h.OnFrame != nil {
		h.OnFrame(frame)
	}
}

func (h Handler) pong() {
	if h.OnPong != nil {
		h.OnPong()
	}
}
