package transport

import (
	"io"
	"sync"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/protocol"
	xsync "rtc-transport/pkg/sync"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// Detached is the raw side of a detached pion data channel.
type Detached interface {
	ReadDataChannel(p []byte) (int, bool, error)
	WriteDataChannel(p []byte, isString bool) (int, error)
	Close() error
}

// StateSource reports the state of the underlying data channel.
type StateSource interface {
	ReadyState() webrtc.DataChannelState
}

// DataChannel runs a read and a write pump over a detached data channel.
type DataChannel struct {
	rwc   Detached
	state StateSource

	send    *sendQueue[[]byte]
	closing bool
	started bool
	sendMx  sync.RWMutex

	done *xsync.Event
}

var _ Channel = (*DataChannel)(nil)

func NewDataChannel(rwc Detached, state StateSource) *DataChannel {
	return &DataChannel{
		rwc:   rwc,
		state: state,
		send:  newSendQueue[[]byte](),
		done:  xsync.NewEvent(),
	}
}

// Start launches the pumps. PINGs are answered with PONGs by the channel
// itself.
func (c *DataChannel) Start(h Handler) {
	c.sendMx.Lock()
	if c.started || c.closing {
		c.sendMx.Unlock()

		return
	}
	c.started = true
	c.sendMx.Unlock()

	go c.writePump()
	go c.readPump(h)
}

func (c *DataChannel) ReadyState() protocol.ReadyState {
	if c.done.HasFired() {
		return protocol.Closed
	}

	c.sendMx.RLock()
	closing := c.closing
	c.sendMx.RUnlock()

	if closing {
		return protocol.Closing
	}

	switch c.state.ReadyState() {
	case webrtc.DataChannelStateOpen:
		return protocol.Open
	case webrtc.DataChannelStateClosing:
		return protocol.Closing
	case webrtc.DataChannelStateClosed:
		return protocol.Closed
	}

	return protocol.Connecting
}

func (c *DataChannel) Send(frame []byte) error {
	if c.ReadyState() != protocol.Open {
		return ErrChannelUnavailable
	}

	return c.enqueue(frame, 0)
}

func (c *DataChannel) Ping() bool {
	if c.ReadyState() != protocol.Open {
		return false
	}

	return c.enqueue(protocol.PingFrame, pingBacklog) == nil
}

func (c *DataChannel) enqueue(frame []byte, limit int) error {
	c.sendMx.RLock()
	defer c.sendMx.RUnlock()

	if c.closing {
		return ErrChannelUnavailable
	}

	return c.send.push(frame, limit)
}

func (c *DataChannel) Close() error {
	c.sendMx.Lock()
	defer c.sendMx.Unlock()

	if c.closing {
		return nil
	}
	c.closing = true
	c.send.close()

	if !c.started {
		c.done.Fire()

		return c.rwc.Close()
	}

	return nil
}

func (c *DataChannel) Done() <-chan struct{} {
	return c.done.Done()
}

func (c *DataChannel) writePump() {
	defer c.done.Fire()
	defer c.rwc.Close()

	for {
		frame, ok := c.send.next(c.done.Done())
		if !ok {
			return
		}

		if _, err := c.rwc.WriteDataChannel(frame, false); err != nil {
			log.Debugf("data channel write: %s", err)

			return
		}
	}
}

func (c *DataChannel) readPump(h Handler) {
	defer c.done.Fire()
	defer c.Close()

	buf := make([]byte, readBufferSize)

	for {
		n, _, err := c.rwc.ReadDataChannel(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debugf("data channel read: %s", err)
			}

			return
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		c.dispatch(h, frame)
	}
}

func (c *DataChannel) dispatch(h Handler, frame []byte) {
	if protocol.IsControl(frame) {
		if frame[0] == protocol.Pong {
			h.pong()
		} else if err := c.Send(protocol.PongFrame); err != nil {
			log.Debugf("pong: %s", err)
		}

		return
	}

	h.frame(frame)
}
