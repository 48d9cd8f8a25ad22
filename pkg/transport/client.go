package transport

import (
	"encoding/json"
	"sync"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/matchmaker"
	"rtc-transport/pkg/protocol"

	"github.com/pkg/errors"
)

// Client presents a Channel to a room as a coordinator client.
//
// Frames sent while the client is joining are held back and flushed right
// after the JOIN_ROOM ack, so the remote side never sees room data before it
// knows it joined.
type Client struct {
	sessionID string
	channel   Channel

	state     protocol.ClientState
	queue     [][]byte
	leaveCode int
	mx        sync.Mutex
}

var _ matchmaker.Client = (*Client)(nil)

func NewClient(sessionID string, channel Channel) *Client {
	return &Client{
		sessionID: sessionID,
		channel:   channel,
		state:     protocol.Joining,
		leaveCode: protocol.CloseAbnormal,
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) State() protocol.ClientState {
	c.mx.Lock()
	defer c.mx.Unlock()

	return c.state
}

func (c *Client) ReadyState() protocol.ReadyState {
	return c.channel.ReadyState()
}

// Send encodes a ROOM_DATA frame. It only fails when the payload cannot be
// encoded.
func (c *Client) Send(messageType any, payload any) error {
	frame, err := protocol.RoomDataFrame(messageType, payload)
	if err != nil {
		return errors.Wrap(err, "send")
	}

	c.SendRaw(frame)

	return nil
}

func (c *Client) SendRaw(frame []byte) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state == protocol.Joining {
		c.queue = append(c.queue, frame)

		return
	}

	c.raw(frame)
}

// Error sends an ERROR frame right away, bypassing the join queue.
func (c *Client) Error(code int, message string) {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.raw(protocol.ErrorFrame(code, message))
}

func (c *Client) ConfirmJoin(ack []byte) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != protocol.Joining {
		return
	}

	c.raw(ack)
	c.state = protocol.Joined

	for _, frame := range c.queue {
		c.raw(frame)
	}
	c.queue = nil
}

// Leave sends LEAVE_ROOM with code and closes the channel.
func (c *Client) Leave(code int) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state == protocol.Leaving {
		return
	}

	c.state = protocol.Leaving
	c.leaveCode = code
	c.queue = nil

	if c.channel.ReadyState() == protocol.Open {
		c.raw(protocol.LeaveRoomFrame(code))
	}

	if err := c.channel.Close(); err != nil {
		log.WithSession(c.sessionID).Debugf("close: %s", err)
	}
}

// Close is kept for rooms written against the old client API.
//
// Deprecated: use Leave.
func (c *Client) Close(code int) {
	log.WithSession(c.sessionID).Warn("DEPRECATION WARNING: use client.Leave() instead of client.Close()")

	c.Leave(code)
}

// LeaveCode is the code passed to Leave, or CloseAbnormal when the
// connection dropped on its own.
func (c *Client) LeaveCode() int {
	c.mx.Lock()
	defer c.mx.Unlock()

	return c.leaveCode
}

func (c *Client) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SessionID  string              `json:"sessionId"`
		ReadyState protocol.ReadyState `json:"readyState"`
	}{
		SessionID:  c.sessionID,
		ReadyState: c.ReadyState(),
	})
}

func (c *Client) raw(frame []byte) {
	err := c.channel.Send(frame)

	switch {
	case err == nil:
	case errors.Is(err, ErrSendQueueFull):
		log.WithSession(c.sessionID).Warnf("send queue full, frame dropped: %s", err)
	default:
		log.WithSession(c.sessionID).Warnf("trying to send data to inactive client: %s", err)
	}
}
