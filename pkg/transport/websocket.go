package transport

import (
	"net/http"
	"sync"
	"time"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/protocol"
	xsync "rtc-transport/pkg/sync"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,

	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsFrame struct {
	data []byte
	ping bool
}

// WebsocketChannel carries room frames over a websocket. Liveness uses
// websocket control frames instead of PING/PONG bytes.
type WebsocketChannel struct {
	conn *websocket.Conn

	send    *sendQueue[wsFrame]
	closing bool
	started bool
	sendMx  sync.RWMutex

	done *xsync.Event
}

var _ Channel = (*WebsocketChannel)(nil)

func NewWebsocketChannel(conn *websocket.Conn) *WebsocketChannel {
	return &WebsocketChannel{
		conn: conn,
		send: newSendQueue[wsFrame](),
		done: xsync.NewEvent(),
	}
}

func (c *WebsocketChannel) Start(h Handler) {
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

func (c *WebsocketChannel) ReadyState() protocol.ReadyState {
	if c.done.HasFired() {
		return protocol.Closed
	}

	c.sendMx.RLock()
	defer c.sendMx.RUnlock()

	if c.closing {
		return protocol.Closing
	}

	return protocol.Open
}

func (c *WebsocketChannel) Send(frame []byte) error {
	return c.enqueue(wsFrame{data: frame}, 0)
}

func (c *WebsocketChannel) Ping() bool {
	return c.enqueue(wsFrame{ping: true}, pingBacklog) == nil
}

func (c *WebsocketChannel) enqueue(frame wsFrame, limit int) error {
	if c.done.HasFired() {
		return ErrChannelUnavailable
	}

	c.sendMx.RLock()
	defer c.sendMx.RUnlock()

	if c.closing {
		return ErrChannelUnavailable
	}

	return c.send.push(frame, limit)
}

func (c *WebsocketChannel) Close() error {
	c.sendMx.Lock()
	defer c.sendMx.Unlock()

	if c.closing {
		return nil
	}
	c.closing = true
	c.send.close()

	if !c.started {
		c.done.Fire()

		return c.conn.Close()
	}

	return nil
}

func (c *WebsocketChannel) Done() <-chan struct{} {
	return c.done.Done()
}

func (c *WebsocketChannel) readPump(h Handler) {
	defer c.done.Fire()
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		h.pong()

		return nil
	})

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debugf("websocket read: %s", err)
			}

			return
		}

		if kind != websocket.BinaryMessage || len(frame) == 0 {
			continue
		}

		h.frame(frame)
	}
}

func (c *WebsocketChannel) writePump() {
	defer c.done.Fire()
	defer c.conn.Close()

	for {
		frame, ok := c.send.next(c.done.Done())

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		if !ok {
			if !c.done.HasFired() {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}

			return
		}

		var err error
		if frame.ping {
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		} else {
			err = c.conn.WriteMessage(websocket.BinaryMessage, frame.data)
		}

		if err != nil {
			log.Debugf("websocket write: %s", err)

			return
		}
	}
}
