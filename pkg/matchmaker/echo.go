package matchmaker

import (
	"context"

	"rtc-transport/pkg/log"

	"github.com/vmihailenco/msgpack/v5"
)

// EchoHandler greets every client on join and sends each message back to
// its sender unchanged.
type EchoHandler struct{}

var _ RoomHandler = EchoHandler{}

func (EchoHandler) OnJoin(ctx context.Context, room *LocalRoom, client Client, options Options) error {
	return client.Send("welcome", room.ID())
}

func (EchoHandler) OnMessage(room *LocalRoom, client Client, messageType any, payload msgpack.RawMessage) {
	var value any
	if len(payload) != 0 {
		if err := msgpack.Unmarshal(payload, &value); err != nil {
			log.WithSession(client.SessionID()).Debugf("echo: %s", err)

			return
		}
	}

	if err := client.Send(messageType, value); err != nil {
		log.WithSession(client.SessionID()).Warn(err)
	}
}

func (EchoHandler) OnLeave(room *LocalRoom, client Client, consented bool) {}

func (EchoHandler) OnDispose(room *LocalRoom) {}
