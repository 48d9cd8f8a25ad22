package transport

import (
	"encoding/json"
	"sync"
	"testing"

	"rtc-transport/pkg/protocol"
	xsync "rtc-transport/pkg/sync"
)

type fakeChannel struct {
	mx     sync.Mutex
	state  protocol.ReadyState
	frames [][]byte
	closes int
	done   *xsync.Event
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{state: protocol.Open, done: xsync.NewEvent()}
}

func (c *fakeChannel) Start(Handler) {}

func (c *fakeChannel) ReadyState() protocol.ReadyState {
	c.mx.Lock()
	defer c.mx.Unlock()

	return c.state
}

func (c *fakeChannel) Send(frame []byte) error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != protocol.Open {
		return ErrChannelUnavailable
	}
	c.frames = append(c.frames, frame)

	return nil
}

func (c *fakeChannel) Ping() bool {
	return c.Send(protocol.PingFrame) == nil
}

func (c *fakeChannel) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.closes++
	c.state = protocol.Closed
	c.done.Fire()

	return nil
}

func (c *fakeChannel) Done() <-chan struct{} {
	return c.done.Done()
}

func (c *fakeChannel) sent() [][]byte {
	c.mx.Lock()
	defer c.mx.Unlock()

	return append([][]byte(nil), c.frames...)
}

func decodeType(t *testing.T, frame []byte) any {
	t.Helper()

	f, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	return f.Type
}

func TestClient_QueuesUntilJoinConfirmed(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient("a", ch)

	if c.State() != protocol.Joining {
		t.Fatalf("state = %s, want joining", c.State())
	}

	c.Send("m1", nil)
	c.Send("m2", map[string]int{"x": 1})

	if n := len(ch.sent()); n != 0 {
		t.Fatalf("%d frames sent while joining", n)
	}

	c.ConfirmJoin(protocol.JoinRoomFrame("none"))
	c.Send("m3", nil)

	sent := ch.sent()
	if len(sent) != 4 {
		t.Fatalf("sent %d frames, want 4", len(sent))
	}

	if sent[0][0] != protocol.JoinRoom {
		t.Errorf("first frame code = %d, want JOIN_ROOM", sent[0][0])
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got := decodeType(t, sent[i+1]); got != want {
			t.Errorf("frame %d type = %v, want %s", i+1, got, want)
		}
	}

	if c.State() != protocol.Joined {
		t.Errorf("state = %s, want joined", c.State())
	}
}

func TestClient_ConcurrentSendsDuringJoin(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient("a", ch)

	const senders = 50

	var wg sync.WaitGroup
	wg.Add(senders + 1)

	for i := 0; i < senders; i++ {
		go func(i int) {
			defer wg.Done()
			c.Send(i, nil)
		}(i)
	}

	go func() {
		defer wg.Done()
		c.ConfirmJoin(protocol.JoinRoomFrame("none"))
	}()

	wg.Wait()

	sent := ch.sent()
	if len(sent) != senders+1 {
		t.Fatalf("sent %d frames, want %d", len(sent), senders+1)
	}
	if sent[0][0] != protocol.JoinRoom {
		t.Fatalf("first frame code = %d, want JOIN_ROOM", sent[0][0])
	}
}

func TestClient_ErrorBypassesQueue(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient("a", ch)

	c.Send("queued", nil)
	c.Error(protocol.ErrMatchmakeExpired, "seat reservation expired.")

	sent := ch.sent()
	if len(sent) != 1 || sent[0][0] != protocol.Error {
		t.Fatalf("sent = %v, want one ERROR frame", sent)
	}
}

func TestClient_SendOnClosedChannel(t *testing.T) {
	ch := newFakeChannel()
	ch.Close()

	c := NewClient("a", ch)
	c.ConfirmJoin(protocol.JoinRoomFrame("none"))

	if err := c.Send("late", "payload"); err != nil {
		t.Fatalf("Send on closed channel = %v, want nil", err)
	}
	if n := len(ch.sent()); n != 0 {
		t.Errorf("sent %d frames on closed channel", n)
	}
}

func TestClient_SendEncodeError(t *testing.T) {
	c := NewClient("a", newFakeChannel())
	c.ConfirmJoin(protocol.JoinRoomFrame("none"))

	if err := c.Send("bad", make(chan int)); err == nil {
		t.Fatal("Send accepted an unencodable payload")
	}
}

func TestClient_Leave(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient("a", ch)
	c.ConfirmJoin(protocol.JoinRoomFrame("none"))

	c.Leave(protocol.CloseConsented)
	c.Close(protocol.CloseNormal)

	sent := ch.sent()
	if len(sent) != 2 || sent[1][0] != protocol.LeaveRoom {
		t.Fatalf("sent = %v, want JOIN_ROOM then LEAVE_ROOM", sent)
	}
	if ch.closes != 1 {
		t.Errorf("closes = %d, want 1", ch.closes)
	}
	if c.LeaveCode() != protocol.CloseConsented {
		t.Errorf("leave code = %d, want %d", c.LeaveCode(), protocol.CloseConsented)
	}
	if c.ReadyState() != protocol.Closed {
		t.Errorf("ready state = %s, want closed", c.ReadyState())
	}
}

func TestClient_MarshalJSON(t *testing.T) {
	c := NewClient("abc", newFakeChannel())

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if string(data) != `{"sessionId":"abc","readyState":1}` {
		t.Errorf("json = %s", data)
	}
}

func TestClient_LeaveDuringJoin(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient("a", ch)

	c.Send("queued", nil)
	c.Leave(protocol.CloseWithError)
	c.ConfirmJoin(protocol.JoinRoomFrame("none"))

	if c.State() != protocol.Leaving {
		t.Errorf("state = %s, want leaving", c.State())
	}

	sent := ch.sent()
	if len(sent) != 1 || sent[0][0] != protocol.LeaveRoom {
		t.Fatalf("sent = %v, want a single LEAVE_ROOM", sent)
	}
}
