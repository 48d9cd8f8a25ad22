package client

import (
	"io"
	"sync"
	"time"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/matchmaker"
	"rtc-transport/pkg/peer"
	"rtc-transport/pkg/protocol"
	xsync "rtc-transport/pkg/sync"

	"github.com/pion/datachannel"
	"github.com/pkg/errors"
)

const (
	readBufferSize = 64 * 1024
	messageBuffer  = 64
	leaveWait      = 2 * time.Second
)

var ErrClosedBeforeJoin = errors.New("connection closed before the room was joined")

// Room is a joined room over a WebRTC data channel. PINGs from the server are
// answered automatically.
type Room struct {
	ID        string
	Name      string
	SessionID string

	offerer *peer.Offerer
	channel datachannel.ReadWriteCloser
	writeMx sync.Mutex

	messages chan *protocol.Frame

	joined    *xsync.Event
	done      *xsync.Event
	joinErr   error
	leaveCode int
	mx        sync.Mutex
}

func newRoom(reservation *matchmaker.SeatReservation, offerer *peer.Offerer) *Room {
	r := &Room{
		ID:        reservation.Room.RoomID,
		Name:      reservation.Room.Name,
		SessionID: reservation.SessionID,
		offerer:   offerer,
		channel:   offerer.Channel(),
		messages:  make(chan *protocol.Frame, messageBuffer),
		joined:    xsync.NewEvent(),
		done:      xsync.NewEvent(),
		leaveCode: protocol.CloseAbnormal,
	}

	go r.readLoop()

	return r
}

// Messages delivers ROOM_DATA and ERROR frames received after joining. It is
// closed when the connection ends. A consumer that stops reading also stops
// PONG replies.
func (r *Room) Messages() <-chan *protocol.Frame {
	return r.messages
}

func (r *Room) Done() <-chan struct{} {
	return r.done.Done()
}

// LeaveCode is the code of the LEAVE_ROOM frame the server sent, or
// CloseAbnormal.
func (r *Room) LeaveCode() int {
	r.mx.Lock()
	defer r.mx.Unlock()

	return r.leaveCode
}

func (r *Room) Send(messageType any, payload any) error {
	frame, err := protocol.RoomDataFrame(messageType, payload)
	if err != nil {
		return err
	}

	return r.write(frame)
}

// Leave asks the server to remove the client and waits briefly for it to
// close the connection.
func (r *Room) Leave() error {
	if err := r.write(protocol.LeaveRoomFrame(protocol.CloseConsented)); err != nil {
		return r.Close()
	}

	select {
	case <-r.done.Done():
	case <-time.After(leaveWait):
	}

	return r.Close()
}

func (r *Room) Close() error {
	return r.offerer.Close()
}

func (r *Room) write(frame []byte) error {
	r.writeMx.Lock()
	defer r.writeMx.Unlock()

	if r.done.HasFired() {
		return io.ErrClosedPipe
	}

	_, err := r.channel.WriteDataChannel(frame, false)

	return err
}

func (r *Room) readLoop() {
	defer close(r.messages)
	defer r.done.Fire()

	buf := make([]byte, readBufferSize)

	for {
		n, _, err := r.channel.ReadDataChannel(buf)
		if err != nil {
			r.fail(ErrClosedBeforeJoin)

			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		if protocol.IsControl(data) {
			if data[0] == protocol.Ping {
				if err := r.write(protocol.PongFrame); err != nil {
					log.Debugf("pong: %s", err)
				}
			}

			continue
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			log.Debugf("room %s: %s", r.ID, err)

			continue
		}

		switch frame.Code {
		case protocol.JoinRoom:
			r.joined.Fire()
		case protocol.Error:
			if !r.joined.HasFired() {
				r.fail(&matchmaker.Error{Code: frame.IntType(), Message: frame.StringPayload()})

				continue
			}

			r.messages <- frame
		case protocol.LeaveRoom:
			r.mx.Lock()
			r.leaveCode = frame.IntType()
			r.mx.Unlock()
		case protocol.RoomData:
			r.messages <- frame
		}
	}
}

// fail records why joining failed, if the room was not joined yet and no
// earlier reason is known.
func (r *Room) fail(err error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if r.joined.HasFired() || r.joinErr != nil {
		return
	}

	r.joinErr = err
}

func (r *Room) joinError() error {
	r.mx.Lock()
	defer r.mx.Unlock()

	return r.joinErr
}
