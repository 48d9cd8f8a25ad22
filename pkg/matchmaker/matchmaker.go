// Package matchmaker describes the seat-reservation coordinator the transport
// plugs into, together with the HTTP matchmaking routes and a small
// in-process coordinator.
package matchmaker

import (
	"context"
	"encoding/json"
	"fmt"

	"rtc-transport/pkg/protocol"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// Reservation methods.
const (
	MethodCreate       = "create"
	MethodJoin         = "join"
	MethodJoinOrCreate = "joinOrCreate"
	MethodJoinByID     = "joinById"
)

// Options are the join options sent by the client, kept raw so each consumer
// decodes only what it needs.
type Options map[string]json.RawMessage

type RoomInfo struct {
	RoomID    string `json:"roomId"`
	Name      string `json:"name"`
	ProcessID string `json:"processId"`
}

type SeatReservation struct {
	Room      RoomInfo                   `json:"room"`
	SessionID string                     `json:"sessionId"`
	RTCAnswer *webrtc.SessionDescription `json:"rtcAnswer,omitempty"`
}

type JoinRequest struct {
	Method   string
	RoomName string
	Options  Options
}

// RTCOffer returns the rtcOffer join option, nil when absent.
func (r *JoinRequest) RTCOffer() (*webrtc.SessionDescription, error) {
	raw, ok := r.Options["rtcOffer"]
	if !ok || string(raw) == "null" {
		return nil, nil
	}

	offer := &webrtc.SessionDescription{}
	if err := json.Unmarshal(raw, offer); err != nil {
		return nil, errors.Wrap(err, "rtcOffer")
	}

	return offer, nil
}

// Error is a matchmaking failure reported to the client with its code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// ErrorCode extracts the code and message to report for err. Errors without
// a code are application errors.
func ErrorCode(err error) (int, string) {
	var mmErr *Error
	if errors.As(err, &mmErr) {
		return mmErr.Code, mmErr.Message
	}

	return protocol.ErrApplicationError, err.Error()
}

type Coordinator interface {
	Create(ctx context.Context, roomName string, options Options) (*SeatReservation, error)
	Join(ctx context.Context, roomName string, options Options) (*SeatReservation, error)
	JoinOrCreate(ctx context.Context, roomName string, options Options) (*SeatReservation, error)
	JoinByID(ctx context.Context, roomID string, options Options) (*SeatReservation, error)

	GetRoomByID(roomID string) (Room, bool)
}

// SeatReleaser is implemented by coordinators that can give a reserved seat
// back before it expires.
type SeatReleaser interface {
	ReleaseSeat(reservation *SeatReservation)
}

// Room is a live room as seen by a transport.
type Room interface {
	ID() string
	Name() string

	HasReservedSeat(sessionID string) bool

	// Join consumes the seat reservation of client and runs the room's join
	// logic. On success the room has called client.ConfirmJoin.
	Join(ctx context.Context, client Client) error

	// Leave is called once the client's connection has closed.
	Leave(client Client, code int)

	// Message delivers a room-level frame received from client.
	Message(client Client, frame []byte)
}

// Client is a connected player as seen by a room.
type Client interface {
	SessionID() string
	State() protocol.ClientState
	ReadyState() protocol.ReadyState

	Send(messageType any, payload any) error
	SendRaw(frame []byte)
	Error(code int, message string)
	Leave(code int)

	// ConfirmJoin sends the JOIN_ROOM ack, marks the client joined and
	// flushes everything sent while it was joining.
	ConfirmJoin(ack []byte)
}
