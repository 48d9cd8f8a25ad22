// Package protocol holds the frame codes shared by the data-channel transport,
// the websocket fallback and the room coordinator, together with the msgpack
// encoding used for everything past the leading code byte.
package protocol

// Data-channel control frames. They are a single byte long and never reach
// the room layer.
const (
	Ping byte = 1
	Pong byte = 2
)

// Room-level frame codes, shared with the coordinator's socket transport.
const (
	JoinRoom  byte = 10
	Error     byte = 11
	LeaveRoom byte = 12
	RoomData  byte = 13
)

// Matchmaking error codes.
const (
	ErrMatchmakeNoHandler       = 4210
	ErrMatchmakeInvalidCriteria = 4211
	ErrMatchmakeInvalidRoomID   = 4212
	ErrMatchmakeUnhandled       = 4213
	ErrMatchmakeExpired         = 4214
	ErrAuthFailed               = 4215
	ErrApplicationError         = 4216
)

// Close codes reported to the room when a client goes away.
const (
	CloseNormal    = 1000
	CloseAbnormal  = 1006
	CloseConsented = 4000
	CloseWithError = 4002
)

var (
	PingFrame = []byte{Ping}
	PongFrame = []byte{Pong}
)

// IsControl reports whether frame is a PING or PONG.
func IsControl(frame []byte) bool {
	return len(frame) == 1 && (frame[0] == Ping || frame[0] == Pong)
}
