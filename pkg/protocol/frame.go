package protocol

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrEmptyFrame = errors.New("empty frame")

// Frame is a decoded room-level frame.
type Frame struct {
	Code byte

	// Type is the ROOM_DATA message type (string or number), the ERROR code,
	// the LEAVE_ROOM close code or the JOIN_ROOM serializer id.
	Type any

	// Payload is the raw msgpack value following Type, if any.
	Payload msgpack.RawMessage
}

func encode(code byte, values ...any) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte(code)

	enc := msgpack.NewEncoder(buf)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return nil, errors.Wrapf(err, "encode frame %d", code)
		}
	}

	return buf.Bytes(), nil
}

// RoomDataFrame encodes a ROOM_DATA frame. A nil payload is omitted from the
// frame.
func RoomDataFrame(messageType any, payload any) ([]byte, error) {
	if payload == nil {
		return encode(RoomData, messageType)
	}

	return encode(RoomData, messageType, payload)
}

func ErrorFrame(code int, message string) []byte {
	frame, err := encode(Error, code, message)
	if err != nil {
		// int and string always encode
		panic(err)
	}

	return frame
}

func JoinRoomFrame(serializerID string) []byte {
	frame, err := encode(JoinRoom, serializerID)
	if err != nil {
		panic(err)
	}

	return frame
}

func LeaveRoomFrame(code int) []byte {
	frame, err := encode(LeaveRoom, code)
	if err != nil {
		panic(err)
	}

	return frame
}

// Decode splits a frame into its code, type and raw payload. Control frames
// decode to a Frame with only Code set.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	frame := &Frame{Code: data[0]}
	if len(data) == 1 {
		return frame, nil
	}

	r := bytes.NewReader(data[1:])
	dec := msgpack.NewDecoder(r)

	t, err := dec.DecodeInterface()
	if err != nil {
		return nil, errors.Wrapf(err, "decode frame %d type", frame.Code)
	}
	frame.Type = t

	if r.Len() == 0 {
		return frame, nil
	}

	raw, err := dec.DecodeRaw()
	if err != nil {
		return nil, errors.Wrapf(err, "decode frame %d payload", frame.Code)
	}
	frame.Payload = raw

	return frame, nil
}

// DecodePayload unmarshals the frame payload into v.
func (f *Frame) DecodePayload(v any) error {
	if len(f.Payload) == 0 {
		return nil
	}

	return msgpack.Unmarshal(f.Payload, v)
}

// IntType returns Type as an int for ERROR and LEAVE_ROOM frames.
func (f *Frame) IntType() int {
	switch v := f.Type.(type) {
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case int:
		return v
	}

	return 0
}

// StringPayload returns the payload decoded as a string, used for ERROR
// messages.
func (f *Frame) StringPayload() string {
	var s string
	if err := f.DecodePayload(&s); err != nil {
		return ""
	}

	return s
}
