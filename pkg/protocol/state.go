package protocol

// ReadyState mirrors the coordinator's socket readiness enum so the room layer
// cannot tell a data channel from a socket.
type ReadyState int

const (
	Connecting ReadyState = 0
	Open       ReadyState = 1
	Closing    ReadyState = 2
	Closed     ReadyState = 3
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}

	return "unknown"
}

// ClientState is the logical join state of a room client.
type ClientState int

const (
	Joining ClientState = iota
	Joined
	Reconnected
	Leaving
)

func (s ClientState) String() string {
	switch s {
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Reconnected:
		return "reconnected"
	case Leaving:
		return "leaving"
	}

	return "unknown"
}
