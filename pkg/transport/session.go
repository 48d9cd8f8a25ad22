package transport

import (
	"sync"
	"time"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/matchmaker"
	"rtc-transport/pkg/peer"
	"rtc-transport/pkg/protocol"
	xsync "rtc-transport/pkg/sync"

	"go.uber.org/multierr"
)

// closeFlushWait bounds how long Close waits for queued frames to go out
// before tearing down the peer connection.
const closeFlushWait = 2 * time.Second

type SessionState int

const (
	OfferReceived SessionState = iota
	AnswerSent
	CandidatesExchanging
	ChannelOpen
	Joined
	Closing
	Closed
)

func (s SessionState) String() string {
	switch s {
	case OfferReceived:
		return "offer-received"
	case AnswerSent:
		return "answer-sent"
	case CandidatesExchanging:
		return "candidates-exchanging"
	case ChannelOpen:
		return "channel-open"
	case Joined:
		return "joined"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}

	return "unknown"
}

var transitions = map[SessionState][]SessionState{
	OfferReceived:        {AnswerSent, Closing},
	AnswerSent:           {CandidatesExchanging, ChannelOpen, Closing},
	CandidatesExchanging: {ChannelOpen, Closing},
	ChannelOpen:          {Joined, Closing},
	Joined:               {Closing},
	Closing:              {},
}

func canTransition(from, to SessionState) bool {
	if to == Closed {
		return from != Closed
	}

	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// Session is the server side of one player connection, registered under its
// seat reservation's session id.
type Session struct {
	id     string
	roomID string

	// answerer is nil for websocket sessions.
	answerer *peer.Answerer

	state   SessionState
	channel Channel
	client  *Client
	room    matchmaker.Room
	mx      sync.Mutex

	closed *xsync.Event
}

func newSession(id, roomID string, answerer *peer.Answerer, state SessionState) *Session {
	return &Session{
		id:       id,
		roomID:   roomID,
		answerer: answerer,
		state:    state,
		closed:   xsync.NewEvent(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() SessionState {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.state
}

// Transition moves the session to state. Illegal moves are logged and
// ignored.
func (s *Session) Transition(state SessionState) bool {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.transitionLocked(state)
}

func (s *Session) transitionLocked(state SessionState) bool {
	if !canTransition(s.state, state) {
		log.WithSession(s.id).Debugf("ignoring transition %s -> %s", s.state, state)

		return false
	}

	s.state = state

	return true
}

func (s *Session) attach(channel Channel, client *Client) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.channel = channel
	s.client = client

	if s.state != ChannelOpen {
		s.transitionLocked(ChannelOpen)
	}
}

func (s *Session) setRoom(room matchmaker.Room) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.room = room
}

// Room returns the room once the client joined, nil before.
func (s *Session) Room() matchmaker.Room {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.room
}

func (s *Session) Client() *Client {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.client
}

func (s *Session) IsOpen() bool {
	s.mx.Lock()
	channel := s.channel
	s.mx.Unlock()

	return channel != nil && channel.ReadyState() == protocol.Open
}

func (s *Session) Ping() bool {
	s.mx.Lock()
	channel := s.channel
	s.mx.Unlock()

	return channel != nil && channel.Ping()
}

// Closed fires once Close has run.
func (s *Session) Closed() <-chan struct{} {
	return s.closed.Done()
}

func (s *Session) Close() error {
	s.mx.Lock()
	if s.state == Closed || s.state == Closing {
		s.mx.Unlock()

		return nil
	}
	s.transitionLocked(Closing)
	channel := s.channel
	s.mx.Unlock()

	var err error

	if channel != nil {
		err = multierr.Append(err, channel.Close())

		select {
		case <-channel.Done():
		case <-time.After(closeFlushWait):
		}
	}

	if s.answerer != nil {
		err = multierr.Append(err, s.answerer.Close())
	}

	s.Transition(Closed)
	s.closed.Fire()

	return err
}
