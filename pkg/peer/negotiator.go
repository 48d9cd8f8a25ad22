package peer

import (
	"sync"

	"rtc-transport/pkg/log"
	xsync "rtc-transport/pkg/sync"

	"github.com/pion/datachannel"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
)

// Negotiator is the part shared by both sides of a negotiation.
type Negotiator interface {
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription

	// Candidates returns the local candidates gathered so far.
	Candidates() []webrtc.ICECandidateInit

	// Gathered fires once local gathering is complete.
	Gathered() <-chan struct{}

	// ChannelOpen fires once the data channel is open and detached.
	ChannelOpen() <-chan struct{}

	Close() error
}

type session struct {
	conn *webrtc.PeerConnection

	candidates   []webrtc.ICECandidateInit
	candidatesMx sync.Mutex

	dataChannel *webrtc.DataChannel
	channel     datachannel.ReadWriteCloser
	channelMx   sync.Mutex

	gathered *xsync.Event
	open     *xsync.Event
	closed   *xsync.Event
}

func newSession(api *API) (*session, error) {
	conn, err := api.newPeerConnection()
	if err != nil {
		return nil, err
	}

	s := &session{
		conn:     conn,
		gathered: xsync.NewEvent(),
		open:     xsync.NewEvent(),
		closed:   xsync.NewEvent(),
	}

	s.conn.OnICECandidate(s.onConnICECandidate)
	s.conn.OnConnectionStateChange(s.onConnStateChange)

	return s, nil
}

func (s *session) onConnICECandidate(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		s.gathered.Fire()

		return
	}

	s.candidatesMx.Lock()
	defer s.candidatesMx.Unlock()

	s.candidates = append(s.candidates, candidate.ToJSON())
}

func (s *session) onConnStateChange(state webrtc.PeerConnectionState) {
	log.Debug("peer connection state changed: ", state)
}

func (s *session) registerDataChannel(channel *webrtc.DataChannel) {
	s.channelMx.Lock()
	if s.dataChannel != nil {
		s.channelMx.Unlock()
		log.Warnf("ignoring extra data channel %q", channel.Label())

		return
	}
	s.dataChannel = channel
	s.channelMx.Unlock()

	channel.OnOpen(func() {
		rwc, err := channel.Detach()
		if err != nil {
			log.Error(err)

			return
		}

		s.channelMx.Lock()
		s.channel = rwc
		s.channelMx.Unlock()

		s.open.Fire()
	})
}

func (s *session) LocalDescription() *webrtc.SessionDescription {
	return s.conn.LocalDescription()
}

func (s *session) RemoteDescription() *webrtc.SessionDescription {
	return s.conn.RemoteDescription()
}

func (s *session) Candidates() []webrtc.ICECandidateInit {
	s.candidatesMx.Lock()
	defer s.candidatesMx.Unlock()

	out := make([]webrtc.ICECandidateInit, len(s.candidates))
	copy(out, s.candidates)

	return out
}

func (s *session) Gathered() <-chan struct{} {
	return s.gathered.Done()
}

func (s *session) ChannelOpen() <-chan struct{} {
	return s.open.Done()
}

// Channel returns the detached data channel, nil until ChannelOpen fires.
func (s *session) Channel() datachannel.ReadWriteCloser {
	s.channelMx.Lock()
	defer s.channelMx.Unlock()

	return s.channel
}

func (s *session) DataChannel() *webrtc.DataChannel {
	s.channelMx.Lock()
	defer s.channelMx.Unlock()

	return s.dataChannel
}

func (s *session) ConnectionState() webrtc.PeerConnectionState {
	return s.conn.ConnectionState()
}

func (s *session) addICECandidates(candidates []webrtc.ICECandidateInit) error {
	for _, candidate := range candidates {
		if err := s.conn.AddICECandidate(candidate); err != nil {
			return negotiationError("add candidate", err)
		}
	}

	return nil
}

func (s *session) Close() error {
	if !s.closed.Fire() {
		return nil
	}

	var err error

	if channel := s.Channel(); channel != nil {
		err = multierr.Append(err, channel.Close())
	}

	return multierr.Append(err, s.conn.Close())
}
