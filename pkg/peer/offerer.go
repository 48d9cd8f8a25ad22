package peer

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// Offerer is the initiating side: it opens the data channel and creates the
// offer.
type Offerer struct {
	*session

	sessionID   string
	sessionIDMx sync.Mutex
}

var _ Negotiator = (*Offerer)(nil)

// NewOfferer creates a peer connection with one ordered data channel and sets
// the offer as local description, which starts gathering.
func NewOfferer(api *API) (*Offerer, webrtc.SessionDescription, error) {
	s, err := newSession(api)
	if err != nil {
		return nil, webrtc.SessionDescription{}, errors.Wrap(err, "peer connection")
	}

	o := &Offerer{session: s}

	ordered := true
	channel, err := o.conn.CreateDataChannel(api.cfg.Label, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		o.Close()

		return nil, webrtc.SessionDescription{}, errors.Wrap(err, "data channel")
	}

	o.registerDataChannel(channel)

	offer, err := o.conn.CreateOffer(nil)
	if err != nil {
		o.Close()

		return nil, webrtc.SessionDescription{}, negotiationError("create offer", err)
	}

	if err := o.conn.SetLocalDescription(offer); err != nil {
		o.Close()

		return nil, webrtc.SessionDescription{}, negotiationError("set local offer", err)
	}

	return o, offer, nil
}

// Connect applies the remote answer and waits for local gathering to finish.
// It returns every local candidate, which may be none.
func (o *Offerer) Connect(ctx context.Context, answer webrtc.SessionDescription) ([]webrtc.ICECandidateInit, error) {
	if answer.Type != webrtc.SDPTypeAnswer {
		return nil, negotiationError("set remote answer", errors.Wrapf(ErrUnexpectedSDPType, "got %q", answer.Type.String()))
	}

	if err := o.conn.SetRemoteDescription(answer); err != nil {
		return nil, negotiationError("set remote answer", err)
	}

	select {
	case <-o.gathered.Done():
	case <-o.closed.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait gathering")
	}

	return o.Candidates(), nil
}

// AddICECandidates applies the responder's candidates. Both descriptions
// must be set.
func (o *Offerer) AddICECandidates(candidates ...webrtc.ICECandidateInit) error {
	if o.conn.LocalDescription() == nil || o.conn.RemoteDescription() == nil {
		return negotiationError("add candidate", ErrNotNegotiated)
	}

	return o.addICECandidates(candidates)
}

func (o *Offerer) SetSessionID(id string) {
	o.sessionIDMx.Lock()
	defer o.sessionIDMx.Unlock()

	o.sessionID = id
}

func (o *Offerer) SessionID() string {
	o.sessionIDMx.Lock()
	defer o.sessionIDMx.Unlock()

	return o.sessionID
}
