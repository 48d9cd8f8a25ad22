package peer

import (
	"context"
	"sync"

	"rtc-transport/pkg/log"
	xsync "rtc-transport/pkg/sync"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// Answerer is the responding side, created from a remote offer.
//
// Remote candidates received before local gathering completes are queued and
// applied in arrival order once it does.
type Answerer struct {
	*session

	pending  []webrtc.ICECandidateInit
	ready    bool
	drainErr error
	drained  *xsync.Event
	mx       sync.Mutex
}

var _ Negotiator = (*Answerer)(nil)

func NewAnswerer(api *API, offer webrtc.SessionDescription) (*Answerer, webrtc.SessionDescription, error) {
	if err := validateOffer(offer); err != nil {
		return nil, webrtc.SessionDescription{}, negotiationError("validate offer", err)
	}

	s, err := newSession(api)
	if err != nil {
		return nil, webrtc.SessionDescription{}, errors.Wrap(err, "peer connection")
	}

	a := &Answerer{
		session: s,
		drained: xsync.NewEvent(),
	}

	a.conn.OnDataChannel(a.registerDataChannel)

	if err := a.conn.SetRemoteDescription(offer); err != nil {
		a.Close()

		return nil, webrtc.SessionDescription{}, negotiationError("set remote offer", err)
	}

	answer, err := a.conn.CreateAnswer(nil)
	if err != nil {
		a.Close()

		return nil, webrtc.SessionDescription{}, negotiationError("create answer", err)
	}

	if err := a.conn.SetLocalDescription(answer); err != nil {
		a.Close()

		return nil, webrtc.SessionDescription{}, negotiationError("set local answer", err)
	}

	go a.drainWhenGathered()

	return a, answer, nil
}

func (a *Answerer) drainWhenGathered() {
	select {
	case <-a.gathered.Done():
	case <-a.closed.Done():
		a.drained.Fire()

		return
	}

	a.mx.Lock()
	pending := a.pending
	a.pending = nil
	a.ready = true
	a.drainErr = a.addICECandidates(pending)
	a.mx.Unlock()

	if a.drainErr != nil {
		log.Warn(a.drainErr)
	}

	a.drained.Fire()
}

// AddICECandidates applies the initiator's candidates once local gathering
// is complete, waiting for it if necessary. When ctx ends first the
// candidates stay queued and are still applied later.
func (a *Answerer) AddICECandidates(ctx context.Context, candidates ...webrtc.ICECandidateInit) error {
	a.mx.Lock()
	if a.ready {
		defer a.mx.Unlock()

		return a.addICECandidates(candidates)
	}
	a.pending = append(a.pending, candidates...)
	a.mx.Unlock()

	select {
	case <-a.drained.Done():
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait gathering")
	}

	a.mx.Lock()
	defer a.mx.Unlock()

	if !a.ready {
		return ErrClosed
	}

	return a.drainErr
}
