package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/matchmaker"
	"rtc-transport/pkg/peer"
	"rtc-transport/pkg/protocol"
	"rtc-transport/pkg/registry"
	"rtc-transport/pkg/signal"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

var (
	ErrReplaced           = errors.New("session replaced by a new reservation")
	ErrChannelOpenTimeout = errors.New("data channel not open before the seat reservation expired")
)

type Config struct {
	PingInterval        time.Duration
	PingMaxRetries      int
	SeatReservationTime time.Duration
}

// WebRTCTransport answers the rtcOffer carried by seat reservation requests
// and hands every resulting data channel to its room as a Client.
type WebRTCTransport struct {
	cfg Config

	api         *peer.API
	coordinator matchmaker.Coordinator
	registry    *registry.Registry[*Session]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ matchmaker.Hook = (*WebRTCTransport)(nil)

func NewWebRTCTransport(cfg Config, api *peer.API, coordinator matchmaker.Coordinator) *WebRTCTransport {
	if cfg.SeatReservationTime <= 0 {
		cfg.SeatReservationTime = matchmaker.DefaultSeatReservationTime
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &WebRTCTransport{
		cfg:         cfg,
		api:         api,
		coordinator: coordinator,
		registry: registry.New[*Session](registry.Config{
			PingInterval:   cfg.PingInterval,
			PingMaxRetries: cfg.PingMaxRetries,
		}),
		ctx:    ctx,
		cancel: cancel,
	}

	t.registry.OnEvict(func(id string, reason error) {
		log.WithSession(id).Infof("evicted: %s", reason)
	})

	return t
}

// Attach registers the candidate exchange method and the websocket fallback
// route on srv.
func (t *WebRTCTransport) Attach(srv *matchmaker.Server) {
	srv.Expose(signal.ShareMethod, t.exposedShareICECandidates)
	srv.HandleSocket(http.HandlerFunc(t.ServeWebsocket))
}

// Start runs the heartbeat until ctx is done or Shutdown is called.
func (t *WebRTCTransport) Start(ctx context.Context) {
	t.registry.Start(ctx)
}

// Shutdown closes every connection and waits for their sessions to wind
// down.
func (t *WebRTCTransport) Shutdown() error {
	t.cancel()

	err := t.registry.Shutdown()

	t.wg.Wait()

	return err
}

func (t *WebRTCTransport) Session(id string) (*Session, bool) {
	return t.registry.Get(id)
}

func (t *WebRTCTransport) Sessions() int {
	return t.registry.Len()
}

// OnSeatReservation answers the rtcOffer join option, if any, and stores the
// answer in the reservation. Reservations without an offer are left for the
// websocket route.
func (t *WebRTCTransport) OnSeatReservation(ctx context.Context, req *matchmaker.JoinRequest, reservation *matchmaker.SeatReservation) error {
	offer, err := req.RTCOffer()
	if err != nil {
		return &matchmaker.Error{Code: protocol.ErrMatchmakeInvalidCriteria, Message: err.Error()}
	}

	if offer == nil {
		return nil
	}

	id := reservation.SessionID
	logger := log.WithSession(id)

	answerer, answer, err := peer.NewAnswerer(t.api, *offer)
	if err != nil {
		return errors.Wrap(err, "answer offer")
	}

	session := newSession(id, reservation.Room.RoomID, answerer, OfferReceived)

	if t.api.Config().EmbedCandidates {
		if answer, err = t.completeAnswer(ctx, answerer); err != nil {
			answerer.Close()

			return err
		}
	}

	reservation.RTCAnswer = &answer

	if _, ok := t.registry.Get(id); ok {
		t.registry.Evict(id, ErrReplaced)
	}

	if err := t.registry.Register(id, session); err != nil {
		answerer.Close()

		return err
	}

	session.Transition(AnswerSent)

	logger.Debugf("answer sent for room %s", reservation.Room.RoomID)

	t.wg.Add(1)
	go t.serveDataChannel(session)

	return nil
}

func (t *WebRTCTransport) completeAnswer(ctx context.Context, answerer *peer.Answerer) (webrtc.SessionDescription, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.SeatReservationTime)
	defer cancel()

	select {
	case <-answerer.Gathered():
	case <-ctx.Done():
		return webrtc.SessionDescription{}, errors.Wrap(ctx.Err(), "gather candidates")
	}

	return *answerer.LocalDescription(), nil
}

// ShareICECandidates applies the client's candidates to its session once the
// session finished gathering and returns the session's own candidates.
func (t *WebRTCTransport) ShareICECandidates(ctx context.Context, roomName string, req signal.ShareRequest) (*signal.ShareResponse, error) {
	session, ok := t.registry.Get(req.SessionID)
	if !ok || session.answerer == nil {
		return nil, errors.Wrap(registry.ErrSessionNotFound, req.SessionID)
	}

	session.Transition(CandidatesExchanging)

	ctx, cancel := context.WithTimeout(ctx, t.cfg.SeatReservationTime)
	defer cancel()

	if err := session.answerer.AddICECandidates(ctx, req.Candidates...); err != nil {
		return nil, err
	}

	candidates := session.answerer.Candidates()

	log.WithSession(session.id).Debugf("exchanged candidates: %d remote, %d local", len(req.Candidates), len(candidates))

	return &signal.ShareResponse{Candidates: candidates}, nil
}

func (t *WebRTCTransport) exposedShareICECandidates(ctx context.Context, roomName string, body json.RawMessage) (any, error) {
	var req signal.ShareRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &matchmaker.Error{Code: protocol.ErrMatchmakeInvalidCriteria, Message: "invalid candidate exchange request"}
	}

	res, err := t.ShareICECandidates(ctx, roomName, req)
	if errors.Is(err, registry.ErrSessionNotFound) {
		return nil, &matchmaker.Error{Code: protocol.ErrMatchmakeExpired, Message: "session not found"}
	}

	return res, err
}

// ServeWebsocket is the GET /{roomId}?sessionId= route for clients that
// reserved a seat without an rtcOffer.
func (t *WebRTCTransport) ServeWebsocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	sessionID := r.URL.Query().Get("sessionId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("websocket upgrade: %s", err)

		return
	}

	channel := NewWebsocketChannel(conn)
	session := newSession(sessionID, roomID, nil, ChannelOpen)

	if len(sessionID) == 0 {
		err = registry.ErrSessionNotFound
	} else {
		err = t.registry.Register(sessionID, session)
	}

	if err != nil {
		channel.Start(Handler{})
		NewClient(sessionID, channel).Error(protocol.ErrMatchmakeExpired, err.Error())
		channel.Close()

		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		t.serve(session, channel)
	}()
}

func (t *WebRTCTransport) serveDataChannel(session *Session) {
	defer t.wg.Done()

	timer := time.NewTimer(t.cfg.SeatReservationTime)
	defer timer.Stop()

	answerer := session.answerer

	select {
	case <-answerer.ChannelOpen():
	case <-timer.C:
		log.WithSession(session.id).Info(ErrChannelOpenTimeout)
		t.drop(session)

		return
	case <-session.Closed():
		return
	case <-t.ctx.Done():
		t.drop(session)

		return
	}

	t.serve(session, NewDataChannel(answerer.Channel(), answerer.DataChannel()))
}

// serve runs a session from its open channel to its close: first PING, seat
// check, room join and finally room leave.
func (t *WebRTCTransport) serve(session *Session, channel Channel) {
	logger := log.WithSession(session.id)

	client := NewClient(session.id, channel)
	session.attach(channel, client)

	handler := Handler{
		OnPong: func() {
			t.registry.Pong(session.id)
		},
		OnFrame: func(frame []byte) {
			if room := session.Room(); room != nil {
				room.Message(client, frame)
			}
		},
	}

	channel.Start(handler)

	if !channel.Ping() {
		logger.Debug("first ping not sent")
	}

	room, ok := t.coordinator.GetRoomByID(session.roomID)
	if !ok || !room.HasReservedSeat(session.id) {
		client.Error(protocol.ErrMatchmakeExpired, "seat reservation expired.")
		t.drop(session)

		return
	}

	if err := room.Join(t.ctx, client); err != nil {
		code, message := matchmaker.ErrorCode(err)
		logger.Infof("join failed (%d): %s", code, message)

		client.Error(code, message)
		t.drop(session)

		return
	}

	session.setRoom(room)
	session.Transition(Joined)

	select {
	case <-channel.Done():
	case <-session.Closed():
	}

	room.Leave(client, client.LeaveCode())
	t.drop(session)
}

func (t *WebRTCTransport) drop(session *Session) {
	t.registry.Remove(session.id, session)

	if err := session.Close(); err != nil {
		log.WithSession(session.id).Debugf("close: %s", err)
	}
}
