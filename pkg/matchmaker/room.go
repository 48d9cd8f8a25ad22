package matchmaker

import (
	"context"
	"sync"
	"time"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/protocol"
)

type seat struct {
	options Options
	expires time.Time
}

// LocalRoom is a room owned by a LocalCoordinator.
type LocalRoom struct {
	id   string
	name string

	coordinator *LocalCoordinator
	definition  RoomDefinition
	handler     RoomHandler

	seats   map[string]seat
	clients map[string]Client
	mx      sync.Mutex
}

var _ Room = (*LocalRoom)(nil)

func (r *LocalRoom) ID() string {
	return r.id
}

func (r *LocalRoom) Name() string {
	return r.name
}

func (r *LocalRoom) isFull() bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.pruneLocked()

	return r.definition.MaxClients > 0 && len(r.seats)+len(r.clients) >= r.definition.MaxClients
}

func (r *LocalRoom) pruneLocked() {
	now := r.coordinator.now()

	for id, s := range r.seats {
		if now.After(s.expires) {
			delete(r.seats, id)
		}
	}
}

func (r *LocalRoom) reserve(options Options) (*SeatReservation, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	sessionID := newID()

	r.seats[sessionID] = seat{
		options: options,
		expires: r.coordinator.now().Add(r.coordinator.cfg.SeatReservationTime),
	}

	return &SeatReservation{
		Room: RoomInfo{
			RoomID:    r.id,
			Name:      r.name,
			ProcessID: r.coordinator.cfg.ProcessID,
		},
		SessionID: sessionID,
	}, nil
}

// release drops the seat of sessionID and reports whether it was held.
func (r *LocalRoom) release(sessionID string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.seats[sessionID]; !ok {
		return false
	}
	delete(r.seats, sessionID)

	return true
}

func (r *LocalRoom) HasReservedSeat(sessionID string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	s, ok := r.seats[sessionID]

	return ok && !r.coordinator.now().After(s.expires)
}

func (r *LocalRoom) Join(ctx context.Context, client Client) error {
	sessionID := client.SessionID()

	r.mx.Lock()
	s, ok := r.seats[sessionID]
	delete(r.seats, sessionID)
	r.mx.Unlock()

	if !ok || r.coordinator.now().After(s.expires) {
		return &Error{Code: protocol.ErrMatchmakeExpired, Message: "seat reservation expired."}
	}

	if err := r.handler.OnJoin(ctx, r, client, s.options); err != nil {
		return err
	}

	r.mx.Lock()
	r.clients[sessionID] = client
	r.mx.Unlock()

	client.ConfirmJoin(protocol.JoinRoomFrame(DefaultSerializer))

	log.WithSession(sessionID).Infof("joined room %s", r.id)

	return nil
}

func (r *LocalRoom) Leave(client Client, code int) {
	sessionID := client.SessionID()

	r.mx.Lock()
	current, ok := r.clients[sessionID]
	if ok && current == client {
		delete(r.clients, sessionID)
	}
	empty := len(r.clients) == 0 && len(r.seats) == 0
	r.mx.Unlock()

	if !ok || current != client {
		return
	}

	r.handler.OnLeave(r, client, code == protocol.CloseConsented)

	log.WithSession(sessionID).Infof("left room %s (code %d)", r.id, code)

	if empty {
		r.coordinator.dispose(r)
	}
}

func (r *LocalRoom) Message(client Client, frame []byte) {
	f, err := protocol.Decode(frame)
	if err != nil {
		log.WithSession(client.SessionID()).Debugf("bad frame: %s", err)

		return
	}

	switch f.Code {
	case protocol.RoomData:
		r.handler.OnMessage(r, client, f.Type, f.Payload)
	case protocol.LeaveRoom:
		client.Leave(protocol.CloseConsented)
	default:
		log.WithSession(client.SessionID()).Debugf("unexpected frame %d", f.Code)
	}
}

// Clients returns the joined clients.
func (r *LocalRoom) Clients() []Client {
	r.mx.Lock()
	defer r.mx.Unlock()

	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}

	return out
}

func (r *LocalRoom) Broadcast(messageType any, payload any) error {
	for _, c := range r.Clients() {
		if err := c.Send(messageType, payload); err != nil {
			return err
		}
	}

	return nil
}
