package matchmaker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/protocol"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	DefaultSeatReservationTime = 15 * time.Second
	DefaultSerializer          = "none"
)

// RoomHandler holds the game logic of a room defined on a LocalCoordinator.
type RoomHandler interface {
	OnJoin(ctx context.Context, room *LocalRoom, client Client, options Options) error
	OnMessage(room *LocalRoom, client Client, messageType any, payload msgpack.RawMessage)
	OnLeave(room *LocalRoom, client Client, consented bool)
	OnDispose(room *LocalRoom)
}

type RoomDefinition struct {
	// MaxClients caps joined clients plus pending reservations. Zero means
	// unlimited.
	MaxClients int
	Handler    func() RoomHandler
}

type LocalConfig struct {
	ProcessID           string
	SeatReservationTime time.Duration
}

// LocalCoordinator is an in-process coordinator. Rooms are created on demand
// from definitions registered with Define.
type LocalCoordinator struct {
	cfg LocalConfig

	definitions map[string]RoomDefinition
	rooms       map[string]*LocalRoom
	mx          sync.Mutex

	now func() time.Time
}

var _ Coordinator = (*LocalCoordinator)(nil)

func NewLocalCoordinator(cfg LocalConfig) *LocalCoordinator {
	if len(cfg.ProcessID) == 0 {
		cfg.ProcessID = uuid.NewString()
	}
	if cfg.SeatReservationTime <= 0 {
		cfg.SeatReservationTime = DefaultSeatReservationTime
	}

	return &LocalCoordinator{
		cfg:         cfg,
		definitions: make(map[string]RoomDefinition),
		rooms:       make(map[string]*LocalRoom),
		now:         time.Now,
	}
}

func (c *LocalCoordinator) Define(name string, definition RoomDefinition) {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.definitions[name] = definition
}

func (c *LocalCoordinator) Create(ctx context.Context, roomName string, options Options) (*SeatReservation, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	room, err := c.createLocked(roomName)
	if err != nil {
		return nil, err
	}

	return room.reserve(options)
}

func (c *LocalCoordinator) Join(ctx context.Context, roomName string, options Options) (*SeatReservation, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if _, ok := c.definitions[roomName]; !ok {
		return nil, errNoHandler(roomName)
	}

	room := c.findAvailableLocked(roomName)
	if room == nil {
		return nil, &Error{Code: protocol.ErrMatchmakeInvalidCriteria, Message: "no rooms found with provided criteria"}
	}

	return room.reserve(options)
}

func (c *LocalCoordinator) JoinOrCreate(ctx context.Context, roomName string, options Options) (*SeatReservation, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	room := c.findAvailableLocked(roomName)
	if room == nil {
		var err error
		if room, err = c.createLocked(roomName); err != nil {
			return nil, err
		}
	}

	return room.reserve(options)
}

func (c *LocalCoordinator) JoinByID(ctx context.Context, roomID string, options Options) (*SeatReservation, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	room, ok := c.rooms[roomID]
	if !ok {
		return nil, &Error{Code: protocol.ErrMatchmakeInvalidRoomID, Message: fmt.Sprintf("room %q not found", roomID)}
	}

	return room.reserve(options)
}

func (c *LocalCoordinator) GetRoomByID(roomID string) (Room, bool) {
	c.mx.Lock()
	defer c.mx.Unlock()

	room, ok := c.rooms[roomID]
	if !ok {
		return nil, false
	}

	return room, true
}

// ReleaseSeat cancels an unused reservation and disposes its room if that
// leaves it empty.
func (c *LocalCoordinator) ReleaseSeat(reservation *SeatReservation) {
	c.mx.Lock()
	room, ok := c.rooms[reservation.Room.RoomID]
	c.mx.Unlock()

	if !ok || !room.release(reservation.SessionID) {
		return
	}

	log.WithSession(reservation.SessionID).Debugf("seat in room %s released", room.id)

	c.dispose(room)
}

// Rooms lists the ids of the live rooms, sorted.
func (c *LocalCoordinator) Rooms() []string {
	c.mx.Lock()
	defer c.mx.Unlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (c *LocalCoordinator) createLocked(roomName string) (*LocalRoom, error) {
	definition, ok := c.definitions[roomName]
	if !ok {
		return nil, errNoHandler(roomName)
	}

	room := &LocalRoom{
		id:          newID(),
		name:        roomName,
		coordinator: c,
		definition:  definition,
		handler:     definition.Handler(),
		seats:       make(map[string]seat),
		clients:     make(map[string]Client),
	}

	c.rooms[room.id] = room

	log.Infof("room %s (%s) created", room.id, roomName)

	return room, nil
}

func (c *LocalCoordinator) findAvailableLocked(roomName string) *LocalRoom {
	for _, room := range c.rooms {
		if room.name == roomName && !room.isFull() {
			return room
		}
	}

	return nil
}

// dispose drops room unless a reservation or join raced in since it
// emptied.
func (c *LocalCoordinator) dispose(room *LocalRoom) {
	c.mx.Lock()
	room.mx.Lock()
	empty := len(room.clients) == 0 && len(room.seats) == 0
	room.mx.Unlock()

	if !empty || c.rooms[room.id] != room {
		c.mx.Unlock()

		return
	}
	delete(c.rooms, room.id)
	c.mx.Unlock()

	room.handler.OnDispose(room)

	log.Infof("room %s (%s) disposed", room.id, room.name)
}

func errNoHandler(roomName string) error {
	return &Error{Code: protocol.ErrMatchmakeNoHandler, Message: fmt.Sprintf("provided room name %q not defined", roomName)}
}

// newID returns a short random id in the style of the coordinator's room
// and session ids.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
