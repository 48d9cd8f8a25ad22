package matchmaker

import (
	"context"

	"github.com/pkg/errors"
)

// Hook runs after a seat reservation was made and may amend it. An error
// fails the reservation.
type Hook interface {
	OnSeatReservation(ctx context.Context, req *JoinRequest, reservation *SeatReservation) error
}

type HookFunc func(ctx context.Context, req *JoinRequest, reservation *SeatReservation) error

func (f HookFunc) OnSeatReservation(ctx context.Context, req *JoinRequest, reservation *SeatReservation) error {
	return f(ctx, req, reservation)
}

type interceptor struct {
	Coordinator

	hooks []Hook
}

// Intercept wraps coordinator so every reservation method runs hooks, in
// order, on the reservation it produced. When a hook fails, the seat is given
// back if coordinator is a SeatReleaser.
func Intercept(coordinator Coordinator, hooks ...Hook) Coordinator {
	return &interceptor{
		Coordinator: coordinator,
		hooks:       hooks,
	}
}

func (i *interceptor) Create(ctx context.Context, roomName string, options Options) (*SeatReservation, error) {
	return i.run(ctx, MethodCreate, roomName, options, i.Coordinator.Create)
}

func (i *interceptor) Join(ctx context.Context, roomName string, options Options) (*SeatReservation, error) {
	return i.run(ctx, MethodJoin, roomName, options, i.Coordinator.Join)
}

func (i *interceptor) JoinOrCreate(ctx context.Context, roomName string, options Options) (*SeatReservation, error) {
	return i.run(ctx, MethodJoinOrCreate, roomName, options, i.Coordinator.JoinOrCreate)
}

func (i *interceptor) JoinByID(ctx context.Context, roomID string, options Options) (*SeatReservation, error) {
	return i.run(ctx, MethodJoinByID, roomID, options, i.Coordinator.JoinByID)
}

type reserveFunc func(ctx context.Context, roomName string, options Options) (*SeatReservation, error)

func (i *interceptor) run(ctx context.Context, method, roomName string, options Options, reserve reserveFunc) (*SeatReservation, error) {
	reservation, err := reserve(ctx, roomName, options)
	if err != nil {
		return nil, err
	}

	req := &JoinRequest{
		Method:   method,
		RoomName: roomName,
		Options:  options,
	}

	for _, hook := range i.hooks {
		if err := hook.OnSeatReservation(ctx, req, reservation); err != nil {
			if releaser, ok := i.Coordinator.(SeatReleaser); ok {
				releaser.ReleaseSeat(reservation)
			}

			return nil, errors.Wrap(err, "seat reservation hook")
		}
	}

	return reservation, nil
}
