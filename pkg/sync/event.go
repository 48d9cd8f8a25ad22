package sync

import (
	"context"
	"sync"
)

// Event is a one-shot signal. Fire may be called any number of times from any
// goroutine; only the first call has an effect.
type Event struct {
	once sync.Once
	ch   chan struct{}
	init sync.Once
}

func NewEvent() *Event {
	e := &Event{}
	e.lazyInit()

	return e
}

func (e *Event) lazyInit() {
	e.init.Do(func() {
		e.ch = make(chan struct{})
	})
}

// Fire reports whether this call was the one that fired the event.
func (e *Event) Fire() bool {
	e.lazyInit()

	fired := false
	e.once.Do(func() {
		close(e.ch)
		fired = true
	})

	return fired
}

func (e *Event) Done() <-chan struct{} {
	e.lazyInit()

	return e.ch
}

func (e *Event) HasFired() bool {
	select {
	case <-e.Done():
		return true
	default:
		return false
	}
}

// Wait blocks until the event fires or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
