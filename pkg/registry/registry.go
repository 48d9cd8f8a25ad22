// Package registry tracks live peer sessions by session id and evicts the
// ones that stop answering PINGs.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rtc-transport/pkg/log"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	DefaultPingInterval   = 1500 * time.Millisecond
	DefaultPingMaxRetries = 2
)

var (
	ErrSessionExists   = errors.New("session already registered")
	ErrSessionNotFound = errors.New("session not found")
)

// LivenessTimeoutError is the eviction reason of a session that missed more
// PONGs than allowed.
type LivenessTimeoutError struct {
	SessionID string
	Misses    int
}

func (e *LivenessTimeoutError) Error() string {
	return fmt.Sprintf("session %s: %d pings unanswered", e.SessionID, e.Misses)
}

// Conn is a registered connection. Ping must not block: it enqueues a PING
// and reports whether it could.
type Conn interface {
	comparable

	IsOpen() bool
	Ping() bool
	Close() error
}

type Config struct {
	// PingInterval is the sweep period. Zero disables the heartbeat.
	PingInterval time.Duration

	// PingMaxRetries is how many consecutive sweeps may pass without a PONG.
	// Zero disables the heartbeat.
	PingMaxRetries int
}

type entry[C Conn] struct {
	conn      C
	misses    int
	closeOnce sync.Once
	closeErr  error
}

func (e *entry[C]) close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.conn.Close()
	})

	return e.closeErr
}

type Registry[C Conn] struct {
	cfg Config

	entries map[string]*entry[C]
	mx      sync.RWMutex

	onEvict func(id string, reason error)

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// evicting tracks closes started by the sweep.
	evicting sync.WaitGroup
}

func New[C Conn](cfg Config) *Registry[C] {
	return &Registry[C]{
		cfg:     cfg,
		entries: make(map[string]*entry[C]),
		cancel:  func() {},
	}
}

// OnEvict sets an observer called after a session is evicted.
func (r *Registry[C]) OnEvict(f func(id string, reason error)) {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.onEvict = f
}

func (r *Registry[C]) Register(id string, conn C) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.entries[id]; ok {
		return errors.Wrap(ErrSessionExists, id)
	}

	r.entries[id] = &entry[C]{conn: conn}

	return nil
}

func (r *Registry[C]) Get(id string) (C, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		var zero C
		return zero, false
	}

	return e.conn, true
}

// Remove deletes id only if it is still bound to conn, so a late close of an
// old connection cannot drop a newer one registered under the same id.
func (r *Registry[C]) Remove(id string, conn C) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	e, ok := r.entries[id]
	if !ok || e.conn != conn {
		return false
	}

	delete(r.entries, id)

	return true
}

// Evict removes id and closes its connection exactly once.
func (r *Registry[C]) Evict(id string, reason error) {
	r.mx.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mx.Unlock()

	if ok {
		r.finishEvict(id, e, reason)
	}
}

// evictEntry removes e and closes it on its own goroutine, so a slow peer
// never holds up the sweep.
func (r *Registry[C]) evictEntry(id string, e *entry[C], reason error) {
	r.mx.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	r.mx.Unlock()

	r.evicting.Add(1)
	go func() {
		defer r.evicting.Done()

		r.finishEvict(id, e, reason)
	}()
}

func (r *Registry[C]) finishEvict(id string, e *entry[C], reason error) {
	if err := e.close(); err != nil {
		log.WithSession(id).Debugf("close on evict: %s", err)
	}

	r.mx.RLock()
	onEvict := r.onEvict
	r.mx.RUnlock()

	if onEvict != nil {
		onEvict(id, reason)
	}
}

// Pong resets the miss counter of id.
func (r *Registry[C]) Pong(id string) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if e, ok := r.entries[id]; ok {
		e.misses = 0
	}
}

func (r *Registry[C]) Misses(id string) int {
	r.mx.RLock()
	defer r.mx.RUnlock()

	if e, ok := r.entries[id]; ok {
		return e.misses
	}

	return 0
}

func (r *Registry[C]) Len() int {
	r.mx.RLock()
	defer r.mx.RUnlock()

	return len(r.entries)
}

func (r *Registry[C]) HeartbeatEnabled() bool {
	return r.cfg.PingInterval > 0 && r.cfg.PingMaxRetries > 0
}

// Start runs the liveness sweep every PingInterval until ctx is done or
// Shutdown is called.
func (r *Registry[C]) Start(ctx context.Context) {
	if !r.HeartbeatEnabled() {
		log.Info("heartbeat disabled")

		return
	}

	r.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)

		r.mx.Lock()
		r.cancel = cancel
		r.mx.Unlock()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()

			ticker := time.NewTicker(r.cfg.PingInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.Sweep()
				}
			}
		}()
	})
}

type snapshot[C Conn] struct {
	id    string
	entry *entry[C]
}

// Sweep runs one liveness pass over a snapshot of the open sessions: each
// miss counter is incremented, sessions over the limit are evicted and the
// rest are pinged.
func (r *Registry[C]) Sweep() {
	r.mx.RLock()
	entries := make([]snapshot[C], 0, len(r.entries))
	for id, e := range r.entries {
		entries = append(entries, snapshot[C]{id: id, entry: e})
	}
	r.mx.RUnlock()

	for _, s := range entries {
		if !s.entry.conn.IsOpen() {
			continue
		}

		r.mx.Lock()
		if r.entries[s.id] != s.entry {
			r.mx.Unlock()

			continue
		}
		s.entry.misses++
		misses := s.entry.misses
		r.mx.Unlock()

		if misses > r.cfg.PingMaxRetries {
			r.evictEntry(s.id, s.entry, &LivenessTimeoutError{SessionID: s.id, Misses: misses})

			continue
		}

		if !s.entry.conn.Ping() {
			log.WithSession(s.id).Debug("ping dropped, send queue full")
		}
	}
}

// Shutdown stops the sweep, closes every registered connection and waits for
// pending evictions.
func (r *Registry[C]) Shutdown() error {
	r.mx.Lock()
	cancel := r.cancel
	entries := r.entries
	r.entries = make(map[string]*entry[C])
	r.mx.Unlock()

	cancel()
	r.wg.Wait()

	defer r.evicting.Wait()

	var err error
	for id, e := range entries {
		err = multierr.Append(err, errors.Wrap(e.close(), id))
	}

	return err
}
