package connect

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrNilChannel means a caller tried to register without a live transport.
// That is a caller bug, not a recoverable condition.
var ErrNilChannel = errors.New("nil delivery channel")

// Channel is one user's live delivery transport.
type Channel interface {
	Send(payload []byte) error
	Ready() bool
	Close(code int, reason string)
}

type connection struct {
	channel      Channel
	registeredAt time.Time
}

// Registry tracks the single live connection per user. It is the sole
// owner of the connections map; nothing else reads or writes it.
type Registry struct {
	mu    sync.Mutex
	conns map[string]connection
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]connection),
		now:   time.Now,
	}
}

// Register installs the channel as the user's only live connection. If one
// already exists it is replaced first and closed after, so a concurrent
// Deliver never observes the user as absent mid-replace, and no two open
// channels ever coexist for one user.
func (r *Registry) Register(userID string, ch Channel) error {
	if ch == nil {
		return ErrNilChannel
	}

	r.mu.Lock()
	prev, replaced := r.conns[userID]
	r.conns[userID] = connection{channel: ch, registeredAt: r.now()}
	r.mu.Unlock()

	if replaced {
		prev.channel.Close(statusReplaced, "replaced by newer connection")
		log.Printf("[connect] replaced connection for user %s", userID)
	}
	return nil
}

// Unregister tears down the user's connection. Unknown users are a silent
// no-op: disconnect events can race each other.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	if ok {
		delete(r.conns, userID)
	}
	r.mu.Unlock()

	if ok {
		conn.channel.Close(statusGoingAway, "unregistered")
	}
}

// Release removes the user's entry only if it still points at ch. The
// close event of a replaced channel must not evict its successor.
func (r *Registry) Release(userID string, ch Channel) {
	r.mu.Lock()
	if conn, ok := r.conns[userID]; ok && conn.channel == ch {
		delete(r.conns, userID)
	}
	r.mu.Unlock()
}

func (r *Registry) IsConnected(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	return ok
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Deliver pushes a payload down the user's channel. It reports false for
// an absent user, a not-ready channel, or a failed send; a closed channel
// that has not been unregistered yet is a recoverable race, not an error.
func (r *Registry) Deliver(userID string, payload []byte) bool {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	r.mu.Unlock()

	if !ok || !conn.channel.Ready() {
		return false
	}
	if err := conn.channel.Send(payload); err != nil {
		log.Printf("[connect] send to user %s failed: %v", userID, err)
		return false
	}
	return true
}
