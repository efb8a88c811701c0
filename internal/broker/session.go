package broker

import (
	"sync"

	"github.com/google/uuid"
	"github.com/opswatch/alert-engine/internal/domain/auth"
)

// Conn is the transport a session writes to. The websocket handler adapts
// its connection to this interface.
type Conn interface {
	WriteMessage(payload []byte) error
	Close() error
}

// recentEventIDs remembers the last N delivered event ids so a session
// hearing one event on several topics writes it once.
const recentEventIDSize = 128

type recentEventIDs struct {
	ids  [recentEventIDSize]string
	pos  int
	seen map[string]struct{}
}

func newRecentEventIDs() *recentEventIDs {
	return &recentEventIDs{seen: make(map[string]struct{}, recentEventIDSize)}
}

// observe records the id and reports whether it was already present.
// Only the writer goroutine touches it, so no locking.
func (r *recentEventIDs) observe(id string) bool {
	if _, ok := r.seen[id]; ok {
		return true
	}
	if old := r.ids[r.pos]; old != "" {
		delete(r.seen, old)
	}
	r.ids[r.pos] = id
	r.seen[id] = struct{}{}
	r.pos = (r.pos + 1) % recentEventIDSize
	return false
}

// queuedMessage is one item on a session's send queue: either a decoded
// topic event awaiting delivery filtering, or a raw control payload that
// goes straight to the wire.
type queuedMessage struct {
	evt *Event
	raw []byte
}

// Session is one connected notification client. A single writer goroutine
// drains the send queue, so wire writes and duplicate tracking never race.
type Session struct {
	ID       string
	Identity auth.Identity

	conn    Conn
	send    chan queuedMessage
	done    chan struct{}
	closing sync.Once
	unsubs  []func()
	recent  *recentEventIDs
}

func newSession(identity auth.Identity, conn Conn, queueSize int) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		conn:     conn,
		send:     make(chan queuedMessage, queueSize),
		done:     make(chan struct{}),
		recent:   newRecentEventIDs(),
	}
}

// enqueue queues a message for the writer without blocking. It reports
// false when the queue is full or the session is closing.
func (s *Session) enqueue(msg queuedMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// close tears the session down. Idempotent; safe from any goroutine.
func (s *Session) close() {
	s.closing.Do(func() {
		close(s.done)
		for _, unsub := range s.unsubs {
			unsub()
		}
		_ = s.conn.Close()
	})
}
