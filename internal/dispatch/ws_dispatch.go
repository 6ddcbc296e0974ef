// Package dispatch delivers trip assignments to connected drivers over
// WebSocket. Delivery is best-effort: the booking already committed, and a
// driver with no open session will see the manifest when they next sync.
package dispatch

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-pooling/internal/models"
)

// ErrNoSession is returned when the driver has no open WebSocket.
var ErrNoSession = errors.New("no ws session")

// Session wraps one driver connection; writes are serialized.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Registry holds connected driver sessions keyed by driver id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Add registers (or replaces) the session for a driver.
func (r *Registry) Add(driverID int64, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[driverID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[driverID] = &Session{conn: conn}
}

// Remove drops the driver's session if it is still the given connection.
func (r *Registry) Remove(driverID int64, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[driverID]; ok && s.conn == conn {
		delete(r.sessions, driverID)
	}
}

// Assign pushes a committed booking to the assigned driver.
func (r *Registry) Assign(driverID int64, res models.BookingResult) error {
	r.mu.RLock()
	s, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(res)
}
