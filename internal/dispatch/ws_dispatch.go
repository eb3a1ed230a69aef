package dispatch

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/dispatch-console/internal/models"
)

// WSSession represents a connected driver session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(a models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(a)
}

// WSRegistry holds driver sessions and implements Notifier.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[driverID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, driverID)
}

func (r *WSRegistry) Notify(driverID string, a models.Assignment) error {
	r.mu.RLock()
	s, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(a); err != nil {
		// A failed write means the socket is gone; drop the session so
		// the next notify falls through to the webhook path instead of
		// erroring against a dead connection.
		r.mu.Lock()
		if cur, ok := r.sessions[driverID]; ok && cur == s {
			delete(r.sessions, driverID)
		}
		r.mu.Unlock()
		s.conn.Close()
		return err
	}
	return nil
}

var ErrNoSession = errors.New("no ws session")
