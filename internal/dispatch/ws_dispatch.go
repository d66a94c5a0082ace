package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrNoSession   = errors.New("no ws session")
	ErrSessionBusy = errors.New("ws session outbox full")
)

const (
	outboxSize = 16
	writeWait  = 5 * time.Second
)

// WSSession represents a connected driver session. Messages go through a
// bounded outbox drained by the session's own writer, so a driver that stops
// reading never blocks the sender.
type WSSession struct {
	conn   *websocket.Conn
	outbox chan any
	closed chan struct{}
	once   sync.Once
}

func newSession(conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn, outbox: make(chan any, outboxSize), closed: make(chan struct{})}
	go s.writeLoop()
	return s
}

func (s *WSSession) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case v := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(v); err != nil {
				s.Close()
				return
			}
		}
	}
}

// Send queues v for delivery. It fails fast when the outbox is full or the
// session is gone.
func (s *WSSession) Send(ctx context.Context, v any) error {
	select {
	case <-s.closed:
		return ErrNoSession
	default:
	}
	select {
	case s.outbox <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSessionBusy
	}
}

func (s *WSSession) Close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// WSRegistry holds driver sessions
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

// Add registers conn for driverID, closing any session it replaces.
func (r *WSRegistry) Add(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	old := r.sessions[driverID]
	r.sessions[driverID] = newSession(conn)
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Remove drops the session only if it still belongs to conn.
func (r *WSRegistry) Remove(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	s, ok := r.sessions[driverID]
	if ok && s.conn == conn {
		delete(r.sessions, driverID)
	}
	r.mu.Unlock()
	if ok && s.conn == conn {
		s.Close()
	}
}

func (r *WSRegistry) OrderOpened(ctx context.Context, o *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	s, ok := r.sessions[o.Driver.ID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	err := s.Send(ctx, map[string]any{"type": "order_opened", "order": o})
	if errors.Is(err, ErrNoSession) {
		r.Remove(o.Driver.ID, s.conn)
	}
	return err
}
