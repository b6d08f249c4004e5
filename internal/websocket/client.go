package websocket

import (
	"fmt"
	"log"
	"sync"
	"time"

	"livechat-backend/internal/presence"

	"github.com/gorilla/websocket"
)

// WSClient is one live connection. It implements presence.Transport: the
// registry owns delivery, the client owns the pumps.
type WSClient struct {
	conn *websocket.Conn
	send chan OutEvent

	role presence.Role
	id   string

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	isClosed  bool
}

func newClient(conn *websocket.Conn, role presence.Role, id string) *WSClient {
	return &WSClient{
		conn: conn,
		send: make(chan OutEvent, 16),
		role: role,
		id:   id,
		done: make(chan struct{}),
	}
}

// Send enqueues an event for the write pump. A full buffer drops the event
// instead of blocking the caller; anything durable is already persisted.
func (cl *WSClient) Send(event string, payload interface{}) error {
	cl.mu.Lock()
	closed := cl.isClosed
	cl.mu.Unlock()
	if closed {
		return fmt.Errorf("client %s:%s is closed", cl.role, cl.id)
	}

	select {
	case cl.send <- OutEvent{Type: event, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("client %s:%s send buffer full, dropping %s", cl.role, cl.id, event)
	}
}

func (cl *WSClient) Close() error {
	var err error
	cl.closeOnce.Do(func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.mu.Unlock()
		close(cl.done)
		err = cl.conn.Close()
	})
	return err
}

func (cl *WSClient) keepAlive() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.conn.WriteMessage(websocket.PingMessage, nil)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Ping error for client %s:%s: %v", cl.role, cl.id, err)
				return
			}
		}
	}
}

func (cl *WSClient) writePump() {
	defer cl.Close()

	for {
		select {
		case <-cl.done:
			return
		case event := <-cl.send:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.conn.WriteJSON(event)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Error sending %s to client %s:%s: %v", event.Type, cl.role, cl.id, err)
				return
			}
			addDelivered(1)
		}
	}
}

func (cl *WSClient) readPump(h *Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in readPump: %v", r)
		}

		cl.Close()
		h.disconnected(cl)
		log.Printf("Client %s:%s disconnected", cl.role, cl.id)
	}()

	cl.conn.SetReadLimit(512 * 1024)

	for {
		var event Event
		if err := cl.conn.ReadJSON(&event); err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived {
					break
				}
			}
			log.Printf("Error reading from client %s:%s: %v", cl.role, cl.id, err)
			break
		}

		h.dispatch(cl, event)
	}
}
