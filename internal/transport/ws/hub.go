package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client message types
const (
	MsgJoinSession MessageType = "join-session"
	MsgCodeChange  MessageType = "code-change"
	MsgCursorMove  MessageType = "cursor-move"
)

// Server message types
const (
	MsgSessionState MessageType = "session-state"
	MsgUserJoined   MessageType = "user-joined"
	MsgUserLeft     MessageType = "user-left"
	MsgError        MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket connections and their session memberships. A
// connection may belong to several sessions at once, one membership per
// join.
type Hub struct {
	// sessionID -> connID -> connection
	sessionConns map[string]map[string]*Connection
	// connID -> sessionIDs, to clear memberships on disconnect
	memberships map[string]map[string]struct{}

	mu sync.RWMutex

	// Channels for coordination
	join       chan *membership
	leave      chan *membership
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents a WebSocket connection
type Connection struct {
	ID   string
	Send chan []byte
	Hub  *Hub
}

type membership struct {
	conn      *Connection
	sessionID string
}

// BroadcastMessage is a message to deliver within one session
type BroadcastMessage struct {
	SessionID string
	ToConn    string // non-empty: deliver to exactly this connection
	Except    string // when ToConn empty: skip this connection
	Message   *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		sessionConns: make(map[string]map[string]*Connection),
		memberships:  make(map[string]map[string]struct{}),
		join:         make(chan *membership),
		leave:        make(chan *membership),
		unregister:   make(chan *Connection),
		broadcast:    make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case m := <-h.join:
			h.mu.Lock()
			if h.sessionConns[m.sessionID] == nil {
				h.sessionConns[m.sessionID] = make(map[string]*Connection)
			}
			h.sessionConns[m.sessionID][m.conn.ID] = m.conn
			if h.memberships[m.conn.ID] == nil {
				h.memberships[m.conn.ID] = make(map[string]struct{})
			}
			h.memberships[m.conn.ID][m.sessionID] = struct{}{}
			log.Printf("Connection %s joined session %s", m.conn.ID, m.sessionID)
			h.mu.Unlock()

		case m := <-h.leave:
			h.mu.Lock()
			h.removeMembership(m.conn, m.sessionID)
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			for sessionID := range h.memberships[conn.ID] {
				h.removeMembership(conn, sessionID)
			}
			delete(h.memberships, conn.ID)
			close(conn.Send)
			log.Printf("Connection %s disconnected", conn.ID)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)

			conns := h.sessionConns[msg.SessionID]
			if msg.ToConn != "" {
				if conn, ok := conns[msg.ToConn]; ok {
					select {
					case conn.Send <- data:
					default:
						// Drop message if buffer full
					}
				}
			} else {
				for id, conn := range conns {
					if id == msg.Except {
						continue
					}
					select {
					case conn.Send <- data:
					default:
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// removeMembership must be called with h.mu held
func (h *Hub) removeMembership(conn *Connection, sessionID string) {
	if conns, ok := h.sessionConns[sessionID]; ok {
		if existing, ok := conns[conn.ID]; ok && existing == conn {
			delete(conns, conn.ID)
			if len(conns) == 0 {
				delete(h.sessionConns, sessionID)
			}
		}
	}
	if members, ok := h.memberships[conn.ID]; ok {
		delete(members, sessionID)
	}
}

// JoinSession adds a session membership for a connection
func (h *Hub) JoinSession(conn *Connection, sessionID string) {
	h.join <- &membership{conn: conn, sessionID: sessionID}
}

// LeaveSession removes a single session membership
func (h *Hub) LeaveSession(conn *Connection, sessionID string) {
	h.leave <- &membership{conn: conn, sessionID: sessionID}
}

// Unregister removes a connection from all sessions and closes its send
// channel
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// SendToConnection sends a message to one connection in a session
// (implements service.Broadcaster)
func (h *Hub) SendToConnection(sessionID, connID, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		ToConn:    connID,
		Message: &Message{
			Type:    MessageType(event),
			Payload: data,
		},
	}
}

// BroadcastToOthers sends a message to every connection in a session except
// one (implements service.Broadcaster)
func (h *Hub) BroadcastToOthers(sessionID, exceptConnID, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Except:    exceptConnID,
		Message: &Message{
			Type:    MessageType(event),
			Payload: data,
		},
	}
}
