package ws

import (
	"codecollab/internal/model"
	"codecollab/internal/service"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Whole buffers travel in code-change messages
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Handler handles WebSocket connections
type Handler struct {
	hub      *Hub
	collab   *service.CollabService
	identity service.Identity
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, collab *service.CollabService, identity service.Identity) *Handler {
	return &Handler{
		hub:      hub,
		collab:   collab,
		identity: identity,
	}
}

type joinPayload struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

type changePayload struct {
	SessionID string           `json:"sessionId"`
	Change    model.CodeChange `json:"change"`
}

type cursorPayload struct {
	SessionID string           `json:"sessionId"`
	Cursor    model.UserCursor `json:"cursor"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS handles GET /v1/ws
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		ID:   h.identity.ResolveConnectionID(token),
		Send: make(chan []byte, 256),
		Hub:  h.hub,
	}

	log.Printf("Connection %s established", conn.ID)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.collab.Leave(context.Background(), conn.ID)
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(conn, "malformed message")
			continue
		}
		h.dispatch(conn, &msg)
	}
}

// dispatch validates the payload at the transport boundary and hands the
// event to the engine
func (h *Handler) dispatch(conn *Connection, msg *Message) {
	ctx := context.Background()

	switch msg.Type {
	case MsgJoinSession:
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(conn, "malformed join-session payload")
			return
		}
		// Register before Join so the state push can reach this connection
		if p.SessionID != "" {
			h.hub.JoinSession(conn, p.SessionID)
		}
		if _, err := h.collab.Join(ctx, p.SessionID, p.Username, conn.ID); err != nil {
			if p.SessionID != "" {
				h.hub.LeaveSession(conn, p.SessionID)
			}
			if errors.Is(err, service.ErrInvalidRequest) {
				h.sendError(conn, err.Error())
			} else {
				h.sendError(conn, "failed to join session")
			}
		}

	case MsgCodeChange:
		var p changePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(conn, "malformed code-change payload")
			return
		}
		h.collab.ApplyChange(ctx, p.SessionID, conn.ID, p.Change)

	case MsgCursorMove:
		var p cursorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(conn, "malformed cursor-move payload")
			return
		}
		h.collab.MoveCursor(ctx, p.SessionID, conn.ID, p.Cursor)

	default:
		h.sendError(conn, "unknown message type")
	}
}

// sendError writes an error event directly to one connection, bypassing
// session routing: the sender may not be in any session yet
func (h *Handler) sendError(conn *Connection, message string) {
	payload, _ := json.Marshal(errorPayload{Message: message})
	data, _ := json.Marshal(&Message{Type: MsgError, Payload: payload})
	select {
	case conn.Send <- data:
	default:
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
