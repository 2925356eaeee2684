package service

// Event names on the outbound side of the connection protocol
const (
	EventSessionState = "session-state"
	EventUserJoined   = "user-joined"
	EventCodeChange   = "code-change"
	EventCursorMove   = "cursor-move"
	EventUserLeft     = "user-left"
	EventError        = "error"
)

// Broadcaster interface for WebSocket fan-out (avoids import cycle with the
// ws transport, which implements it)
type Broadcaster interface {
	// SendToConnection delivers an event to one connection in a session
	SendToConnection(sessionID, connID, event string, payload interface{})

	// BroadcastToOthers delivers an event to every connection in a session
	// except the one identified by exceptConnID
	BroadcastToOthers(sessionID, exceptConnID, event string, payload interface{})
}
