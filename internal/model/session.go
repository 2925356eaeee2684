package model

// User represents a participant in a collaborative session
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

// CursorPosition is a 1-based line/column location in the buffer
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SelectionRange is an optional selected span accompanying a cursor
type SelectionRange struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// UserCursor is one participant's cursor state. Username and Color are
// denormalized copies of User fields, updated only when the client sends them.
type UserCursor struct {
	UserID    string          `json:"userId"`
	Username  string          `json:"username"`
	Color     string          `json:"color"`
	Position  CursorPosition  `json:"position"`
	Selection *SelectionRange `json:"selection,omitempty"`
}

// SessionState is the full shared state of a session, pushed to a
// connection when it joins
type SessionState struct {
	SessionID   string       `json:"sessionId"`
	Code        string       `json:"code"`
	Language    string       `json:"language"`
	Users       []User       `json:"users"`
	Cursors     []UserCursor `json:"cursors"`
	LastUpdated int64        `json:"lastUpdated"` // unix millis
}

// SessionRecord is the durable (MongoDB) form of a session, written behind
// the live state and read only for cold-start seeding
type SessionRecord struct {
	ID        string `json:"id" bson:"_id"`
	Code      string `json:"code" bson:"code"`
	Language  string `json:"language" bson:"language"`
	UpdatedAt int64  `json:"updatedAt" bson:"updatedAt"`
}

// UserRef is the payload of a user-left broadcast
type UserRef struct {
	UserID string `json:"userId"`
}

// Participant is the durable last-seen record for a session member
type Participant struct {
	SessionID string `json:"sessionId" bson:"sessionId"`
	UserID    string `json:"userId" bson:"userId"`
	Username  string `json:"username" bson:"username"`
	LastSeen  int64  `json:"lastSeen" bson:"lastSeen"`
}
