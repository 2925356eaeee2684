package model

type ChangeOperation string

const (
	OpInsert  ChangeOperation = "insert"
	OpDelete  ChangeOperation = "delete"
	OpReplace ChangeOperation = "replace"
)

// ChangeRange is the 1-based line/column span a change applies to
type ChangeRange struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// CodeChange is one edit event as produced by a client. Current clients only
// ever send "replace" with the whole buffer in Text, but the operation tag and
// range are carried end-to-end so finer-grained edits stay wire-compatible.
// A CodeChange is transport-only; only its effect on the session buffer is
// persisted.
type CodeChange struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"` // client clock, unix millis; informational only
	Operation ChangeOperation `json:"operation"`
	Range     ChangeRange     `json:"range"`
	Text      string          `json:"text"`
	OldText   string          `json:"oldText,omitempty"`
}
