// Package audit keeps a trail of every ledger operation invoked through a
// transport, with its caller, parameters, outcome and duration.
package audit

import "context"

// Entry records a single action for the audit trail.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Transport  string `json:"transport"` // "http" or "mcp"
	UserID     string `json:"user_id"`
	RequestID  string `json:"request_id"`
	Height     uint64 `json:"height"`
	Parameters string `json:"parameters"`
	Result     string `json:"result"`
	Error      string `json:"error_message"`
	ErrorKind  string `json:"error_kind,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"` // "success", "rejected" or "error"
}

// Logger writes audit entries to storage.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	LogAsync(entry *Entry)
	Close() error
}

// Classifier names the domain failure behind err, or returns "" when err is
// an infrastructure failure.
type Classifier func(err error) string

// HeightFunc reports the logical time a call ran at.
type HeightFunc func(ctx context.Context) uint64
