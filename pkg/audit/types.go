// Package audit keeps a trail of tool invocations: what was called, with
// which arguments, how long it took and how it ended.
package audit

// Entry records a single tool invocation.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Transport  string `json:"transport"` // "stdio"
	RequestID  string `json:"request_id"`
	TraceID    string `json:"trace_id"`
	Parameters string `json:"parameters"`
	Result     string `json:"result"`
	Error      string `json:"error_message"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"` // "success" or "error"
}

// Logger queues audit entries for storage. LogAsync must not block the
// caller.
type Logger interface {
	LogAsync(entry *Entry)
	Close() error
}
