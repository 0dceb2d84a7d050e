package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger is a Logger implementation that records entries in memory so
// tests can assert on what was logged.
type TestLogger struct {
	mu      sync.Mutex
	entries []TestLogEntry
	fields  map[string]interface{}
	zlog    zerolog.Logger
}

// TestLogEntry is a single recorded log call.
type TestLogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a logger that swallows output and records entries.
func NewTestLogger() *TestLogger {
	return &TestLogger{
		fields: make(map[string]interface{}),
		zlog:   zerolog.Nop(),
	}
}

func (t *TestLogger) record(level, msg string, fields map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := make(map[string]interface{}, len(t.fields)+len(fields))
	for k, v := range t.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	t.entries = append(t.entries, TestLogEntry{Level: level, Message: msg, Fields: merged})
}

func (t *TestLogger) Debug(msg string) { t.record("debug", msg, nil) }
func (t *TestLogger) Info(msg string)  { t.record("info", msg, nil) }
func (t *TestLogger) Warn(msg string)  { t.record("warn", msg, nil) }
func (t *TestLogger) Error(msg string) { t.record("error", msg, nil) }
func (t *TestLogger) Fatal(msg string) { t.record("fatal", msg, nil) }

func (t *TestLogger) WithField(key string, value interface{}) Logger {
	return t.WithFields(map[string]interface{}{key: value})
}

func (t *TestLogger) WithFields(fields map[string]interface{}) Logger {
	t.mu.Lock()
	defer t.mu.Unlock()

	child := &TestLogger{
		fields: make(map[string]interface{}, len(t.fields)+len(fields)),
		zlog:   zerolog.Nop(),
	}
	for k, v := range t.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	// Children share the parent's entry slice through recordings on the
	// parent; keep it simple and record on the child only.
	child.entries = t.entries
	return child
}

func (t *TestLogger) WithError(err error) Logger {
	if err == nil {
		return t
	}
	return t.WithField("error", err.Error())
}

func (t *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	t.record("debug", msg, fields)
}

func (t *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	t.record("info", msg, fields)
}

func (t *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	t.record("warn", msg, fields)
}

func (t *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	t.record("error", msg, fields)
}

func (t *TestLogger) GetZerolog() *zerolog.Logger {
	return &t.zlog
}

// Entries returns a copy of all recorded entries.
func (t *TestLogger) Entries() []TestLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TestLogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// HasEntry reports whether an entry with the given level and message exists.
func (t *TestLogger) HasEntry(level, msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}
