// Package testutil provides shared test helpers.
package testutil

import (
	"strings"
	"sync"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
)

// MockLogger implements logging.Logger and records every entry so tests can
// assert on what a component reported. Children from With and Named share
// the parent's record.
type MockLogger struct {
	store  *logStore
	name   string
	fields []logging.Field
}

type logStore struct {
	mu       sync.Mutex
	messages []LogMessage
}

// LogMessage is one captured entry.
type LogMessage struct {
	Level   string
	Logger  string
	Message string
	Fields  []logging.Field
}

// Field returns the value of key, or nil.
func (m LogMessage) Field(key string) interface{} {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{store: &logStore{}}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.fields)+len(fields))
	all = append(all, m.fields...)
	all = append(all, fields...)

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.messages = append(m.store.messages, LogMessage{Level: level, Logger: m.name, Message: msg, Fields: all})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log(logging.LevelDebug, msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log(logging.LevelInfo, msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log(logging.LevelWarn, msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log(logging.LevelError, msg, fields) }

// Fatal records the entry without exiting.
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	child := &MockLogger{store: m.store, name: m.name}
	child.fields = append(append(child.fields, m.fields...), fields...)
	return child
}

func (m *MockLogger) Named(name string) logging.Logger {
	full := name
	if m.name != "" {
		full = m.name + "." + name
	}
	return &MockLogger{store: m.store, name: full, fields: m.fields}
}

func (m *MockLogger) Sync() error { return nil }

// Messages returns a copy of every entry logged so far.
func (m *MockLogger) Messages() []LogMessage {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	out := make([]LogMessage, len(m.store.messages))
	copy(out, m.store.messages)
	return out
}

// AtLevel returns the entries logged at level.
func (m *MockLogger) AtLevel(level string) []LogMessage {
	var out []LogMessage
	for _, msg := range m.Messages() {
		if msg.Level == level {
			out = append(out, msg)
		}
	}
	return out
}

// Find returns the first entry at level whose message contains substr.
func (m *MockLogger) Find(level, substr string) (LogMessage, bool) {
	for _, msg := range m.AtLevel(level) {
		if strings.Contains(msg.Message, substr) {
			return msg, true
		}
	}
	return LogMessage{}, false
}

// Clear drops every recorded entry.
func (m *MockLogger) Clear() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.messages = nil
}
