package logsvc

import (
	"strings"
	"sync"

	"github.com/eduweave/eduweave/core"
)

// Entry is one call recorded by a MemoryLogger.
type Entry struct {
	Level   string
	Message string
	Args    []interface{}
}

// MemoryLogger records entries instead of printing them. Used in tests.
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

var _ core.Logger = (*MemoryLogger)(nil)

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) record(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Message: msg, Args: args})
}

func (l *MemoryLogger) Debug(msg string, args ...interface{}) { l.record("debug", msg, args) }
func (l *MemoryLogger) Info(msg string, args ...interface{})  { l.record("info", msg, args) }
func (l *MemoryLogger) Warn(msg string, args ...interface{})  { l.record("warn", msg, args) }
func (l *MemoryLogger) Error(msg string, args ...interface{}) { l.record("error", msg, args) }

// Fatal records the entry without exiting.
func (l *MemoryLogger) Fatal(msg string, args ...interface{}) { l.record("fatal", msg, args) }

func (l *MemoryLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Contains reports whether an entry of the level has a message containing substr.
func (l *MemoryLogger) Contains(level, substr string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
