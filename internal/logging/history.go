package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// historySize is how many recent records the in-memory log history keeps.
const historySize = 500

// Entry is one log record kept in the history.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Module    string    `json:"module"`
	Message   string    `json:"message"`
}

// History is a fixed-size circular store of recent log records, shared by
// every module logger so the log endpoint sees the whole process.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

var history = &History{entries: make([]Entry, historySize)}

// RecentEntries returns the stored records, oldest first. limit caps the
// result when positive.
func RecentEntries(limit int) []Entry {
	return history.recent(limit)
}

func (h *History) append(e Entry) {
	h.mu.Lock()
	h.entries[h.head] = e
	h.head = (h.head + 1) % len(h.entries)
	if h.count < len(h.entries) {
		h.count++
	}
	h.mu.Unlock()
}

func (h *History) recent(limit int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	// Walk backwards from the newest record, then reverse.
	for i := 0; i < n; i++ {
		idx := (h.head - 1 - i + len(h.entries)) % len(h.entries)
		out = append(out, h.entries[idx])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// historyHandler mirrors records into the process-wide history.
type historyHandler struct {
	history *History
	level   slog.Leveler
	module  string
}

func newHistoryHandler(level slog.Leveler) *historyHandler {
	return &historyHandler{history: history, level: level}
}

func (h *historyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *historyHandler) Handle(_ context.Context, r slog.Record) error {
	module := h.module
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" {
			module = a.Value.String()
			return false
		}
		return true
	})
	h.history.append(Entry{
		Timestamp: r.Time,
		Level:     levelString(r.Level),
		Module:    module,
		Message:   r.Message,
	})
	return nil
}

func (h *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	for _, a := range attrs {
		if a.Key == "module" {
			next.module = a.Value.String()
		}
	}
	return &next
}

func (h *historyHandler) WithGroup(string) slog.Handler { return h }

func levelString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
