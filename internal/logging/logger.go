// Package logging provides leveled logging and step tracing for the
// observation layer. It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A StepTraceLogger for structured JSONL per-step accumulation traces
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "debug", "info", "warn", "error" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// StepTraceLogger writes per-step accumulation events to a JSONL file,
// one line per observer per step. It is safe for concurrent use. A nil
// StepTraceLogger is safe to use; all methods are no-ops on nil receiver.
type StepTraceLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewStepTraceLogger creates a trace logger writing to dir/steps.jsonl.
// At "info" level and above (the default), returns nil; no file is
// created. At "debug" level the file is opened for append. Returns nil if
// the file cannot be opened. All methods are nil-safe.
func NewStepTraceLogger(dir string, level string) *StepTraceLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "steps.jsonl"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil
	}
	return &StepTraceLogger{file: f}
}

// Step writes one trace line for an observer's contribution to a step.
// A "time" field is added automatically. Safe to call on nil receiver.
func (tl *StepTraceLogger) Step(step int, observer string, keysWritten int) {
	if tl == nil || tl.file == nil {
		return
	}

	entry := map[string]any{
		"time":         time.Now().UTC().Format(time.RFC3339Nano),
		"step":         step,
		"observer":     observer,
		"keys_written": keysWritten,
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = tl.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tl *StepTraceLogger) Close() {
	if tl == nil || tl.file == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.file.Close()
	tl.file = nil
}
