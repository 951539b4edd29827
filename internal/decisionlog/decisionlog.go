// Package decisionlog writes one structured line per permission decision.
package decisionlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxCommandLen is how much of a command is kept in a log line.
const MaxCommandLen = 200

// Decisions written to the log.
const (
	Allow = "ALLOW"
	Deny  = "DENY"
	Abort = "ABORT"
	Ask   = "ASK"
)

// Sources written to the log.
const (
	SourceRules    = "rules"
	SourceReviewer = "reviewer"
	SourceOperator = "operator"
	SourceFailSafe = "fail-safe"
	SourceSkipped  = "skipped"
)

// Entry is one decision.
type Entry struct {
	RequestID string
	Tool      string
	Dir       string
	Decision  string
	Source    string
	Rule      string
	Reason    string
	Command   string
}

// Logger writes decision entries as JSON lines.
type Logger struct {
	log    *slog.Logger
	closer io.Closer
}

// New returns a logger writing to w at the given level.
func New(w io.Writer, level string) *Logger {
	return &Logger{log: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))}
}

// Open appends to the file at path, creating it and its directory. "-"
// writes to stderr.
func Open(path, level string) (*Logger, error) {
	if path == "-" {
		return New(os.Stderr, level), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l := New(f, level)
	l.closer = f
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, "error")
}

// Slog exposes the underlying logger for diagnostics that are not
// decisions.
func (l *Logger) Slog() *slog.Logger { return l.log }

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Decision logs e at info level.
func (l *Logger) Decision(ctx context.Context, e Entry) {
	if e.RequestID == "" {
		e.RequestID = NewRequestID()
	}
	l.log.LogAttrs(ctx, slog.LevelInfo, "decision",
		slog.String("request_id", e.RequestID),
		slog.String("tool", e.Tool),
		slog.String("dir", e.Dir),
		slog.String("decision", e.Decision),
		slog.String("source", e.Source),
		slog.String("rule", e.Rule),
		slog.String("reason", e.Reason),
		slog.String("command", Truncate(e.Command, MaxCommandLen)),
	)
}

// NewRequestID returns an id for correlating hook and reviewer log lines.
func NewRequestID() string {
	return uuid.NewString()
}

// Truncate shortens s to at most n bytes plus "...", never splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
