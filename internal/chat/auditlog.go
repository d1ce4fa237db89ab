package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// AuditLogConfig controls the NDJSON chat audit trail.
type AuditLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// AuditEvent is one line of the chat audit trail.
type AuditEvent struct {
	Timestamp      string `json:"ts"`
	UserID         int64  `json:"user_id"`
	ConversationID int64  `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	ToolCount      int    `json:"tool_count,omitempty"`
}

// AuditLogger appends chat turns to per-user per-conversation NDJSON files,
// plus an optional global file. Writes happen on a background goroutine;
// when the queue is full events are dropped with a warning rather than
// blocking the chat turn.
type AuditLogger struct {
	cfg    AuditLogConfig
	events chan AuditEvent
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
}

// NewAuditLogger creates the audit logger. A disabled config returns a
// logger whose Log is a no-op.
func NewAuditLogger(cfg AuditLogConfig, logger *slog.Logger) (*AuditLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &AuditLogger{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		return l, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
		l.cfg.QueueSize = 1000
	}

	l.events = make(chan AuditEvent, cfg.QueueSize)
	l.done = make(chan struct{})
	go l.run()
	return l, nil
}

// Log enqueues an event. Never blocks.
func (l *AuditLogger) Log(event AuditEvent) {
	if l.events == nil {
		return
	}
	select {
	case l.events <- event:
	default:
		l.logger.Warn("chat audit queue full, dropping event",
			"user_id", event.UserID, "conversation_id", event.ConversationID)
	}
}

// Close stops the writer after draining queued events.
func (l *AuditLogger) Close() error {
	if l.events == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		close(l.events)
		<-l.done
	})
	return nil
}

func (l *AuditLogger) run() {
	defer close(l.done)
	for event := range l.events {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to encode audit event", "error", err)
			continue
		}
		line = append(line, '\n')

		path := filepath.Join(l.cfg.Dir,
			strconv.FormatInt(event.UserID, 10),
			strconv.FormatInt(event.ConversationID, 10)+".ndjson")
		if err := appendLine(path, line); err != nil {
			l.logger.Warn("failed to write audit event", "path", path, "error", err)
		}

		if l.cfg.GlobalEnabled && l.cfg.GlobalPath != "" {
			if err := appendLine(l.cfg.GlobalPath, line); err != nil {
				l.logger.Warn("failed to write global audit event", "path", l.cfg.GlobalPath, "error", err)
			}
		}
	}
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(line)
	return err
}
