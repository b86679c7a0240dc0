package accesslog

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Entry describes one completed (or failed) request/response exchange.
type Entry struct {
	Timestamp     time.Time
	RequestID     string
	Method        string
	Path          string
	Protocol      string
	ResponseCode  int
	BytesReceived int64
	BytesSent     int64
	Duration      time.Duration
	RemoteAddress string
	UpstreamHost  string
	FailureReason string
}

// Log is a sink for access log entries. Implementations must not fail the
// request path; errors are absorbed.
type Log interface {
	Log(entry *Entry)
}

// MultiLog fans one entry out to several sinks.
type MultiLog []Log

// Log implements Log.
func (m MultiLog) Log(entry *Entry) {
	for _, sink := range m {
		sink.Log(entry)
	}
}

// FormatEntry renders the default single-line text format:
//
//	[timestamp] "METHOD /path PROTO" code bytes_received bytes_sent
//	duration_ms "remote" "request-id" "upstream" failure
func FormatEntry(entry *Entry) string {
	code := "-"
	if entry.ResponseCode != 0 {
		code = fmt.Sprintf("%d", entry.ResponseCode)
	}
	failure := entry.FailureReason
	if failure == "" {
		failure = "-"
	}
	return fmt.Sprintf("[%s] \"%s %s %s\" %s %d %d %d %q %q %q %s",
		entry.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		entry.Method, entry.Path, entry.Protocol,
		code,
		entry.BytesReceived, entry.BytesSent,
		entry.Duration.Milliseconds(),
		entry.RemoteAddress, entry.RequestID, entry.UpstreamHost,
		failure,
	)
}

// WriterLog is a line-based sink.
type WriterLog struct {
	mu     sync.Mutex
	writer io.Writer
	logger *slog.Logger
}

// NewWriterLog creates a sink writing formatted lines to writer.
func NewWriterLog(writer io.Writer, logger *slog.Logger) *WriterLog {
	return &WriterLog{writer: writer, logger: logger}
}

// Log implements Log.
func (w *WriterLog) Log(entry *Entry) {
	line := FormatEntry(entry) + "\n"
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.writer, line); err != nil {
		w.logger.Warn("access log write failed", "err", err)
	}
}
