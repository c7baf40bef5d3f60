package goIdentity

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goIdentity/internal/audit"
)

// AuditEvent is one audit record emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
type AuditSink = audit.Sink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = audit.SinkFunc

// ChannelSink hands audit events to a consumer over a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONLinesSink writes one JSON object per line.
type JSONLinesSink = audit.JSONLinesSink

// LogSink writes audit events as structured log records.
type LogSink = audit.LogSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return audit.NewJSONLinesSink(w)
}

// NewLogSink logs audit events through logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	return audit.NewLogSink(logger)
}
