package goCreds

import (
	"io"

	"github.com/MrEthical07/goCreds/internal/audit"
)

// AuditEvent is one security-relevant engine event. It never contains tokens,
// passwords or ciphertexts.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// NewChannelSink returns a sink that forwards events to a buffered channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
