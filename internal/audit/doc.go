// Package audit dispatches security-relevant engine events to sinks asynchronously.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, structured log, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full or block-if-full semantics.
//   - [Event]: timestamp, type, subject, IP, outcome and metadata.
//
// The dispatcher decides nothing about which events exist; the engine does.
// Events never carry passwords or token values.
package audit
