// Package audit relays security events from the engine to pluggable sinks.
//
// The Dispatcher buffers events on a channel and forwards them from one goroutine, so a
// slow sink never adds latency to login. Sinks provided here write to a channel, a JSON
// line stream or a zap logger; the pg store adds a database sink.
//
// This package does not decide which events to emit. That belongs to the engine.
package audit
