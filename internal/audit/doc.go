// Package audit implements async event dispatching for identity operations.
//
// # Components
//
//   - [Sink]: interface for event consumers. [ChannelSink], [JSONLinesSink]
//     and [LogSink] cover tests, files and structured logs; [Discard] drops all.
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: audit record with timestamp, type, user, provider, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does that after each flow returns.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goIdentity or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
