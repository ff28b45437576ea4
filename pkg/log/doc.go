// Package log provides structured capture of everything the client says to
// and hears from the Gatewave backend: channel frames, GraphQL commands,
// connection state changes and errors.
//
// Events are written through the Logger interface. Implementations:
//
//   - NoopLogger: discards everything (the default).
//   - SlogAdapter: mirrors events to a standard slog.Logger for development.
//   - FileLogger: appends CBOR-encoded events to a file for later analysis
//     with Reader or the gatewave-log tool.
//   - MultiLogger: fans out to several loggers.
//
// The CBOR encoding uses integer keys, so capture files stay small even
// with one event per frame.
package log
