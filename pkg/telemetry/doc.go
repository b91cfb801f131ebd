// Package telemetry groups the observability concerns of the dispatch
// daemon.
//
//   - logging: structured slog setup with request-scoped context
//   - health: liveness and readiness checks for the admin server
//
// Dispatch metrics live next to the dispatcher in pkg/dispatch; this tree
// holds only the cross-cutting pieces.
package telemetry
