// Package health provides liveness and readiness checks for the admin
// server.
//
// Components register a CheckFunc; the readiness probe runs all checks
// concurrently with a per-check timeout and aggregates them into one
// status. Liveness never runs component checks, so it stays fast enough
// for tight probe intervals.
package health
