// Package server provides the HTTP admin server for the dispatch core.
//
// It exposes work submission and cancellation, per-request status lookup,
// queue and rate-limit introspection, per-tenant budget usage, a health
// endpoint, and Prometheus metrics. Submission is asynchronous: the
// response carries a request ID, and the terminal outcome is fetched from
// /v1/requests/{id} once the dispatcher settles it.
package server
