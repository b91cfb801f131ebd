// Package logging provides structured logging setup on top of log/slog.
//
// New builds a logger from level and format settings; Init additionally
// installs it as the process default so components can scope loggers with
// ForComponent. Context helpers carry request-scoped identifiers (request
// ID, tenant, document, tier) through call chains.
package logging
