// Package storage provides persistence backends for budget ledger state.
//
// A backend stores one row per (tenant, UTC day) holding the committed
// spend, per-tier call counts, and documents started. The ledger reloads a
// tenant-day lazily on first touch, so a restarted process resumes the
// day's caps where it left off.
//
// Two backends ship: an in-memory map (default, no persistence across
// restarts) and SQLite via the pure-Go modernc.org/sqlite driver.
package storage
