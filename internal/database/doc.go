// Package database provides SQLite-based history storage for sitemirror.
//
// Every finished mirror run is stored with:
//   - a summary row (site, phase, counts, timing) plus the full result as JSON
//   - the list of mirrored page URLs
//   - the recorded per-item failures
//
// The `sitemirror history` command reads it back.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// database is a single file in the XDG data directory and the pure-Go
// driver keeps cross-compilation free of CGO.
package database
