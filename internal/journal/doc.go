// Package journal provides SQLite-backed durable storage of reactor commits
// and actions.
//
// The journal is an append-only log with:
//   - Reactors: one row per reactor instance (id, name)
//   - Entries: committed states and the actions sent to a reactor
//
// # Critical Patterns
//
// Logical time:
//   - Entries are ordered by the reactor's commit seq and the row id,
//     never by timestamps
//   - A commit is written at most once per (reactor, seq)
//
// Content digests:
//   - Payloads are stored as canonical JSON (sorted keys, NFC strings)
//   - Each entry carries SHA-256(domain + 0x00 + payload) so a replayed
//     trace can be compared byte for byte
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package journal
