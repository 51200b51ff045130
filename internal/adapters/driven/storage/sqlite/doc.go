// Package sqlite provides a unified SQLite-based implementation of the entity store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements the record stores
// through a single database connection:
//
//   - SessionStore: Session state, rolling buffer and dedup watermark
//   - ChunkStore: Chunk lifecycle records keyed by (session, seq)
//   - SegmentStore: Segment records keyed by (session, index)
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.stitch/data/stitch.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Read-modify-write sequences are serialised by the
// services layer, not here.
package sqlite
