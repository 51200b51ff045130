package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/stitch/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// DatabaseFile is the file name of the database inside the data directory.
const DatabaseFile = "stitch.db"

// Store is a unified SQLite-based storage that provides access to
// the session, chunk and segment stores through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.stitch/data/stitch.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".stitch", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// WAL lets the HTTP server and the worker share the file.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SessionStore returns a SessionStore interface backed by this store.
func (s *Store) SessionStore() driven.SessionStore {
	return &sessionStore{store: s}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// SegmentStore returns a SegmentStore interface backed by this store.
func (s *Store) SegmentStore() driven.SegmentStore {
	return &segmentStore{store: s}
}

// EntityStore returns all three record stores behind one interface.
func (s *Store) EntityStore() driven.EntityStore {
	return &entityStore{
		sessionStore: &sessionStore{store: s},
		chunkStore:   &chunkStore{store: s},
		segmentStore: &segmentStore{store: s},
	}
}

type entityStore struct {
	*sessionStore
	*chunkStore
	*segmentStore
}

var _ driven.EntityStore = (*entityStore)(nil)

// CommitSession writes the session, the optional segment and the optional
// chunk in one transaction. Versions are bumped only once it commits.
func (e *entityStore) CommitSession(ctx context.Context, commit driven.SessionCommit) (err error) {
	if commit.Session == nil {
		return fmt.Errorf("commit without session: %w", domain.ErrInvalidInput)
	}

	tx, err := e.sessionStore.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting commit: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err := saveSession(ctx, tx, commit.Session); err != nil {
		return err
	}
	if commit.Segment != nil {
		if err := createSegment(ctx, tx, *commit.Segment); err != nil {
			return err
		}
	}
	if commit.Chunk != nil {
		if err := saveChunk(ctx, tx, commit.Chunk); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session %s: %w", commit.Session.ID, err)
	}

	commit.Session.Version++
	if commit.Chunk != nil {
		commit.Chunk.Version++
	}
	return nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("starting migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Session Store ====================

// sessionStore implements driven.SessionStore.
type sessionStore struct {
	store *Store
}

var _ driven.SessionStore = (*sessionStore)(nil)

const sessionColumns = `id, status, therapist_id, patient_id, organization_id, appointment_id,
	rolling_text, rolling_token_count, next_segment_index, last_kept_end_seconds,
	end_requested, final_summary_key, final_result_key, created_at, updated_at, version`

const insertSession = `INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	ON CONFLICT(id) DO NOTHING`

func sessionArgs(session *domain.Session) []any {
	return []any{
		session.ID, string(session.Status),
		nullInt64(session.TherapistID), nullInt64(session.PatientID),
		nullInt64(session.OrganizationID), nullInt64(session.AppointmentID),
		session.RollingText, session.RollingTokenCount, session.NextSegmentIndex,
		session.LastKeptEndSeconds, session.EndRequested,
		session.FinalSummaryKey, session.FinalResultKey,
		session.CreatedAt.UTC(), session.UpdatedAt.UTC(),
	}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetSession retrieves a session by ID.
func (s *sessionStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

// CreateSessionIfAbsent inserts session unless one with the same ID exists.
func (s *sessionStore) CreateSessionIfAbsent(ctx context.Context, session domain.Session) (*domain.Session, bool, error) {
	res, err := s.store.db.ExecContext(ctx, insertSession, sessionArgs(&session)...)
	if err != nil {
		return nil, false, fmt.Errorf("creating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("creating session: %w", err)
	}

	stored, err := s.GetSession(ctx, session.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, n > 0, nil
}

// SaveSession writes session if the stored row is still at session.Version,
// then bumps session.Version. A zero version inserts.
func (s *sessionStore) SaveSession(ctx context.Context, session *domain.Session) error {
	if err := saveSession(ctx, s.store.db, session); err != nil {
		return err
	}
	session.Version++
	return nil
}

func saveSession(ctx context.Context, ex execer, session *domain.Session) error {
	var (
		res sql.Result
		err error
	)
	if session.Version == 0 {
		res, err = ex.ExecContext(ctx, insertSession, sessionArgs(session)...)
	} else {
		res, err = ex.ExecContext(ctx, `
			UPDATE sessions SET
				status = ?,
				therapist_id = ?,
				patient_id = ?,
				organization_id = ?,
				appointment_id = ?,
				rolling_text = ?,
				rolling_token_count = ?,
				next_segment_index = ?,
				last_kept_end_seconds = ?,
				end_requested = ?,
				final_summary_key = ?,
				final_result_key = ?,
				updated_at = ?,
				version = version + 1
			WHERE id = ? AND version = ?
		`, string(session.Status),
			nullInt64(session.TherapistID), nullInt64(session.PatientID),
			nullInt64(session.OrganizationID), nullInt64(session.AppointmentID),
			session.RollingText, session.RollingTokenCount, session.NextSegmentIndex,
			session.LastKeptEndSeconds, session.EndRequested,
			session.FinalSummaryKey, session.FinalResultKey,
			session.UpdatedAt.UTC(), session.ID, session.Version)
	}
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return checkAffected(res, "session "+session.ID)
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var session domain.Session
	var status string
	var therapist, patient, organization, appointment sql.NullInt64
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&session.ID, &status, &therapist, &patient, &organization, &appointment,
		&session.RollingText, &session.RollingTokenCount, &session.NextSegmentIndex,
		&session.LastKeptEndSeconds, &session.EndRequested,
		&session.FinalSummaryKey, &session.FinalResultKey, &createdAt, &updatedAt, &session.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	session.Status = domain.SessionStatus(status)
	session.TherapistID = int64Ptr(therapist)
	session.PatientID = int64Ptr(patient)
	session.OrganizationID = int64Ptr(organization)
	session.AppointmentID = int64Ptr(appointment)
	session.CreatedAt = createdAt.Time
	session.UpdatedAt = updatedAt.Time
	return &session, nil
}

// ==================== Chunk Store ====================

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

const chunkColumns = `session_id, seq, audio_key, start_ms, end_ms, status, attempts,
	error_code, error_message, transcript_key, language, remote_id, created_at, updated_at, version`

// GetChunk retrieves a chunk.
func (s *chunkStore) GetChunk(ctx context.Context, sessionID string, seq int) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE session_id = ? AND seq = ?", sessionID, seq)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// SaveChunk writes chunk if the stored row is still at chunk.Version, then
// bumps chunk.Version. A zero version inserts.
func (s *chunkStore) SaveChunk(ctx context.Context, chunk *domain.Chunk) error {
	if err := saveChunk(ctx, s.store.db, chunk); err != nil {
		return err
	}
	chunk.Version++
	return nil
}

func saveChunk(ctx context.Context, ex execer, chunk *domain.Chunk) error {
	var (
		res sql.Result
		err error
	)
	if chunk.Version == 0 {
		res, err = ex.ExecContext(ctx, `
			INSERT INTO chunks (`+chunkColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(session_id, seq) DO NOTHING
		`, chunk.SessionID, chunk.Seq, chunk.AudioKey, chunk.StartMs, chunk.EndMs,
			string(chunk.Status), chunk.Attempts, chunk.ErrorCode, chunk.ErrorMessage,
			chunk.TranscriptKey, chunk.Language, chunk.RemoteID,
			chunk.CreatedAt.UTC(), chunk.UpdatedAt.UTC())
	} else {
		res, err = ex.ExecContext(ctx, `
			UPDATE chunks SET
				audio_key = ?,
				start_ms = ?,
				end_ms = ?,
				status = ?,
				attempts = ?,
				error_code = ?,
				error_message = ?,
				transcript_key = ?,
				language = ?,
				remote_id = ?,
				updated_at = ?,
				version = version + 1
			WHERE session_id = ? AND seq = ? AND version = ?
		`, chunk.AudioKey, chunk.StartMs, chunk.EndMs,
			string(chunk.Status), chunk.Attempts, chunk.ErrorCode, chunk.ErrorMessage,
			chunk.TranscriptKey, chunk.Language, chunk.RemoteID,
			chunk.UpdatedAt.UTC(), chunk.SessionID, chunk.Seq, chunk.Version)
	}
	if err != nil {
		return fmt.Errorf("saving chunk: %w", err)
	}
	return checkAffected(res, fmt.Sprintf("chunk %d of %s", chunk.Seq, chunk.SessionID))
}

// ListChunks returns all chunks of a session ordered by seq.
func (s *chunkStore) ListChunks(ctx context.Context, sessionID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE session_id = ? ORDER BY seq", sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var status string
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&chunk.SessionID, &chunk.Seq, &chunk.AudioKey, &chunk.StartMs, &chunk.EndMs,
		&status, &chunk.Attempts, &chunk.ErrorCode, &chunk.ErrorMessage,
		&chunk.TranscriptKey, &chunk.Language, &chunk.RemoteID, &createdAt, &updatedAt, &chunk.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Status = domain.ChunkStatus(status)
	chunk.CreatedAt = createdAt.Time
	chunk.UpdatedAt = updatedAt.Time
	return &chunk, nil
}

// ==================== Segment Store ====================

// segmentStore implements driven.SegmentStore.
type segmentStore struct {
	store *Store
}

var _ driven.SegmentStore = (*segmentStore)(nil)

const segmentColumns = `session_id, idx, status, token_count, input_key, summary_key,
	start_ms, end_ms, error_message, created_at, updated_at`

func segmentArgs(segment domain.Segment) []any {
	return []any{
		segment.SessionID, segment.Index, string(segment.Status), segment.TokenCount,
		segment.InputKey, segment.SummaryKey,
		nullInt64(segment.StartMs), nullInt64(segment.EndMs),
		segment.ErrorMessage, segment.CreatedAt.UTC(), segment.UpdatedAt.UTC(),
	}
}

// GetSegment retrieves a segment.
func (s *segmentStore) GetSegment(ctx context.Context, sessionID string, index int) (*domain.Segment, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+segmentColumns+" FROM segments WHERE session_id = ? AND idx = ?", sessionID, index)
	segment, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return segment, err
}

// CreateSegment inserts a new segment. An existing index is left untouched.
func (s *segmentStore) CreateSegment(ctx context.Context, segment domain.Segment) error {
	return createSegment(ctx, s.store.db, segment)
}

func createSegment(ctx context.Context, ex execer, segment domain.Segment) error {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO segments (`+segmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, idx) DO NOTHING
	`, segmentArgs(segment)...)
	if err != nil {
		return fmt.Errorf("creating segment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("creating segment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("segment %d of %s: %w", segment.Index, segment.SessionID, domain.ErrAlreadyExists)
	}
	return nil
}

// SaveSegment stores or updates a segment.
func (s *segmentStore) SaveSegment(ctx context.Context, segment domain.Segment) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO segments (`+segmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, idx) DO UPDATE SET
			status = excluded.status,
			token_count = excluded.token_count,
			input_key = excluded.input_key,
			summary_key = excluded.summary_key,
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, segmentArgs(segment)...)
	if err != nil {
		return fmt.Errorf("saving segment: %w", err)
	}
	return nil
}

// ListSegments returns all segments of a session ordered by index.
func (s *segmentStore) ListSegments(ctx context.Context, sessionID string) ([]domain.Segment, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+segmentColumns+" FROM segments WHERE session_id = ? ORDER BY idx", sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	var segments []domain.Segment //nolint:prealloc // size unknown from query
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, *segment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segments: %w", err)
	}
	return segments, nil
}

func scanSegment(row scanner) (*domain.Segment, error) {
	var segment domain.Segment
	var status string
	var startMs, endMs sql.NullInt64
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&segment.SessionID, &segment.Index, &status, &segment.TokenCount,
		&segment.InputKey, &segment.SummaryKey, &startMs, &endMs,
		&segment.ErrorMessage, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning segment: %w", err)
	}

	segment.Status = domain.SegmentStatus(status)
	segment.StartMs = int64Ptr(startMs)
	segment.EndMs = int64Ptr(endMs)
	segment.CreatedAt = createdAt.Time
	segment.UpdatedAt = updatedAt.Time
	return &segment, nil
}

// ==================== Helpers ====================

// checkAffected maps a write that matched no row to ErrConflict.
func checkAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("saving %s: %w", what, domain.ErrConflict)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
