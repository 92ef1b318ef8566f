package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// UpsertOutcome reports whether an upsert created a new row or touched an
// existing one, and the prior status for transition bookkeeping.
type UpsertOutcome struct {
	Inserted     bool
	PriorStatus  Status
	PriorExisted bool
}

// UpsertFields carries the mutable fields an upsert may set. Zero-value
// fields that are intentionally unset use pointers so callers can omit them.
type UpsertFields struct {
	Name            string
	Source          Source
	ConfidenceScore *int
	Category        *string
	LLMVerified     *LLMVerified
	LLMReasoning    *string
	Status          *Status
}

// Store is the relational Catalog Store (C1). All writes are serialized
// through a single mutex, matching the spec's "writes serialized; reads may
// overlap" requirement without standing up a separate writer goroutine —
// sqlite's own single-writer semantics make a mutex the simplest correct
// implementation, mirroring the teacher's disk-backed caches' own
// serialize-on-write-path idiom.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	// pending buffers upserts when the database is unreachable, per spec §4.1
	// failure semantics: "Crawler MUST NOT drop discoveries silently".
	pendingMu sync.Mutex
	pending   []pendingUpsert
	// HighWaterMark bounds the pending buffer; exceeding it is fatal to the
	// cycle (spec §4.1).
	HighWaterMark int
}

type pendingUpsert struct {
	url    string
	fields UpsertFields
}

// ErrBufferOverflow is returned when the pending-write buffer exceeds
// HighWaterMark while the store is unreachable.
var ErrBufferOverflow = fmt.Errorf("catalog: pending write buffer overflow")

// Open opens (creating if absent) the sqlite-backed catalog at path and runs
// the schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer, avoids lock contention surprises
	s := &Store{db: db, HighWaterMark: 1000}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return s, nil
}

// migrate creates the sites table if absent, and backfills the status
// column (idempotent) per spec §4.1's migration rule.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sites (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL DEFAULT 'crawl',
			last_verified TIMESTAMP,
			confidence_score INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'inactive',
			category TEXT,
			llm_verified INTEGER NOT NULL DEFAULT 0,
			llm_reasoning TEXT,
			failed_attempts INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return err
	}
	// A table created before the status column existed gets the column
	// added here, empty, so the backfill below can derive it.
	var hasStatus int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('sites') WHERE name = 'status'`).Scan(&hasStatus); err != nil {
		return err
	}
	if hasStatus == 0 {
		if _, err := s.db.Exec(`ALTER TABLE sites ADD COLUMN status TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}
	// Idempotent backfill: rows inserted before the status column existed
	// (is_active only) get a derived status. Safe to re-run: WHERE clause
	// only matches rows not already consistent.
	_, err := s.db.Exec(`
		UPDATE sites SET status = CASE WHEN is_active = 1 THEN 'active' ELSE 'inactive' END
		WHERE status IS NULL OR status = ''
	`)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Upsert inserts a new row or updates the existing row for url, per spec
// §4.1. The update is atomic: sqlite's single statement + single-writer
// mutex ensures no partially updated row is ever visible to readers.
func (s *Store) Upsert(ctx context.Context, rawURL string, fields UpsertFields) (UpsertOutcome, error) {
	canon, err := CanonicalizeURL(rawURL)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("canonicalize url: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.upsertLocked(ctx, canon, fields)
	if err != nil {
		s.buffer(canon, fields)
		if s.overflowed() {
			return outcome, fmt.Errorf("%w: %d pending", ErrBufferOverflow, len(s.pending))
		}
		log.Warn().Err(err).Str("url", canon).Msg("catalog unreachable; buffered upsert")
		return outcome, nil
	}
	return outcome, nil
}

func (s *Store) upsertLocked(ctx context.Context, canonURL string, f UpsertFields) (UpsertOutcome, error) {
	var existingID int64
	var priorStatus Status
	row := s.db.QueryRowContext(ctx, `SELECT id, status FROM sites WHERE url = ?`, canonURL)
	err := row.Scan(&existingID, &priorStatus)
	exists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return UpsertOutcome{}, err
	}

	status := StatusActive
	if f.Status != nil {
		status = *f.Status
	} else if exists {
		status = priorStatus
	}
	var confidence sql.NullInt64
	if f.ConfidenceScore != nil {
		confidence = sql.NullInt64{Int64: int64(ClampConfidence(*f.ConfidenceScore)), Valid: true}
	}
	var category sql.NullString
	if f.Category != nil {
		category = sql.NullString{String: *f.Category, Valid: true}
	}
	llmVerified := LLMVerifiedUnknown
	if f.LLMVerified != nil {
		llmVerified = *f.LLMVerified
	}
	var llmReasoning sql.NullString
	if f.LLMReasoning != nil {
		llmReasoning = sql.NullString{String: *f.LLMReasoning, Valid: true}
	}

	now := time.Now().UTC()

	if exists {
		_, err := s.db.ExecContext(ctx, `
			UPDATE sites SET
				name = CASE WHEN ? <> '' THEN ? ELSE name END,
				source = ?,
				last_verified = ?,
				confidence_score = COALESCE(?, confidence_score),
				is_active = ?,
				status = ?,
				category = COALESCE(?, category),
				llm_verified = CASE WHEN ? <> 0 THEN ? ELSE llm_verified END,
				llm_reasoning = COALESCE(?, llm_reasoning)
			WHERE url = ?
		`, f.Name, f.Name, string(f.Source), now, confidence, boolToInt(deriveIsActive(status)),
			string(status), category, int(llmVerified), int(llmVerified), llmReasoning, canonURL)
		if err != nil {
			return UpsertOutcome{}, err
		}
		return UpsertOutcome{Inserted: false, PriorStatus: priorStatus, PriorExisted: true}, nil
	}

	insertConfidence := int64(0)
	if confidence.Valid {
		insertConfidence = confidence.Int64
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sites (name, url, source, last_verified, confidence_score, is_active, status, category, llm_verified, llm_reasoning, failed_attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, f.Name, canonURL, string(f.Source), now, insertConfidence, boolToInt(deriveIsActive(status)), string(status), category, int(llmVerified), llmReasoning)
	if err != nil {
		return UpsertOutcome{}, err
	}
	return UpsertOutcome{Inserted: true, PriorStatus: "", PriorExisted: false}, nil
}

func (s *Store) buffer(url string, fields UpsertFields) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = append(s.pending, pendingUpsert{url: url, fields: fields})
}

func (s *Store) overflowed() bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.HighWaterMark > 0 && len(s.pending) > s.HighWaterMark
}

// DrainPending retries buffered upserts against the store. Call this after a
// suspected outage clears. Returns the number of entries still pending.
func (s *Store) DrainPending(ctx context.Context) (int, error) {
	s.pendingMu.Lock()
	items := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []pendingUpsert
	for _, it := range items {
		if _, err := s.upsertLocked(ctx, it.url, it.fields); err != nil {
			failed = append(failed, it)
		}
	}
	if len(failed) > 0 {
		s.pendingMu.Lock()
		s.pending = append(s.pending, failed...)
		s.pendingMu.Unlock()
	}
	return len(failed), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanSite(row interface{ Scan(...any) error }) (Site, error) {
	var (
		st           Site
		lastVerified sql.NullTime
		category     sql.NullString
		llmReasoning sql.NullString
		source       string
		status       string
		llmVerified  int
	)
	if err := row.Scan(&st.ID, &st.Name, &st.URL, &source, &lastVerified, &st.ConfidenceScore,
		&st.IsActive, &status, &category, &llmVerified, &llmReasoning, &st.FailedAttempts); err != nil {
		return Site{}, err
	}
	st.Source = Source(source)
	st.Status = Status(status)
	st.LLMVerified = LLMVerified(llmVerified)
	if lastVerified.Valid {
		st.LastVerified = lastVerified.Time
	}
	if category.Valid {
		st.Category = category.String
	}
	if llmReasoning.Valid {
		st.LLMReasoning = llmReasoning.String
	}
	return st, nil
}

const siteColumns = `id, name, url, source, last_verified, confidence_score, is_active, status, category, llm_verified, llm_reasoning, failed_attempts`

// ListActive returns every Site with status = active.
func (s *Store) ListActive(ctx context.Context) ([]Site, error) {
	return s.ListByStatus(ctx, StatusActive)
}

// ListByStatus returns every Site with the given status.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Site
	for rows.Next() {
		st, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Quarantine transitions active -> quarantined and increments the failure
// counter, per spec §3 lifecycle rules.
func (s *Store) Quarantine(ctx context.Context, rawURL string, reason string) error {
	canon, err := CanonicalizeURL(rawURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		UPDATE sites SET status = 'quarantined', is_active = 0, last_verified = ?, failed_attempts = failed_attempts + 1
		WHERE url = ? AND status = 'active'
	`, time.Now().UTC(), canon)
	if err != nil {
		return err
	}
	log.Info().Str("url", canon).Str("reason", reason).Msg("site quarantined")
	return nil
}

// Reactivate transitions quarantined -> active and resets the failure
// counter, per spec §3 lifecycle rules.
func (s *Store) Reactivate(ctx context.Context, rawURL string, confidence int) error {
	canon, err := CanonicalizeURL(rawURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		UPDATE sites SET status = 'active', is_active = 1, last_verified = ?, confidence_score = ?, failed_attempts = 0
		WHERE url = ? AND status = 'quarantined'
	`, time.Now().UTC(), ClampConfidence(confidence), canon)
	return err
}

// Deactivate is the terminal transition after the failure threshold is
// reached. Rows are never hard-deleted (invariant 5).
func (s *Store) Deactivate(ctx context.Context, rawURL string) error {
	canon, err := CanonicalizeURL(rawURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		UPDATE sites SET status = 'inactive', is_active = 0, last_verified = ?
		WHERE url = ?
	`, time.Now().UTC(), canon)
	return err
}

// IncrementFailedAttempts bumps the failure counter on an already-
// quarantined row without transitioning its status, for the re-
// verification sweep's per-row failure tracking. Returns the updated
// counter value.
func (s *Store) IncrementFailedAttempts(ctx context.Context, rawURL string) (int, error) {
	canon, err := CanonicalizeURL(rawURL)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sites SET failed_attempts = failed_attempts + 1, last_verified = ?
		WHERE url = ? AND status = 'quarantined'
	`, time.Now().UTC(), canon); err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT failed_attempts FROM sites WHERE url = ?`, canon).Scan(&n)
	return n, err
}

// Get returns the Site for a canonical URL, if present.
func (s *Store) Get(ctx context.Context, rawURL string) (Site, bool, error) {
	canon, err := CanonicalizeURL(rawURL)
	if err != nil {
		return Site{}, false, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = ?`, canon)
	st, err := scanSite(row)
	if err == sql.ErrNoRows {
		return Site{}, false, nil
	}
	if err != nil {
		return Site{}, false, err
	}
	return st, true, nil
}

// CountAddedSince returns the number of rows whose rowid implies insertion
// is not directly timestamped in this schema, so last_verified is used as a
// proxy for "touched since t" which is sufficient for the Reporting Agent's
// "rows inserted in the last hour" metric given upserts always bump it.
func (s *Store) CountAddedSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites WHERE last_verified >= ?`, t.UTC()).Scan(&n)
	return n, err
}

// CountByStatus returns total rows per status, for Reporting's discovery
// and performance sections.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sites GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

// CountBySource returns total rows per source, for Reporting's
// "most_effective_source" analysis.
func (s *Store) CountBySource(ctx context.Context) (map[Source]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM sites GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Source]int{}
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		out[Source(source)] = n
	}
	return out, rows.Err()
}
