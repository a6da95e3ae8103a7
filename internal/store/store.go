// Package store persists sessions, utterances and verdicts in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/veracast/internal/model"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a session or utterance does not exist
	ErrNotFound = errors.New("not found")

	// ErrVerdictAttached is returned when an utterance already carries a verdict
	ErrVerdictAttached = errors.New("verdict already attached")
)

// Store handles SQLite persistence. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a Store at dbPath (":memory:" for a private in-memory database)
// and creates the tables if they don't exist.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection keeps an in-memory database alive and shared
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		last_update_at TEXT NOT NULL,
		utterance_count INTEGER NOT NULL DEFAULT 0,
		speakers TEXT NOT NULL DEFAULT '[]',
		context_summary TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS utterances (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		speaker_key TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		created_at TEXT NOT NULL,
		status TEXT NOT NULL,
		verdict TEXT,
		UNIQUE(session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_utterances_session ON utterances(session_id, seq);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// CreateOrGetSession returns the session with id, creating it at now if missing
func (s *Store) CreateOrGetSession(ctx context.Context, id string, now time.Time) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (id, started_at, last_update_at)
		VALUES (?, ?, ?)
	`, id, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.getSession(ctx, s.db, id)
}

// GetSession returns one session
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSession(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getSession(ctx context.Context, q queryer, id string) (*model.Session, error) {
	var (
		started, updated, speakers string
		sess                       model.Session
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, started_at, last_update_at, utterance_count, speakers, context_summary
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &started, &updated, &sess.UtteranceCount, &speakers, &sess.ContextSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.StartedAt = parseTime(started)
	sess.LastUpdateAt = parseTime(updated)
	var keys []string
	if err := json.Unmarshal([]byte(speakers), &keys); err != nil {
		return nil, fmt.Errorf("decode speakers: %w", err)
	}
	sess.Speakers = make(map[string]bool, len(keys))
	for _, k := range keys {
		sess.Speakers[k] = true
	}
	return &sess, nil
}

// AppendUtterance stores a finalized utterance as pending and updates the
// session counters in the same transaction
func (s *Store) AppendUtterance(ctx context.Context, u model.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.getSession(ctx, tx, u.SessionID)
	if err != nil {
		return err
	}

	if u.Status == "" {
		u.Status = model.StatusPending
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO utterances (id, session_id, seq, speaker_key, display_name, text, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.SessionID, u.SequenceNumber, u.SpeakerKey, u.DisplayName, u.Text, formatTime(u.CreatedAt), string(u.Status))
	if err != nil {
		return fmt.Errorf("insert utterance %d: %w", u.SequenceNumber, err)
	}

	sess.Record(u)
	speakers, err := json.Marshal(sortedKeys(sess.Speakers))
	if err != nil {
		return fmt.Errorf("encode speakers: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET utterance_count = ?, last_update_at = ?, speakers = ? WHERE id = ?
	`, sess.UtteranceCount, formatTime(sess.LastUpdateAt), string(speakers), sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	return tx.Commit()
}

// UpdateStatus changes the verification status of an utterance
func (s *Store) UpdateStatus(ctx context.Context, utteranceID string, status model.UtteranceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE utterances SET status = ? WHERE id = ?`, string(status), utteranceID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return expectOne(res, "utterance "+utteranceID)
}

// UpdateVerdict attaches a verdict. A verdict is immutable once attached;
// only its claim sources may grow through AppendSources.
func (s *Store) UpdateVerdict(ctx context.Context, v model.VerificationVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	status := model.StatusComplete
	if v.Skipped {
		status = model.StatusSkipped
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE utterances SET verdict = ?, status = ? WHERE id = ? AND verdict IS NULL
	`, string(data), string(status), v.UtteranceID)
	if err != nil {
		return fmt.Errorf("update verdict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM utterances WHERE id = ?`, v.UtteranceID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check utterance: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("utterance %s: %w", v.UtteranceID, ErrNotFound)
	}
	return fmt.Errorf("utterance %s: %w", v.UtteranceID, ErrVerdictAttached)
}

// MaxSequence returns the highest sequence number stored for a session, or
// 0 when it has no utterances
func (s *Store) MaxSequence(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seq int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM utterances WHERE session_id = ?
	`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	return seq, nil
}

// ListUtterances returns a session's utterances ordered by sequence number
func (s *Store) ListUtterances(ctx context.Context, sessionID string) ([]model.ReportedUtterance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, speaker_key, display_name, text, created_at, status, verdict
		FROM utterances WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query utterances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ReportedUtterance
	for rows.Next() {
		var (
			ru      model.ReportedUtterance
			created string
			status  string
			verdict sql.NullString
		)
		u := &ru.Utterance
		if err := rows.Scan(&u.ID, &u.SessionID, &u.SequenceNumber, &u.SpeakerKey, &u.DisplayName, &u.Text, &created, &status, &verdict); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		u.CreatedAt = parseTime(created)
		u.Status = model.UtteranceStatus(status)
		if verdict.Valid {
			var v model.VerificationVerdict
			if err := json.Unmarshal([]byte(verdict.String), &v); err != nil {
				return nil, fmt.Errorf("decode verdict for %s: %w", u.ID, err)
			}
			ru.Verdict = &v
		}
		out = append(out, ru)
	}
	return out, rows.Err()
}

// AppendSources appends vetted source URLs to one claim of an attached
// verdict and returns how many were new
func (s *Store) AppendSources(ctx context.Context, utteranceID string, claimIndex int, urls []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var verdict sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT verdict FROM utterances WHERE id = ?`, utteranceID).Scan(&verdict)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !verdict.Valid) {
		return 0, fmt.Errorf("verdict for %s: %w", utteranceID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("load verdict: %w", err)
	}

	var v model.VerificationVerdict
	if err := json.Unmarshal([]byte(verdict.String), &v); err != nil {
		return 0, fmt.Errorf("decode verdict: %w", err)
	}
	if claimIndex < 0 || claimIndex >= len(v.Claims) {
		return 0, fmt.Errorf("claim %d of %s: %w", claimIndex, utteranceID, ErrNotFound)
	}

	added := v.Claims[claimIndex].AppendSources(urls)
	if added == 0 {
		return 0, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode verdict: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE utterances SET verdict = ? WHERE id = ?`, string(data), utteranceID); err != nil {
		return 0, fmt.Errorf("update verdict: %w", err)
	}
	return added, tx.Commit()
}

// UpdateSessionSummary stores the running context summary
func (s *Store) UpdateSessionSummary(ctx context.Context, sessionID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET context_summary = ? WHERE id = ?`, summary, sessionID)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return expectOne(res, "session "+sessionID)
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
