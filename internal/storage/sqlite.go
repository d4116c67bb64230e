// Package storage persists sessions, per-chunk transcriptions and final
// transcripts in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mpetrov/recap/internal/summary"
)

// Session is one persisted recording session.
type Session struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id,omitempty"`
	AudioSource     string     `json:"audio_source"`
	Title           string     `json:"title,omitempty"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	AudioPath       string     `json:"audio_path,omitempty"`
}

// Chunk is one persisted chunk transcription.
type Chunk struct {
	Sequence   int       `json:"sequence"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Transcript is the final aggregated text plus its structured summary.
type Transcript struct {
	SessionID string         `json:"session_id"`
	FullText  string         `json:"full_text"`
	Summary   summary.Result `json:"summary"`
	CreatedAt time.Time      `json:"created_at"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "recap.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			audio_source TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			duration_seconds REAL NOT NULL DEFAULT 0,
			audio_path TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE(session_id, seq),
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			session_id TEXT PRIMARY KEY,
			full_text TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			key_points TEXT NOT NULL DEFAULT '[]',
			action_items TEXT NOT NULL DEFAULT '[]',
			decisions TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create transcripts table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_chunks_session_id ON chunks(session_id, seq)"); err != nil {
		return fmt.Errorf("create chunks index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateSession(sess Session) error {
	if strings.TrimSpace(sess.ID) == "" {
		return errors.New("session id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions(id, owner_id, audio_source, title, status, started_at) VALUES(?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.OwnerID,
		sess.AudioSource,
		sess.Title,
		sess.Status,
		sess.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update status for session %s: %w", id, err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) FinishSession(id, status string, endedAt time.Time, duration time.Duration, audioPath string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, ended_at = ?, duration_seconds = ?, audio_path = ? WHERE id = ?`,
		status,
		endedAt.UTC().Format(time.RFC3339Nano),
		duration.Seconds(),
		audioPath,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", id, err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) InsertChunk(sessionID string, seq int, text string, confidence float64, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO chunks(session_id, seq, text, confidence, created_at) VALUES(?, ?, ?, ?, ?)`,
		sessionID,
		seq,
		strings.TrimSpace(text),
		confidence,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert chunk %d for session %s: %w", seq, sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) InsertTranscript(sessionID, fullText string, sum summary.Result) error {
	keyPoints, err := marshalList(sum.KeyPoints)
	if err != nil {
		return fmt.Errorf("marshal key points for session %s: %w", sessionID, err)
	}
	actionItems, err := marshalList(sum.ActionItems)
	if err != nil {
		return fmt.Errorf("marshal action items for session %s: %w", sessionID, err)
	}
	decisions, err := marshalList(sum.Decisions)
	if err != nil {
		return fmt.Errorf("marshal decisions for session %s: %w", sessionID, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO transcripts(session_id, full_text, summary, key_points, action_items, decisions, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		fullText,
		sum.Summary,
		keyPoints,
		actionItems,
		decisions,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert transcript for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(
		`SELECT id, owner_id, audio_source, title, status, started_at, ended_at, duration_seconds, audio_path
		 FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSessionsByDate(date string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_id, audio_source, title, status, started_at, ended_at, duration_seconds, audio_path
		 FROM sessions
		 WHERE substr(started_at, 1, 10) = ?
		 ORDER BY started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

func (s *SQLiteStore) GetChunks(sessionID string) ([]Chunk, error) {
	rows, err := s.db.Query(
		`SELECT seq, text, confidence, created_at FROM chunks WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]Chunk, 0, 32)
	for rows.Next() {
		var c Chunk
		var ts string
		if err := rows.Scan(&c.Sequence, &c.Text, &c.Confidence, &ts); err != nil {
			return nil, fmt.Errorf("scan chunk for session %s: %w", sessionID, err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse chunk timestamp for session %s: %w", sessionID, err)
		}
		c.CreatedAt = parsed

		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows for session %s: %w", sessionID, err)
	}

	return chunks, nil
}

func (s *SQLiteStore) GetTranscript(sessionID string) (Transcript, error) {
	row := s.db.QueryRow(
		`SELECT session_id, full_text, summary, key_points, action_items, decisions, created_at
		 FROM transcripts WHERE session_id = ?`,
		sessionID,
	)

	var tr Transcript
	var keyPoints, actionItems, decisions, ts string
	if err := row.Scan(&tr.SessionID, &tr.FullText, &tr.Summary.Summary, &keyPoints, &actionItems, &decisions, &ts); err != nil {
		return Transcript{}, fmt.Errorf("query transcript for session %s: %w", sessionID, err)
	}

	for _, pair := range []struct {
		raw  string
		dest *[]string
	}{
		{keyPoints, &tr.Summary.KeyPoints},
		{actionItems, &tr.Summary.ActionItems},
		{decisions, &tr.Summary.Decisions},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dest); err != nil {
			return Transcript{}, fmt.Errorf("parse transcript lists for session %s: %w", sessionID, err)
		}
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Transcript{}, fmt.Errorf("parse transcript timestamp for session %s: %w", sessionID, err)
	}
	tr.CreatedAt = parsed

	return tr, nil
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM sessions ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&sess.ID, &sess.OwnerID, &sess.AudioSource, &sess.Title, &sess.Status,
		&startedAt, &endedAt, &sess.DurationSeconds, &sess.AudioPath); err != nil {
		return Session{}, err
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	sess.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		sess.EndedAt = &parsedEnd
	}

	return sess, nil
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
