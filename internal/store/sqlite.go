// Package store persists usage snapshots and session transcripts to a
// SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/EchoBridge/echobridge/internal/usage"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// usageKey is the single row the whole usage snapshot lives under. The
// ledger only ever loads and saves the whole thing.
const usageKey = "ledger"

// SQLiteStore persists bridge state to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent write performance
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_snapshots (
			key TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create usage table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			messages TEXT NOT NULL,
			tokens_input INTEGER NOT NULL DEFAULT 0,
			tokens_output INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transcripts table: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id)`)

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadUsage retrieves the persisted usage snapshot.
// Returns nil if no snapshot has been saved yet.
func (s *SQLiteStore) LoadUsage() (*usage.Snapshot, error) {
	var snapshotJSON string

	err := s.db.QueryRow(`
		SELECT snapshot FROM usage_snapshots WHERE key = ?
	`, usageKey).Scan(&snapshotJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage snapshot: %w", err)
	}

	var snap usage.Snapshot
	if err := json.Unmarshal([]byte(snapshotJSON), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal usage snapshot: %w", err)
	}

	return &snap, nil
}

// SaveUsage persists the whole usage snapshot (upsert).
func (s *SQLiteStore) SaveUsage(snap *usage.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal usage snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO usage_snapshots (key, snapshot, updated_at)
		VALUES (?, ?, ?)
	`, usageKey, string(data), time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to save usage snapshot: %w", err)
	}

	return nil
}

// Transcript is one saved session transcript.
type Transcript struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"sessionId"`
	Messages     []types.Message `json:"messages"`
	TokensInput  int             `json:"tokensInput"`
	TokensOutput int             `json:"tokensOutput"`
	CostUSD      float64         `json:"costUsd"`
	StartedAt    time.Time       `json:"startedAt"`
}

// SaveTranscript persists a session transcript. An empty session id is
// keyed by the transcript's own row id so unbound sessions still save.
func (s *SQLiteStore) SaveTranscript(t *Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	sessionID := t.SessionID
	if sessionID == "" {
		sessionID = t.ID
	}

	data, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO transcripts (id, session_id, messages, tokens_input, tokens_output, cost_usd, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, sessionID, string(data), t.TokensInput, t.TokensOutput, t.CostUSD, t.StartedAt.Unix(), time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	return nil
}

// LoadTranscript retrieves the most recent transcript for a session id.
// Returns nil if none exists.
func (s *SQLiteStore) LoadTranscript(sessionID string) (*Transcript, error) {
	var t Transcript
	var messagesJSON string
	var startedAtUnix int64

	err := s.db.QueryRow(`
		SELECT id, session_id, messages, tokens_input, tokens_output, cost_usd, started_at
		FROM transcripts WHERE session_id = ?
		ORDER BY updated_at DESC LIMIT 1
	`, sessionID).Scan(&t.ID, &t.SessionID, &messagesJSON, &t.TokensInput, &t.TokensOutput, &t.CostUSD, &startedAtUnix)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &t.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	t.StartedAt = time.Unix(startedAtUnix, 0)

	return &t, nil
}

// ListTranscripts returns session ids ordered by most recent update.
func (s *SQLiteStore) ListTranscripts() ([]string, error) {
	rows, err := s.db.Query(`SELECT session_id FROM transcripts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeleteTranscript removes all transcripts for a session id.
func (s *SQLiteStore) DeleteTranscript(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM transcripts WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}
