package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session row does not exist.
var ErrNotFound = errors.New("not found")

// SessionRow represents a session in the database.
type SessionRow struct {
	Code      string
	GameType  string
	Status    string // "waiting", "playing", "finished"
	HostID    string
	Players   []string // join order
	Seed      uint64
	Options   json.RawMessage
	CreatedAt time.Time
}

// EventRow is one persisted entry of a match's event log. Seq is assigned
// by the store and increases by one per session.
type EventRow struct {
	SessionCode string
	Seq         int64
	ID          string
	Type        string
	PlayerID    string
	Data        json.RawMessage
	CreatedAt   time.Time
}

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			code         TEXT PRIMARY KEY,
			game_type    TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'waiting',
			host_id      TEXT NOT NULL DEFAULT '',
			players_json TEXT NOT NULL DEFAULT '[]',
			seed         INTEGER NOT NULL DEFAULT 0,
			options_json TEXT NOT NULL DEFAULT '{}',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS match_state (
			session_code TEXT PRIMARY KEY REFERENCES sessions(code),
			state_json   TEXT NOT NULL,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS events (
			session_code TEXT NOT NULL REFERENCES sessions(code),
			seq          INTEGER NOT NULL,
			id           TEXT NOT NULL,
			type         TEXT NOT NULL,
			player_id    TEXT NOT NULL DEFAULT '',
			data_json    TEXT NOT NULL DEFAULT '{}',
			created_at   DATETIME NOT NULL,
			PRIMARY KEY (session_code, seq)
		);
	`)
	return err
}

// CreateSession inserts a new waiting session.
func (s *Store) CreateSession(code, gameType string, seed uint64, options json.RawMessage) error {
	if len(options) == 0 {
		options = json.RawMessage("{}")
	}
	_, err := s.db.Exec(
		"INSERT INTO sessions (code, game_type, status, seed, options_json) VALUES (?, ?, 'waiting', ?, ?)",
		code, gameType, int64(seed), string(options),
	)
	return err
}

const sessionColumns = "code, game_type, status, host_id, players_json, seed, options_json, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*SessionRow, error) {
	var (
		sr      SessionRow
		players string
		options string
		seed    int64
	)
	if err := row.Scan(&sr.Code, &sr.GameType, &sr.Status, &sr.HostID, &players, &seed, &options, &sr.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(players), &sr.Players); err != nil {
		return nil, fmt.Errorf("session %s players: %w", sr.Code, err)
	}
	sr.Seed = uint64(seed)
	sr.Options = json.RawMessage(options)
	return &sr, nil
}

// GetSession retrieves a session by code.
func (s *Store) GetSession(code string) (*SessionRow, error) {
	sr, err := scanSession(s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE code = ?", code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", code, ErrNotFound)
	}
	return sr, err
}

// UpdateSessionStatus changes a session's status.
func (s *Store) UpdateSessionStatus(code, status string) error {
	_, err := s.db.Exec("UPDATE sessions SET status = ? WHERE code = ?", status, code)
	return err
}

// UpdateSessionPlayers records the seat list and host.
func (s *Store) UpdateSessionPlayers(code, hostID string, players []string) error {
	if players == nil {
		players = []string{}
	}
	data, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	_, err = s.db.Exec("UPDATE sessions SET host_id = ?, players_json = ? WHERE code = ?", hostID, string(data), code)
	return err
}

// ListSessions returns all sessions with the given status (or all if status is empty).
func (s *Store) ListSessions(status string) ([]SessionRow, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query("SELECT " + sessionColumns + " FROM sessions ORDER BY created_at DESC")
	} else {
		rows, err = s.db.Query("SELECT "+sessionColumns+" FROM sessions WHERE status = ? ORDER BY created_at DESC", status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []SessionRow
	for rows.Next() {
		sr, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sr)
	}
	return result, rows.Err()
}

// SaveMatchState upserts match state JSON.
func (s *Store) SaveMatchState(sessionCode, stateJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO match_state (session_code, state_json, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_code) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at
	`, sessionCode, stateJSON)
	return err
}

// GetMatchState retrieves match state JSON.
func (s *Store) GetMatchState(sessionCode string) (string, error) {
	var stateJSON string
	err := s.db.QueryRow("SELECT state_json FROM match_state WHERE session_code = ?", sessionCode).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("match state %s: %w", sessionCode, ErrNotFound)
	}
	return stateJSON, err
}

// AppendEvents stores events after the session's current tail in one
// transaction and returns the rows with their assigned sequence numbers.
func (s *Store) AppendEvents(sessionCode string, events []EventRow) ([]EventRow, error) {
	if len(events) == 0 {
		return nil, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var last int64
	if err := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_code = ?", sessionCode).Scan(&last); err != nil {
		return nil, fmt.Errorf("event tail: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO events (session_code, seq, id, type, player_id, data_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	out := make([]EventRow, len(events))
	for i, e := range events {
		e.SessionCode = sessionCode
		e.Seq = last + int64(i) + 1
		if len(e.Data) == 0 {
			e.Data = json.RawMessage("{}")
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(sessionCode, e.Seq, e.ID, e.Type, e.PlayerID, string(e.Data), e.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
		out[i] = e
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// ListEvents returns a session's events with seq greater than after, oldest first.
func (s *Store) ListEvents(sessionCode string, after int64) ([]EventRow, error) {
	rows, err := s.db.Query(`SELECT session_code, seq, id, type, player_id, data_json, created_at
		FROM events WHERE session_code = ? AND seq > ? ORDER BY seq`, sessionCode, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []EventRow
	for rows.Next() {
		var (
			e    EventRow
			data string
		)
		if err := rows.Scan(&e.SessionCode, &e.Seq, &e.ID, &e.Type, &e.PlayerID, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		result = append(result, e)
	}
	return result, rows.Err()
}

// DeleteSession removes a session with its match state and events.
func (s *Store) DeleteSession(code string) error {
	for _, q := range []string{
		"DELETE FROM events WHERE session_code = ?",
		"DELETE FROM match_state WHERE session_code = ?",
		"DELETE FROM sessions WHERE code = ?",
	} {
		if _, err := s.db.Exec(q, code); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
