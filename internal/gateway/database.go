package gateway

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SessionRecord is the persisted form of an issued session
type SessionRecord struct {
	ID        int       `json:"id"`
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	Provider  string    `json:"provider"`
	Platform  string    `json:"platform"`
	Token     string    `json:"-"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrSessionNotFound is returned when no active session matches an ID
var ErrSessionNotFound = errors.New("session not found")

// Database handles SQLite operations for the gateway
type Database struct {
	db *sql.DB
}

// NewDatabase opens the database and creates the schema. Use ":memory:" for
// an ephemeral store.
func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps writes serialized and makes ":memory:"
	// behave as one database instead of one per pooled connection.
	db.SetMaxOpenConns(1)

	database := &Database{db: db}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// initSchema creates the database tables
func (d *Database) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT UNIQUE NOT NULL,
			device_id TEXT NOT NULL,
			provider TEXT,
			platform TEXT,
			token TEXT NOT NULL,
			status TEXT DEFAULT 'active',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_device_id ON sessions(device_id)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// CreateSession persists a newly issued session
func (d *Database) CreateSession(sessionID, deviceID, provider, platform, token string, expiresAt time.Time) (*SessionRecord, error) {
	query := `INSERT INTO sessions (session_id, device_id, provider, platform, token, status, expires_at)
			  VALUES (?, ?, ?, ?, ?, 'active', ?)`

	if _, err := d.db.Exec(query, sessionID, deviceID, provider, platform, token, expiresAt.UTC()); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return d.GetSession(sessionID)
}

// GetSession returns the session with the given ID regardless of status
func (d *Database) GetSession(sessionID string) (*SessionRecord, error) {
	query := `SELECT id, session_id, device_id, provider, platform, token, status, created_at, expires_at
			  FROM sessions WHERE session_id = ?`

	var record SessionRecord
	err := d.db.QueryRow(query, sessionID).Scan(
		&record.ID, &record.SessionID, &record.DeviceID, &record.Provider,
		&record.Platform, &record.Token, &record.Status, &record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &record, nil
}

// DeleteSession marks a session deleted. It returns ErrSessionNotFound when
// no active session has that ID.
func (d *Database) DeleteSession(sessionID string) error {
	query := `UPDATE sessions SET status = 'deleted' WHERE session_id = ? AND status = 'active'`

	result, err := d.db.Exec(query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// ActiveSessions returns every session still marked active
func (d *Database) ActiveSessions() ([]*SessionRecord, error) {
	query := `SELECT id, session_id, device_id, provider, platform, token, status, created_at, expires_at
			  FROM sessions WHERE status = 'active' ORDER BY created_at DESC`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		var record SessionRecord
		err := rows.Scan(
			&record.ID, &record.SessionID, &record.DeviceID, &record.Provider,
			&record.Platform, &record.Token, &record.Status, &record.CreatedAt,
			&record.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &record)
	}

	return sessions, nil
}

// ExpireStale marks active sessions past their expiry as expired and
// returns how many were affected
func (d *Database) ExpireStale(now time.Time) (int, error) {
	query := `UPDATE sessions SET status = 'expired' WHERE status = 'active' AND expires_at < ?`

	result, err := d.db.Exec(query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check expired rows: %w", err)
	}
	return int(affected), nil
}
