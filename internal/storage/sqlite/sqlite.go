package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is the last recorded connection state of an account.
type Entry struct {
	Account       string
	Status        string
	LastError     string
	LastConnected time.Time
	Updated       time.Time
}

type DB struct {
	db *sql.DB
}

func New(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "xmpplink.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			account TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			last_error TEXT,
			last_connected INTEGER,
			updated INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_account ON transitions(account, at)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveStatus records a state transition for account. A "connected" status
// also moves last_connected forward.
func (d *DB) SaveStatus(account, status string, cause error) error {
	now := time.Now()
	var errText sql.NullString
	if cause != nil {
		errText = sql.NullString{String: cause.Error(), Valid: true}
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lastConnected sql.NullInt64
	if status == "connected" {
		lastConnected = sql.NullInt64{Int64: now.UnixNano(), Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO sessions (account, status, last_error, last_connected, updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			status = excluded.status,
			last_error = excluded.last_error,
			last_connected = COALESCE(excluded.last_connected, sessions.last_connected),
			updated = excluded.updated
	`, account, status, errText, lastConnected, now.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO transitions (account, status, error, at)
		VALUES (?, ?, ?, ?)
	`, account, status, errText, now.UnixNano()); err != nil {
		return fmt.Errorf("failed to save transition: %w", err)
	}

	return tx.Commit()
}

// LastStatus returns the latest entry for account, or nil if none exists.
func (d *DB) LastStatus(account string) (*Entry, error) {
	var entry Entry
	var lastError sql.NullString
	var lastConnected sql.NullInt64
	var updated int64

	err := d.db.QueryRow(`
		SELECT account, status, last_error, last_connected, updated
		FROM sessions
		WHERE account = ?
	`, account).Scan(&entry.Account, &entry.Status, &lastError, &lastConnected, &updated)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		entry.LastError = lastError.String
	}
	if lastConnected.Valid {
		entry.LastConnected = time.Unix(0, lastConnected.Int64)
	}
	entry.Updated = time.Unix(0, updated)
	return &entry, nil
}

// Transitions returns up to limit recorded statuses for account, oldest first.
func (d *DB) Transitions(account string, limit int) ([]string, error) {
	rows, err := d.db.Query(`
		SELECT status FROM (
			SELECT id, status FROM transitions
			WHERE account = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []string
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// DeleteAccount removes everything recorded for account.
func (d *DB) DeleteAccount(account string) error {
	if _, err := d.db.Exec("DELETE FROM sessions WHERE account = ?", account); err != nil {
		return err
	}
	_, err := d.db.Exec("DELETE FROM transitions WHERE account = ?", account)
	return err
}
