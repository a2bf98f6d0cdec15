// Package settings keeps per-column display hints in a separate sqlite database.
// Hints are keyed by the application_id of the inspected database, so databases written by the same
// application share them.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	_ "modernc.org/sqlite" // sqlite driver loaded here
)

// ApplicationID marks the settings database itself
const ApplicationID = 0xe170e644

// Hint tells how values of a column should be displayed
type Hint string

// Supported hints
const (
	HintNone Hint = ""
	HintJSON Hint = "json"
)

// ErrNotFound returned by Get and Delete if there is no hint for the column
var ErrNotFound = errors.New("hint not found")

// ParseHint converts user input to a Hint, "none" clears the hint
func ParseHint(s string) (Hint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return HintJSON, nil
	case "none", "":
		return HintNone, nil
	}
	return HintNone, fmt.Errorf("unknown hint %q, expected json or none", s)
}

// Store is the sqlite backed store of display hints
type Store struct {
	db *sql.DB
}

// Entry is a single stored hint
type Entry struct {
	AppID  uint32
	Column string
	Hint   Hint
}

// New opens or creates the settings database at path, ":memory:" is accepted for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("can't open settings database %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't prepare settings database %s: %w", path, err)
	}
	log.Printf("[DEBUG] settings database %s", path)
	return &Store{db: db}, nil
}

// Close closes the settings database
func (s *Store) Close() error { return s.db.Close() }

// Get returns the hint for the column of databases with the given application id
func (s *Store) Get(appID uint32, column string) (Hint, error) {
	var hint string
	err := s.db.QueryRow("SELECT type FROM datatypes WHERE application_id = ? AND name = ?", appID, column).Scan(&hint)
	if errors.Is(err, sql.ErrNoRows) {
		return HintNone, ErrNotFound
	}
	if err != nil {
		return HintNone, fmt.Errorf("can't get hint for %s: %w", column, err)
	}
	return Hint(hint), nil
}

// Set stores the hint, replacing the existing one. HintNone deletes it.
func (s *Store) Set(appID uint32, column string, hint Hint) error {
	if hint == HintNone {
		if err := s.Delete(appID, column); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	}
	_, err := s.db.Exec("INSERT OR REPLACE INTO datatypes (application_id, name, type) VALUES (?, ?, ?)",
		appID, column, string(hint))
	if err != nil {
		return fmt.Errorf("can't set hint for %s: %w", column, err)
	}
	return nil
}

// Delete removes the hint for the column
func (s *Store) Delete(appID uint32, column string) error {
	res, err := s.db.Exec("DELETE FROM datatypes WHERE application_id = ? AND name = ?", appID, column)
	if err != nil {
		return fmt.Errorf("can't delete hint for %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all hints for the application id, ordered by column name
func (s *Store) List(appID uint32) ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, type FROM datatypes WHERE application_id = ? ORDER BY name", appID)
	if err != nil {
		return nil, fmt.Errorf("error listing hints: %w", err)
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		e := Entry{AppID: appID}
		var hint string
		if err := rows.Scan(&e.Column, &hint); err != nil {
			return nil, fmt.Errorf("error scanning hints: %w", err)
		}
		e.Hint = Hint(hint)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error retrieving hints: %w", err)
	}
	return res, nil
}

// Hints returns all hints for the application id as a column to hint map
func (s *Store) Hints(appID uint32) (map[string]Hint, error) {
	entries, err := s.List(appID)
	if err != nil {
		return nil, err
	}
	res := make(map[string]Hint, len(entries))
	for _, e := range entries {
		res[e.Column] = e.Hint
	}
	return res, nil
}

// RowQuerier is implemented by *sql.DB and *sql.Conn
type RowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AppID reads the application id of a database, 0 if it was never set
func AppID(ctx context.Context, db RowQuerier) (uint32, error) {
	var id int64
	if err := db.QueryRowContext(ctx, "PRAGMA application_id").Scan(&id); err != nil {
		return 0, fmt.Errorf("can't read application id: %w", err)
	}
	return uint32(id), nil //nolint:gosec // application_id is a 32-bit value stored as signed
}

// migrate stamps a fresh database and creates the schema. A database stamped by something else is rejected.
func migrate(db *sql.DB) error {
	id, err := AppID(context.Background(), db)
	if err != nil {
		return err
	}
	switch id {
	case ApplicationID:
	case 0:
		stamp := uint32(ApplicationID)
		// stored as signed 32-bit
		if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d", int32(stamp))); err != nil { //nolint:gosec
			return fmt.Errorf("can't set application id: %w", err)
		}
	default:
		return fmt.Errorf("not a settings database, application id is %#x", id)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS datatypes (
		application_id INT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		UNIQUE (application_id, name)
	)`)
	if err != nil {
		return fmt.Errorf("can't create datatypes table: %w", err)
	}
	return nil
}
