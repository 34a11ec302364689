// Package cache provides the local sqlite-backed mirror of fetched
// network data. It is a write-through cache with unbounded retention:
// rows are only removed by an explicit Clear.
package cache

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/kojira/nostaro/internal/errors"
)

// Event is a denormalized snapshot of a protocol event. TagsJSON and
// RawJSON are retained verbatim; the store never validates that they
// agree with the other columns.
type Event struct {
	ID        string `db:"id"`
	PubKey    string `db:"pubkey"`
	Kind      int    `db:"kind"`
	Content   string `db:"content"`
	CreatedAt int64  `db:"created_at"`
	TagsJSON  string `db:"tags_json"`
	RawJSON   string `db:"raw_json"`
}

// Profile is the last-known metadata for an author. UpdatedAt is
// stamped by the store at write time.
type Profile struct {
	PubKey      string  `db:"pubkey"`
	Name        *string `db:"name"`
	DisplayName *string `db:"display_name"`
	About       *string `db:"about"`
	Picture     *string `db:"picture"`
	UpdatedAt   int64   `db:"updated_at"`
}

// DB is a handle to the cache store. It is opened fresh per command
// invocation and is not designed for multi-process concurrent writers.
type DB struct {
	conn *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
  id         TEXT PRIMARY KEY,
  pubkey     TEXT NOT NULL,
  kind       INTEGER NOT NULL,
  content    TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  tags_json  TEXT NOT NULL,
  raw_json   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
  pubkey       TEXT PRIMARY KEY,
  name         TEXT,
  display_name TEXT,
  about        TEXT,
  picture      TEXT,
  updated_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS idx_events_pubkey ON events(pubkey);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
`

// Open opens (or creates) the cache store at baseDir/cache.db and
// applies the schema idempotently. The baseDir parameter allows tests
// to use t.TempDir() instead of ~/.nostaro.
func Open(baseDir string) (*DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errors.NewStorage(err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "cache.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, errors.NewStorage(err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, errors.NewStorage(err)
	}
	_ = os.Chmod(dbPath, 0600)

	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// StoreEvent upserts an event keyed by id. Re-storing the same id
// overwrites all fields (last-write-wins, no merge).
func (d *DB) StoreEvent(ev Event) error {
	_, err := d.conn.NamedExec(`
		INSERT OR REPLACE INTO events (id, pubkey, kind, content, created_at, tags_json, raw_json)
		VALUES (:id, :pubkey, :kind, :content, :created_at, :tags_json, :raw_json)`, ev)
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// GetEvent returns the cached event with the given id, or nil when no
// row matches. Absence is not an error.
func (d *DB) GetEvent(id string) (*Event, error) {
	var ev Event
	err := d.conn.Get(&ev, "SELECT * FROM events WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return &ev, nil
}

// StoreProfile upserts profile metadata keyed by pubkey, stamping
// updated_at with the current time. The prior row, if any, is fully
// replaced.
func (d *DB) StoreProfile(pubkey string, name, displayName, about, picture *string) error {
	p := Profile{
		PubKey:      pubkey,
		Name:        name,
		DisplayName: displayName,
		About:       about,
		Picture:     picture,
		UpdatedAt:   time.Now().Unix(),
	}
	_, err := d.conn.NamedExec(`
		INSERT OR REPLACE INTO profiles (pubkey, name, display_name, about, picture, updated_at)
		VALUES (:pubkey, :name, :display_name, :about, :picture, :updated_at)`, p)
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// GetProfile returns the cached profile for pubkey, or nil when no row
// matches.
func (d *DB) GetProfile(pubkey string) (*Profile, error) {
	var p Profile
	err := d.conn.Get(&p, "SELECT * FROM profiles WHERE pubkey = ?", pubkey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return &p, nil
}

// RecentEvents returns up to limit events of the given kind, most
// recent created_at first.
func (d *DB) RecentEvents(kind, limit int) ([]Event, error) {
	events := []Event{}
	err := d.conn.Select(&events,
		"SELECT * FROM events WHERE kind = ? ORDER BY created_at DESC LIMIT ?", kind, limit)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return events, nil
}

// Clear unconditionally deletes all rows in both tables. Irreversible.
func (d *DB) Clear() error {
	if _, err := d.conn.Exec("DELETE FROM events"); err != nil {
		return errors.NewStorage(err)
	}
	if _, err := d.conn.Exec("DELETE FROM profiles"); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// Stats returns the total row counts for the events and profiles tables.
func (d *DB) Stats() (events, profiles int64, err error) {
	if err = d.conn.Get(&events, "SELECT COUNT(*) FROM events"); err != nil {
		return 0, 0, errors.NewStorage(err)
	}
	if err = d.conn.Get(&profiles, "SELECT COUNT(*) FROM profiles"); err != nil {
		return 0, 0, errors.NewStorage(err)
	}
	return events, profiles, nil
}
