// Package namestore persists the udid -> (factory name, user name) mapping in
// a local SQLite database so renames survive process restarts.
package namestore

import (
	"database/sql"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	omnilocation "github.com/omnilocation/omnilocation"
)

// Store implements omnilocation.NameStore on SQLite. Rows are upserted and
// never deleted; last_seen tracks the most recent write per udid.
type Store struct {
	db *sql.DB
}

var _ omnilocation.NameStore = (*Store)(nil)

// Open creates the database file (and parent directory) when missing and
// prepares the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pkgerrors.Wrapf(err, "namestore: create dir %s failed", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "namestore: open database failed")
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("namestore: database ready")
	return &Store{db: db}, nil
}

func configure(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return pkgerrors.Wrapf(err, "namestore: execute %s failed", pragma)
		}
	}
	// Single writer keeps SQLITE_BUSY out of the rename path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	const createTable = `CREATE TABLE IF NOT EXISTS devices (
		udid TEXT PRIMARY KEY,
		real_name TEXT,
		custom_name TEXT,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(createTable); err != nil {
		return pkgerrors.Wrap(err, "namestore: init schema failed")
	}
	return nil
}

// Lookup returns the persisted names for udid. An unknown udid yields an
// empty record, not an error.
func (s *Store) Lookup(udid string) (omnilocation.NameRecord, error) {
	var rec omnilocation.NameRecord
	var factory, user sql.NullString
	err := s.db.QueryRow(
		"SELECT real_name, custom_name FROM devices WHERE udid = ?", udid,
	).Scan(&factory, &user)
	if err == sql.ErrNoRows {
		return rec, nil
	}
	if err != nil {
		return rec, pkgerrors.Wrapf(err, "namestore: lookup %s failed", udid)
	}
	rec.FactoryName = factory.String
	rec.UserName = user.String
	return rec, nil
}

// SaveFactoryName upserts the factory name for udid, leaving any user name
// untouched.
func (s *Store) SaveFactoryName(udid, name string) error {
	const stmt = `INSERT INTO devices (udid, real_name, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(udid) DO UPDATE SET
			real_name = excluded.real_name,
			last_seen = CURRENT_TIMESTAMP;`
	if _, err := s.db.Exec(stmt, udid, name); err != nil {
		return pkgerrors.Wrapf(err, "namestore: save factory name for %s failed", udid)
	}
	return nil
}

// SaveUserName upserts the user-assigned name for udid, leaving any factory
// name untouched.
func (s *Store) SaveUserName(udid, name string) error {
	const stmt = `INSERT INTO devices (udid, custom_name, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(udid) DO UPDATE SET
			custom_name = excluded.custom_name,
			last_seen = CURRENT_TIMESTAMP;`
	if _, err := s.db.Exec(stmt, udid, name); err != nil {
		return pkgerrors.Wrapf(err, "namestore: save user name for %s failed", udid)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
