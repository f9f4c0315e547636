// Package vault implements the encrypted-at-rest secret store (spec §4.2):
// schema, path resolution, and the CRUD/audit/rotation-config operations
// layered over it.
//
// Grounded in the SQLite-over-database/sql pattern from the busyrockin
// api-vault and ladzaretti vlt-cli reference repos (CGo-free
// modernc.org/sqlite driver, PRAGMA-driven durability, idempotent
// PRAGMA-table_info column migration), adapted to the spec's five-relation
// schema and AES-256-GCM-at-the-value-level encryption from
// internal/crypto rather than whole-database encryption.
package vault

import (
	"database/sql"
	"fmt"
)

const schemaVersion = "2"

// pragma statements applied to every connection: WAL for concurrent
// readers during a writer transaction, FULL synchronous for durability
// (spec §4.2), foreign keys on for the rotation tables.
const pragma = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = FULL;
PRAGMA foreign_keys = ON;
`

const createTables = `
CREATE TABLE IF NOT EXISTS vault_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS secrets (
	name        TEXT PRIMARY KEY,
	ciphertext  TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	description TEXT,
	tags        TEXT,
	sensitivity TEXT NOT NULL DEFAULT 'sensitive'
);

CREATE TABLE IF NOT EXISTS audit_log (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	action    TEXT NOT NULL,
	secret    TEXT,
	detail    TEXT
);

CREATE TABLE IF NOT EXISTS rotation_config (
	secret        TEXT PRIMARY KEY,
	provider      TEXT NOT NULL,
	schedule_days INTEGER NOT NULL,
	last_rotated  TEXT,
	next_rotation TEXT,
	enabled       INTEGER NOT NULL DEFAULT 1,
	config_blob   TEXT,
	FOREIGN KEY (secret) REFERENCES secrets(name)
);

CREATE TABLE IF NOT EXISTS rotation_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	secret    TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	status    TEXT NOT NULL,
	provider  TEXT NOT NULL,
	error     TEXT
);
`

// migrate brings a vault opened one schema version behind up to date:
// tables are created if absent (createTables is all IF NOT EXISTS), and
// columns introduced after v1 — currently just secrets.sensitivity — are
// added lazily via the same PRAGMA table_info probe the reference
// implementations use for idempotent ALTER TABLE migrations.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(createTables); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	has, err := hasColumn(db, "secrets", "sensitivity")
	if err != nil {
		return fmt.Errorf("probe sensitivity column: %w", err)
	}
	if !has {
		if _, err := db.Exec(`ALTER TABLE secrets ADD COLUMN sensitivity TEXT NOT NULL DEFAULT 'sensitive'`); err != nil {
			return fmt.Errorf("add sensitivity column: %w", err)
		}
	}

	return setMeta(db, "version", schemaVersion)
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func setMeta(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO vault_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func getMeta(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM vault_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
