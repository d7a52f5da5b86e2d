package vectordb

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const collectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	distance TEXT NOT NULL,
	created_at TEXT DEFAULT (datetime('now'))
);
`

// vectorMetric maps a Distance onto the sqlite-vec distance_metric option.
func vectorMetric(d Distance) (string, error) {
	switch d {
	case Cosine:
		return "cosine", nil
	case Euclid:
		return "l2", nil
	case Manhattan:
		return "l1", nil
	default:
		return "", fmt.Errorf("distance %s is not supported by the sqlite backend", d)
	}
}

func pointsTable(collection string) string  { return fmt.Sprintf(`"%s__points"`, collection) }
func vectorsTable(collection string) string { return fmt.Sprintf(`"%s__vectors"`, collection) }

// createCollectionTables creates the points table and the sqlite-vec virtual
// table of a collection.
func createCollectionTables(tx *sql.Tx, collection string, dimension int, distance Distance) error {
	metric, err := vectorMetric(distance)
	if err != nil {
		return err
	}

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				point_id TEXT UNIQUE NOT NULL,
				file TEXT NOT NULL,
				page INTEGER NOT NULL
			)`, pointsTable(collection)),
		fmt.Sprintf(`
			CREATE VIRTUAL TABLE %s USING vec0(
				point_rowid INTEGER PRIMARY KEY,
				embedding float[%d] distance_metric=%s
			)`, vectorsTable(collection), dimension, metric),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create collection table: %w", err)
		}
	}
	return nil
}

func dropCollectionTables(tx *sql.Tx, collection string) error {
	for _, table := range []string{vectorsTable(collection), pointsTable(collection)} {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM collections WHERE name = ?", collection); err != nil {
		return fmt.Errorf("failed to remove collection record: %w", err)
	}
	return nil
}

// initSchema initializes the database schema.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the collections catalogue. Per-collection tables are
// created on demand because their vector width differs.
func migrateV1(db *sql.DB) error {
	if _, err := db.Exec(collectionsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}
