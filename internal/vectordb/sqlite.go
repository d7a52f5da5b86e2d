package vectordb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteIndex is an embedded vector database on SQLite and sqlite-vec.
// Each collection gets a points table and a vec0 virtual table.
// The Dot metric is not available.
type SQLiteIndex struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteIndex opens or creates the database at dbPath.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened SQLite vector database", "path", dbPath)

	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Backend() string { return "sqlite" }

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) CreateCollection(ctx context.Context, name string, dimension int, distance Distance) error {
	const op = "create collection"
	if err := ValidateCollectionName(name); err != nil {
		return backingErr(op, err)
	}
	if dimension <= 0 {
		return backingErr(op, fmt.Errorf("invalid dimension %d", dimension))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := dropCollectionTables(tx, name); err != nil {
			return err
		}
		if err := createCollectionTables(tx, name, dimension, distance); err != nil {
			return err
		}
		_, err := tx.Exec("INSERT INTO collections (name, dimension, distance) VALUES (?, ?, ?)", name, dimension, string(distance))
		return err
	})
	if err != nil {
		return backingErr(op, err)
	}
	return nil
}

// CreateIndex adds a b-tree index on a payload column.
func (s *SQLiteIndex) CreateIndex(ctx context.Context, collection, field string) error {
	const op = "create index"
	if field != FieldFile && field != FieldPage {
		return backingErr(op, fmt.Errorf("unsupported payload field %q", field))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.collection(ctx, collection); err != nil {
		return backingErr(op, err)
	}
	stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s__%s_idx" ON %s(%s)`, collection, field, pointsTable(collection), field)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return backingErr(op, fmt.Errorf("failed to create index: %w", err))
	}
	return nil
}

func (s *SQLiteIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	const op = "upsert"

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, _, err := s.collectionInfo(ctx, collection)
	if err != nil {
		return backingErr(op, err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range points {
			if len(p.Vector) != dim {
				return fmt.Errorf("point %s has dimension %d, collection expects %d", p.ID, len(p.Vector), dim)
			}
			if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE point_rowid IN (SELECT id FROM %s WHERE point_id = ?)`,
				vectorsTable(collection), pointsTable(collection)), p.ID); err != nil {
				return fmt.Errorf("failed to delete old vector: %w", err)
			}
			if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE point_id = ?`, pointsTable(collection)), p.ID); err != nil {
				return fmt.Errorf("failed to delete old point: %w", err)
			}

			result, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s (point_id, file, page) VALUES (?, ?, ?)`, pointsTable(collection)),
				p.ID, p.Payload.File, p.Payload.Page)
			if err != nil {
				return fmt.Errorf("failed to insert point: %w", err)
			}
			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get point rowid: %w", err)
			}

			if _, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s (point_rowid, embedding) VALUES (?, ?)`, vectorsTable(collection)),
				rowID, serializeEmbedding(p.Vector)); err != nil {
				return fmt.Errorf("failed to insert vector: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return backingErr(op, err)
	}
	return nil
}

func (s *SQLiteIndex) DeleteByFilter(ctx context.Context, collection, field, value string) error {
	const op = "delete points"
	if field != FieldFile {
		return backingErr(op, fmt.Errorf("unsupported filter field %q", field))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.collection(ctx, collection); err != nil {
		return backingErr(op, err)
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE point_rowid IN (SELECT id FROM %s WHERE file = ?)`,
			vectorsTable(collection), pointsTable(collection)), value); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE file = ?`, pointsTable(collection)), value); err != nil {
			return fmt.Errorf("failed to delete points: %w", err)
		}
		return nil
	})
	if err != nil {
		return backingErr(op, err)
	}
	return nil
}

func (s *SQLiteIndex) DeleteCollection(ctx context.Context, name string) error {
	const op = "delete collection"
	if err := ValidateCollectionName(name); err != nil {
		return backingErr(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.inTx(ctx, func(tx *sql.Tx) error { return dropCollectionTables(tx, name) }); err != nil {
		return backingErr(op, err)
	}
	return nil
}

func (s *SQLiteIndex) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	const op = "search"

	s.mu.RLock()
	defer s.mu.RUnlock()

	dim, distance, err := s.collectionInfo(ctx, collection)
	if err != nil {
		return nil, backingErr(op, err)
	}
	if len(vector) != dim {
		return nil, backingErr(op, fmt.Errorf("query has dimension %d, collection expects %d", len(vector), dim))
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT p.point_id, p.file, p.page, v.distance
		FROM %s v
		JOIN %s p ON p.id = v.point_rowid
		WHERE v.embedding MATCH ?
			AND k = ?
		ORDER BY v.distance ASC
	`, vectorsTable(collection), pointsTable(collection)), serializeEmbedding(vector), limit)
	if err != nil {
		return nil, backingErr(op, fmt.Errorf("failed to search: %w", err))
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var dist float64
		if err := rows.Scan(&hit.ID, &hit.Payload.File, &hit.Payload.Page, &dist); err != nil {
			return nil, backingErr(op, fmt.Errorf("failed to scan search result: %w", err))
		}
		if distance == Cosine {
			hit.Score = 1 - dist
		} else {
			hit.Score = dist
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, backingErr(op, err)
	}
	return hits, nil
}

// Count returns the number of points stored in a collection.
func (s *SQLiteIndex) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.collection(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", pointsTable(collection))).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) collection(ctx context.Context, name string) (string, error) {
	if err := ValidateCollectionName(name); err != nil {
		return "", err
	}
	var found string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM collections WHERE name = ?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("collection %s not found", name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up collection: %w", err)
	}
	return found, nil
}

func (s *SQLiteIndex) collectionInfo(ctx context.Context, name string) (int, Distance, error) {
	if err := ValidateCollectionName(name); err != nil {
		return 0, "", err
	}
	var dim int
	var distance string
	err := s.db.QueryRowContext(ctx, "SELECT dimension, distance FROM collections WHERE name = ?", name).Scan(&dim, &distance)
	if err == sql.ErrNoRows {
		return 0, "", fmt.Errorf("collection %s not found", name)
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to look up collection: %w", err)
	}
	return dim, Distance(distance), nil
}

func (s *SQLiteIndex) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
