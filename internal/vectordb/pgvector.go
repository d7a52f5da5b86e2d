package vectordb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// hnswMaxDimensions is the widest vector pgvector can put in an HNSW index.
// Wider collections are searched exactly.
const hnswMaxDimensions = 2000

// PgVectorIndex is a vector database on PostgreSQL with the pgvector
// extension. Each collection is one table.
type PgVectorIndex struct {
	db *sql.DB

	mu    sync.RWMutex
	known map[string]Distance
}

// NewPgVectorIndex connects to PostgreSQL and prepares the catalogue table.
func NewPgVectorIndex(ctx context.Context, dsn string) (*PgVectorIndex, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgvector DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PgVectorIndex{db: db, known: make(map[string]Distance)}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *PgVectorIndex) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS svs_collections (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			distance TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

func (s *PgVectorIndex) Backend() string { return "pgvector" }

// pgOperator returns the pgvector distance operator and HNSW opclass for a metric.
func pgOperator(d Distance) (op, opclass string) {
	switch d {
	case Euclid:
		return "<->", "vector_l2_ops"
	case Dot:
		return "<#>", "vector_ip_ops"
	case Manhattan:
		return "<+>", "vector_l1_ops"
	default:
		return "<=>", "vector_cosine_ops"
	}
}

// pgScore converts a raw operator result into the reported score.
func pgScore(d Distance, raw float64) float64 {
	switch d {
	case Cosine:
		return 1 - raw
	case Dot:
		// <#> returns the negative inner product
		return -raw
	default:
		return raw
	}
}

func pgTable(collection string) string { return fmt.Sprintf(`"%s"`, collection) }

func (s *PgVectorIndex) CreateCollection(ctx context.Context, name string, dimension int, distance Distance) error {
	const op = "create collection"
	if err := ValidateCollectionName(name); err != nil {
		return backingErr(op, err)
	}
	if dimension <= 0 {
		return backingErr(op, fmt.Errorf("invalid dimension %d", dimension))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backingErr(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	stmts := []string{
		"DROP TABLE IF EXISTS " + pgTable(name),
		fmt.Sprintf(`CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			file TEXT NOT NULL,
			page INTEGER NOT NULL,
			embedding vector(%d) NOT NULL
		)`, pgTable(name), dimension),
	}
	if dimension <= hnswMaxDimensions {
		_, opclass := pgOperator(distance)
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX "%s_embedding_idx" ON %s USING hnsw (embedding %s)`, name, pgTable(name), opclass))
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return backingErr(op, fmt.Errorf("execute: %w", err))
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO svs_collections (name, dimension, distance) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET dimension = EXCLUDED.dimension, distance = EXCLUDED.distance
	`, name, dimension, string(distance)); err != nil {
		return backingErr(op, fmt.Errorf("record collection: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return backingErr(op, fmt.Errorf("commit: %w", err))
	}

	s.known[name] = distance
	log.Debug("Created pgvector collection", "collection", name, "dimension", dimension, "distance", distance)
	return nil
}

func (s *PgVectorIndex) CreateIndex(ctx context.Context, collection, field string) error {
	const op = "create index"
	if field != FieldFile && field != FieldPage {
		return backingErr(op, fmt.Errorf("unsupported payload field %q", field))
	}
	if err := ValidateCollectionName(collection); err != nil {
		return backingErr(op, err)
	}
	stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s_%s_idx" ON %s (%s)`, collection, field, pgTable(collection), field)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return backingErr(op, err)
	}
	return nil
}

func (s *PgVectorIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	const op = "upsert"
	if err := ValidateCollectionName(collection); err != nil {
		return backingErr(op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backingErr(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, file, page, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			file = EXCLUDED.file,
			page = EXCLUDED.page,
			embedding = EXCLUDED.embedding
	`, pgTable(collection))
	for _, p := range points {
		if _, err := tx.ExecContext(ctx, stmt, p.ID, p.Payload.File, p.Payload.Page, formatEmbedding(p.Vector)); err != nil {
			return backingErr(op, fmt.Errorf("upsert point: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return backingErr(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *PgVectorIndex) DeleteByFilter(ctx context.Context, collection, field, value string) error {
	const op = "delete points"
	if field != FieldFile {
		return backingErr(op, fmt.Errorf("unsupported filter field %q", field))
	}
	if err := ValidateCollectionName(collection); err != nil {
		return backingErr(op, err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE file = $1", pgTable(collection)), value); err != nil {
		return backingErr(op, err)
	}
	return nil
}

func (s *PgVectorIndex) DeleteCollection(ctx context.Context, name string) error {
	const op = "delete collection"
	if err := ValidateCollectionName(name); err != nil {
		return backingErr(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+pgTable(name)); err != nil {
		return backingErr(op, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM svs_collections WHERE name = $1", name); err != nil {
		return backingErr(op, err)
	}
	delete(s.known, name)
	return nil
}

func (s *PgVectorIndex) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	const op = "search"
	if err := ValidateCollectionName(collection); err != nil {
		return nil, backingErr(op, err)
	}

	distance, err := s.distance(ctx, collection)
	if err != nil {
		return nil, backingErr(op, err)
	}
	operator, _ := pgOperator(distance)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, file, page, embedding %s $1 AS raw
		FROM %s
		ORDER BY embedding %s $1
		LIMIT $2
	`, operator, pgTable(collection), operator), formatEmbedding(vector), limit)
	if err != nil {
		return nil, backingErr(op, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var raw float64
		if err := rows.Scan(&hit.ID, &hit.Payload.File, &hit.Payload.Page, &raw); err != nil {
			return nil, backingErr(op, fmt.Errorf("scan row: %w", err))
		}
		hit.Score = pgScore(distance, raw)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, backingErr(op, err)
	}
	return hits, nil
}

// distance returns a collection's metric, consulting the catalogue on a cache miss.
func (s *PgVectorIndex) distance(ctx context.Context, collection string) (Distance, error) {
	s.mu.RLock()
	d, ok := s.known[collection]
	s.mu.RUnlock()
	if ok {
		return d, nil
	}

	var name string
	err := s.db.QueryRowContext(ctx, "SELECT distance FROM svs_collections WHERE name = $1", collection).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("collection %s not found", collection)
	}
	if err != nil {
		return "", fmt.Errorf("look up collection: %w", err)
	}

	s.mu.Lock()
	s.known[collection] = Distance(name)
	s.mu.Unlock()
	return Distance(name), nil
}

// Close closes the database connection.
func (s *PgVectorIndex) Close() error {
	return s.db.Close()
}

// formatEmbedding converts a vector to pgvector text format: "[0.1,0.2,0.3]"
func formatEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
