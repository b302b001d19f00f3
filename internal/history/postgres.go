package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the translations table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS translations (
    id              TEXT PRIMARY KEY,
    source_language TEXT NOT NULL,
    target_language TEXT NOT NULL,
    source_text     TEXT NOT NULL,
    translated_text TEXT NOT NULL,
    confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_translations_created_at ON translations(created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] using the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// translations table and index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append implements [Store.Append].
func (s *PostgresStore) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO translations (
			id, source_language, target_language, source_text, translated_text,
			confidence, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		rec.ID, rec.SourceLanguage, rec.TargetLanguage, rec.SourceText,
		rec.TranslatedText, rec.Confidence, rec.CreatedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Record{}, ErrDuplicateID
		}
		return Record{}, fmt.Errorf("history: append: %w", err)
	}
	return rec, nil
}

// List implements [Store.List]. Records are returned newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)

	const query = `
		SELECT id, source_language, target_language, source_text,
		       translated_text, confidence, created_at
		FROM translations
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.SourceLanguage, &rec.TargetLanguage, &rec.SourceText,
			&rec.TranslatedText, &rec.Confidence, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: list scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return records, nil
}

// ClearAll implements [Store.ClearAll].
func (s *PostgresStore) ClearAll(ctx context.Context) error {
	const query = `DELETE FROM translations`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
