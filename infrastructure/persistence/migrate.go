package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/dupbot/dupbot/internal/database"
)

// DefaultEmbeddingsSize is the dimensionality used when none is configured.
const DefaultEmbeddingsSize = 2560

// ErrDimensionMismatch indicates the existing embedding column was created
// for a different dimensionality than the configured model produces. The
// column alteration is an operator action, so this is fatal at startup.
var ErrDimensionMismatch = errors.New("embedding column dimensionality mismatch")

// Migrate creates or updates the schema. The embedding column is added with
// backend-specific SQL: halfvec(dims) plus an HNSW cosine index on
// PostgreSQL, a text column holding the vector literal on SQLite.
func Migrate(ctx context.Context, db database.Database, dims int) error {
	if dims <= 0 {
		dims = DefaultEmbeddingsSize
	}

	if err := db.Session(ctx).AutoMigrate(&threadRow{}, &commentRow{}, &jobRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Partial unique index enforcing the regeneration singleton. The
	// composite (job_type, scope) index already collapses duplicates via
	// the empty scope, this one keeps the invariant explicit.
	if err := db.Session(ctx).Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_regeneration_singleton
		 ON jobs (job_type) WHERE job_type = 'embeddings_regeneration'`,
	).Error; err != nil {
		return fmt.Errorf("create singleton index: %w", err)
	}

	if db.IsPostgres() {
		return migratePostgres(ctx, db, dims)
	}
	return migrateSQLite(ctx, db)
}

func migratePostgres(ctx context.Context, db database.Database, dims int) error {
	session := db.Session(ctx)

	if err := session.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	existing, err := embeddingColumnDims(ctx, db)
	if err != nil {
		return err
	}
	switch {
	case existing == 0:
		if err := session.Exec(
			fmt.Sprintf("ALTER TABLE threads ADD COLUMN IF NOT EXISTS embedding halfvec(%d)", dims),
		).Error; err != nil {
			return fmt.Errorf("add embedding column: %w", err)
		}
	case existing != dims:
		return fmt.Errorf("%w: column has %d, model produces %d", ErrDimensionMismatch, existing, dims)
	}

	if err := session.Exec(
		`CREATE INDEX IF NOT EXISTS idx_threads_embedding
		 ON threads USING hnsw (embedding halfvec_cosine_ops)`,
	).Error; err != nil {
		return fmt.Errorf("create hnsw index: %w", err)
	}
	return nil
}

// embeddingColumnDims returns the declared dimensionality of the embedding
// column, or 0 when the column does not exist. For pgvector types the
// dimensionality is stored in atttypmod.
func embeddingColumnDims(ctx context.Context, db database.Database) (int, error) {
	var typmod int
	err := db.Session(ctx).Raw(
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = 'threads'::regclass AND attname = 'embedding' AND NOT attisdropped`,
	).Scan(&typmod).Error
	if err != nil {
		return 0, fmt.Errorf("inspect embedding column: %w", err)
	}
	if typmod <= 0 {
		return 0, nil
	}
	return typmod, nil
}

func migrateSQLite(ctx context.Context, db database.Database) error {
	session := db.Session(ctx)

	var count int
	if err := session.Raw(
		`SELECT COUNT(*) FROM pragma_table_info('threads') WHERE name = 'embedding'`,
	).Scan(&count).Error; err != nil {
		return fmt.Errorf("inspect embedding column: %w", err)
	}
	if count == 0 {
		if err := session.Exec("ALTER TABLE threads ADD COLUMN embedding TEXT").Error; err != nil {
			return fmt.Errorf("add embedding column: %w", err)
		}
	}
	return nil
}
