package tracestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMirror is a DurableVectorMirror backed by pgvector, adapted from
// the teacher's persistence/databases pgVector store: same cosine-distance
// `<=>` search, narrowed to the Facade's upsert-and-search needs.
type PostgresMirror struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewPostgresMirror connects to dsn and ensures the pgvector extension,
// table, and column width (vector(dimension)) exist.
func NewPostgresMirror(ctx context.Context, dsn string, dimension int) (*PostgresMirror, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("postgres mirror requires dimension > 0")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	createTable := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS trace_embeddings (
  id TEXT PRIMARY KEY,
  vec vector(%d)
);
`, dimension)
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create trace_embeddings table: %w", err)
	}
	return &PostgresMirror{pool: pool, dimension: dimension}, nil
}

func (m *PostgresMirror) Upsert(ctx context.Context, id string, vector []float32) error {
	_, err := m.pool.Exec(ctx, `
INSERT INTO trace_embeddings(id, vec) VALUES($1, $2::vector)
ON CONFLICT (id) DO UPDATE SET vec=EXCLUDED.vec
`, id, vectorLiteral(vector))
	return err
}

func (m *PostgresMirror) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]DurableHit, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := m.pool.Query(ctx, `
SELECT id, 1 - (vec <=> $1::vector) AS score FROM trace_embeddings
ORDER BY vec <=> $1::vector LIMIT $2
`, vectorLiteral(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DurableHit, 0, k)
	for rows.Next() {
		var hit DurableHit
		if err := rows.Scan(&hit.ID, &hit.Score); err != nil {
			return nil, err
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (m *PostgresMirror) Close() error {
	m.pool.Close()
	return nil
}

func vectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
