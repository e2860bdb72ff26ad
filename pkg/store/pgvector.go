package store

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/askdocs/internal/models"
	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/xerr"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	// Language is the Postgres text search configuration used by HybridSearch.
	Language string
}

// VectorStore is the vector-search collaborator over a pgvector table.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

var _ types.VectorStore = (*VectorStore)(nil)

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.Language == "" {
		config.Language = "english"
	}
	if !validIdent(config.TableName) || !validIdent(config.Language) {
		return nil, xerr.Configuration(xerr.CodeConfiguration, "table name and language must be plain identifiers")
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT,
			content TEXT,
			chunk_index INTEGER,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim),
		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
			vs.config.TableName, vs.config.TableName),
		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_content_fts_idx
		ON %s
		USING gin (to_tsvector('%s', coalesce(content, '')))`,
			vs.config.TableName, vs.config.TableName, vs.config.Language),
	}

	for _, stmt := range stmts {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Search returns the topK chunks by cosine similarity at or above filters.MinScore.
func (vs *VectorStore) Search(ctx context.Context, vector []float32, topK int, filters types.SearchFilters) ([]models.Chunk, error) {
	args := []any{pgvector.NewVector(vector), filters.MinScore}
	where, args := filterClause(filters, args)

	query := fmt.Sprintf(`
		SELECT id, url, coalesce(title, ''), coalesce(content, ''), coalesce(metadata, '{}'::jsonb),
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2%s
		ORDER BY embedding <=> $1
		LIMIT %d`,
		vs.config.TableName, where, topK)

	return vs.query(ctx, "vector search", query, args)
}

// HybridSearch ranks by weights.Vector * cosine similarity + weights.Text * normalized ts_rank_cd.
func (vs *VectorStore) HybridSearch(ctx context.Context, vector []float32, text string, topK int, weights types.HybridWeights, filters types.SearchFilters) ([]models.Chunk, error) {
	args := []any{pgvector.NewVector(vector), text, weights.Vector, weights.Text, filters.MinScore}
	where, args := filterClause(filters, args)

	// ts_rank_cd normalization 32 maps rank into [0,1).
	query := fmt.Sprintf(`
		WITH ranked AS (
			SELECT id, url, coalesce(title, '') AS title, coalesce(content, '') AS content,
				coalesce(metadata, '{}'::jsonb) AS metadata,
				$3 * (1 - (embedding <=> $1))
					+ $4 * ts_rank_cd(to_tsvector('%[2]s', coalesce(content, '')), plainto_tsquery('%[2]s', $2), 32) AS score
			FROM %[1]s
			WHERE true%[3]s
		)
		SELECT id, url, title, content, metadata, score
		FROM ranked
		WHERE score >= $5
		ORDER BY score DESC
		LIMIT %[4]d`,
		vs.config.TableName, vs.config.Language, where, topK)

	return vs.query(ctx, "hybrid search", query, args)
}

func (vs *VectorStore) Health(ctx context.Context) bool {
	return vs.pool.Ping(ctx) == nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func (vs *VectorStore) query(ctx context.Context, op, query string, args []any) ([]models.Chunk, error) {
	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, xerr.Retrieval(xerr.CodeRetrievalFailed, op, err)
	}

	chunks, err := pgx.CollectRows(rows, scanChunk)
	if err != nil {
		return nil, xerr.Retrieval(xerr.CodeRetrievalFailed, op+": scan", err)
	}
	return chunks, nil
}

func scanChunk(row pgx.CollectableRow) (models.Chunk, error) {
	var (
		c        models.Chunk
		metadata map[string]any
	)
	if err := row.Scan(&c.ID, &c.Metadata.URL, &c.Metadata.Title, &c.Content, &metadata, &c.Score); err != nil {
		return c, err
	}
	c.Metadata.Section = stringField(metadata, "section")
	c.Metadata.ContentType = stringField(metadata, "contentType")
	c.Metadata.Collection = stringField(metadata, "collection")
	c.Score = clamp01(c.Score)
	return c, nil
}

// filterClause appends metadata facet predicates, numbering placeholders after args.
func filterClause(filters types.SearchFilters, args []any) (string, []any) {
	var sb strings.Builder
	facets := []struct {
		key    string
		values []string
	}{
		{"contentType", filters.ContentTypes},
		{"section", filters.Sections},
		{"collection", filters.Collections},
	}
	for _, f := range facets {
		if len(f.values) == 0 {
			continue
		}
		args = append(args, f.values)
		fmt.Fprintf(&sb, " AND metadata->>'%s' = ANY($%d)", f.key, len(args))
	}
	return sb.String(), args
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
