package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xhad/askdocs/internal/types"
)

func TestFilterClause(t *testing.T) {
	where, args := filterClause(types.SearchFilters{
		ContentTypes: []string{"guide"},
		Collections:  []string{"gradebook", "admin"},
	}, []any{"vec", 0.3})

	assert.Equal(t, " AND metadata->>'contentType' = ANY($3) AND metadata->>'collection' = ANY($4)", where)
	require.Len(t, args, 4)
	assert.Equal(t, []string{"gradebook", "admin"}, args[3])
}

func TestFilterClauseEmpty(t *testing.T) {
	where, args := filterClause(types.SearchFilters{}, []any{"vec"})
	assert.Empty(t, where)
	assert.Len(t, args, 1)
}

func TestClampAndIdent(t *testing.T) {
	assert.Equal(t, 1.0, clamp01(1.2))
	assert.Equal(t, 0.0, clamp01(-0.1))
	assert.True(t, validIdent("documents_v2"))
	assert.False(t, validIdent("documents; drop table x"))
}

func startPgvector(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "askdocs",
			"POSTGRES_PASSWORD": "askdocs",
			"POSTGRES_DB":       "askdocs",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://askdocs:askdocs@%s:%s/askdocs?sslmode=disable", host, port.Port())
}

func TestVectorStoreIntegration(t *testing.T) {
	if os.Getenv("ASKDOCS_PG_IT") != "1" {
		t.Skip("set ASKDOCS_PG_IT=1 to run against a pgvector container")
	}
	ctx := context.Background()
	dsn := startPgvector(t, ctx)

	s, err := NewWithConfig(ctx, VectorStoreConfig{ConnString: dsn, TableName: "test_documents", VectorDim: 3})
	require.NoError(t, err)
	defer s.Close()
	require.True(t, s.Health(ctx))

	rows := []struct {
		id, url, title, content, contentType string
		vec                                  []float32
	}{
		{"enroll_0", "https://docs.example.com/enroll", "Enroll students", "Open the roster and click enroll student.", "guide", []float32{1, 0, 0}},
		{"grades_0", "https://docs.example.com/grades", "Gradebook", "Grades are entered in the gradebook.", "reference", []float32{0, 1, 0}},
	}
	for i, r := range rows {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO test_documents (id, url, title, content, chunk_index, embedding, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.id, r.url, r.title, r.content, i, pgvector.NewVector(r.vec), map[string]any{"contentType": r.contentType})
		require.NoError(t, err)
	}

	chunks, err := s.Search(ctx, []float32{1, 0, 0}, 5, types.SearchFilters{MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "enroll_0", chunks[0].ID)
	assert.Equal(t, "guide", chunks[0].Metadata.ContentType)
	assert.InDelta(t, 1.0, chunks[0].Score, 1e-6)

	chunks, err = s.Search(ctx, []float32{0, 0, 1}, 5, types.SearchFilters{MinScore: 0.3})
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = s.HybridSearch(ctx, []float32{0, 0, 1}, "gradebook grades", 5,
		types.HybridWeights{Vector: 0.5, Text: 0.5}, types.SearchFilters{MinScore: 0.01})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "grades_0", chunks[0].ID)
}
