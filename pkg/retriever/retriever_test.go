package retriever_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/askdocs/internal/models"
	"github.com/xhad/askdocs/internal/testutil"
	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/retriever"
	"github.com/xhad/askdocs/pkg/xerr"
)

func TestRetrievePlainHit(t *testing.T) {
	store := &testutil.Store{Plain: []models.Chunk{
		testutil.Chunk("b", 0.6, "second"),
		testutil.Chunk("a", 0.9, "first"),
	}}
	r := retriever.New(&testutil.Embedder{}, store, retriever.DefaultConfig(), nil)

	res, err := r.Retrieve(context.Background(), "enroll a student", retriever.Options{
		Collections: []string{"roster"},
	})
	require.NoError(t, err)

	assert.Equal(t, retriever.ModePlain, res.Mode)
	assert.False(t, res.Escalated)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "a", res.Chunks[0].ID)
	assert.Equal(t, 0.3, store.LastFilters.MinScore)
	assert.Equal(t, []string{"roster"}, store.LastFilters.Collections)
	assert.Equal(t, 5, store.LastTopK)

	plain, hybrid := store.Calls()
	assert.Equal(t, 1, plain)
	assert.Equal(t, 0, hybrid)
}

func TestRetrieveEscalation(t *testing.T) {
	tests := []struct {
		name          string
		store         *testutil.Store
		wantChunks    int
		wantEscErr    bool
		wantEscalated bool
	}{
		{
			name:          "hybrid finds results",
			store:         &testutil.Store{Hybrid: []models.Chunk{testutil.Chunk("h", 0.4, "text")}},
			wantChunks:    1,
			wantEscalated: true,
		},
		{
			name:          "hybrid also empty",
			store:         &testutil.Store{},
			wantEscalated: true,
		},
		{
			name:          "hybrid fails",
			store:         &testutil.Store{HybridErr: errors.New("fts index missing")},
			wantEscalated: true,
			wantEscErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := retriever.New(&testutil.Embedder{}, tt.store, retriever.Config{
				Weights: types.HybridWeights{Vector: 0.7, Text: 0.3},
			}, nil)

			res, err := r.Retrieve(context.Background(), "gradebook export", retriever.Options{})
			require.NoError(t, err)

			assert.Equal(t, retriever.ModeHybrid, res.Mode)
			assert.Equal(t, tt.wantEscalated, res.Escalated)
			assert.Len(t, res.Chunks, tt.wantChunks)
			assert.Equal(t, tt.wantEscErr, res.EscalationErr != nil)
			assert.Equal(t, types.HybridWeights{Vector: 0.7, Text: 0.3}, tt.store.LastWeights)

			plain, hybrid := tt.store.Calls()
			assert.Equal(t, 1, plain)
			assert.Equal(t, 1, hybrid)
		})
	}
}

func TestHybridRetryUsesHybridFloor(t *testing.T) {
	tests := []struct {
		name      string
		config    retriever.Config
		wantFloor float64
	}{
		{name: "default floor", config: retriever.DefaultConfig(), wantFloor: 0},
		{name: "configured floor", config: retriever.Config{SimilarityThreshold: 0.3, HybridMinScore: 0.1}, wantFloor: 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A chunk with cosine 0.2 and a modest text rank blends to 0.15,
			// below the plain threshold but a useful hybrid hit.
			store := &testutil.Store{Hybrid: []models.Chunk{testutil.Chunk("h", 0.15, "export grades to csv")}}
			r := retriever.New(&testutil.Embedder{}, store, tt.config, nil)

			res, err := r.Retrieve(context.Background(), "export grades", retriever.Options{Sections: []string{"gradebook"}})
			require.NoError(t, err)

			assert.True(t, res.Escalated)
			require.Len(t, res.Chunks, 1)
			assert.Equal(t, tt.wantFloor, store.LastFilters.MinScore)
			assert.Equal(t, []string{"gradebook"}, store.LastFilters.Sections)
		})
	}
}

func TestRetrieveHybridRequestedSkipsEscalation(t *testing.T) {
	store := &testutil.Store{}
	r := retriever.New(&testutil.Embedder{}, store, retriever.DefaultConfig(), nil)

	res, err := r.Retrieve(context.Background(), "sso setup", retriever.Options{Hybrid: true})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.False(t, res.Escalated)
	assert.Zero(t, store.LastFilters.MinScore)

	plain, hybrid := store.Calls()
	assert.Equal(t, 0, plain)
	assert.Equal(t, 1, hybrid)
}

func TestRetrieveErrors(t *testing.T) {
	tests := []struct {
		name     string
		embedder *testutil.Embedder
		store    *testutil.Store
		code     string
	}{
		{name: "embedding failure", embedder: &testutil.Embedder{Err: errors.New("ollama down")}, store: &testutil.Store{}, code: xerr.CodeEmbeddingFailed},
		{name: "vector store failure", embedder: &testutil.Embedder{}, store: &testutil.Store{PlainErr: errors.New("pool closed")}, code: xerr.CodeRetrievalFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := retriever.New(tt.embedder, tt.store, retriever.DefaultConfig(), nil)
			_, err := r.Retrieve(context.Background(), "query", retriever.Options{})
			require.Error(t, err)
			assert.Equal(t, tt.code, xerr.CodeOf(err))
			assert.Equal(t, xerr.KindRetrieval, xerr.KindOf(err))
		})
	}
}
