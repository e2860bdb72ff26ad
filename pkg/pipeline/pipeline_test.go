package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/askdocs/internal/models"
	"github.com/xhad/askdocs/internal/testutil"
	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/metrics"
	"github.com/xhad/askdocs/pkg/retriever"
	"github.com/xhad/askdocs/pkg/xerr"
)

const goodReply = "You enroll students from the roster page.\n\n1. Open the roster.\n2. Click Enroll.\n3. Save the changes."

type fixture struct {
	embedder *testutil.Embedder
	store    *testutil.Store
	llm      *testutil.LLM
	pipeline *Pipeline
}

func newFixture(store *testutil.Store, llm *testutil.LLM, config Config) *fixture {
	emb := &testutil.Embedder{}
	r := retriever.New(emb, store, retriever.DefaultConfig(), nil)
	return &fixture{
		embedder: emb,
		store:    store,
		llm:      llm,
		pipeline: New(r, llm, config, nil, metrics.New()),
	}
}

func sized(id string, score float64, chars int) models.Chunk {
	return testutil.Chunk(id, score, strings.Repeat("x", chars))
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(&testutil.Store{Plain: []models.Chunk{
		sized("c", 0.6, 400),
		sized("a", 0.9, 400),
		sized("b", 0.85, 400),
	}}, &testutil.LLM{Reply: goodReply}, Config{ContextTokens: 250})

	res, err := f.pipeline.Run(context.Background(), "how to enroll a student", Options{PreferSteps: true})
	require.NoError(t, err)

	assert.Equal(t, "You enroll students from the roster page.", res.Summary)
	assert.Equal(t, []string{"Open the roster.", "Click Enroll.", "Save the changes."}, res.Steps)
	require.Len(t, res.Citations, 2)
	assert.Equal(t, "Doc a", res.Citations[0].Title)
	assert.Equal(t, "Doc b", res.Citations[1].Title)
	assert.Len(t, res.RetrievedDocs, 3)
	assert.Equal(t, "a", res.RetrievedDocs[0].ID)

	assert.Equal(t, StageDone, res.Debug.Stage)
	assert.False(t, res.Debug.IsFallback)
	assert.Empty(t, res.Debug.FallbackReason)
	assert.Equal(t, 3, res.Debug.DocsFound)
	assert.Equal(t, retriever.ModePlain, res.Debug.SearchMode)
	assert.Contains(t, res.Debug.Timings, StageRetrieving)
	assert.Contains(t, res.Debug.Timings, StageGenerating)

	require.Equal(t, 1, f.llm.Calls())
	require.Len(t, f.llm.Messages, 2)
	assert.Equal(t, types.RoleSystem, f.llm.Messages[0].Role)
	assert.Contains(t, f.llm.Messages[1].Content, "how to enroll a student")
	assert.Equal(t, 0.1, f.llm.Opts.Temperature)
	assert.Equal(t, 1000, f.llm.Opts.MaxTokens)
}

func TestRunStageTimings(t *testing.T) {
	const generation = 20 * time.Millisecond
	f := newFixture(&testutil.Store{Plain: []models.Chunk{sized("a", 0.9, 400)}}, &testutil.LLM{
		ReplyFn: func([]types.Message) string {
			time.Sleep(generation)
			return goodReply
		},
	}, Config{})

	res, err := f.pipeline.Run(context.Background(), "how to enroll a student", Options{})
	require.NoError(t, err)

	timings := res.Debug.Timings
	for _, stage := range []Stage{StageInit, StageRetrieving, StageContextBuilt, StagePrompted, StageGenerating, StageParsed} {
		assert.Contains(t, timings, stage, stage)
	}
	assert.NotContains(t, timings, StageDone)
	assert.GreaterOrEqual(t, timings[StageGenerating], generation)
	assert.Less(t, timings[StageParsed], generation)
}

func TestRunFallback(t *testing.T) {
	tests := []struct {
		name   string
		store  *testutil.Store
		opts   Options
		reason string
		mode   retriever.SearchMode
	}{
		{
			name:   "hybrid requested and empty",
			store:  &testutil.Store{},
			opts:   Options{Hybrid: true},
			reason: ReasonEmptyRetrieval,
			mode:   retriever.ModeHybrid,
		},
		{
			name:   "plain and hybrid empty",
			store:  &testutil.Store{},
			reason: ReasonHybridEmpty,
			mode:   retriever.ModeHybrid,
		},
		{
			name:   "hybrid escalation failed",
			store:  &testutil.Store{HybridErr: errors.New("no fts index")},
			reason: ReasonHybridFailed,
			mode:   retriever.ModeHybrid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.store, &testutil.LLM{Reply: goodReply}, Config{
				HelpCenterURL: "https://help.test",
				DocsURL:       "https://docs.test",
			})

			res, err := f.pipeline.Run(context.Background(), "how do I export grades", tt.opts)
			require.NoError(t, err)

			assert.True(t, res.Debug.IsFallback)
			assert.Equal(t, tt.reason, res.Debug.FallbackReason)
			assert.Equal(t, tt.mode, res.Debug.SearchMode)
			assert.Equal(t, StageDone, res.Debug.Stage)
			assert.Contains(t, res.Debug.Timings, StageFallback)
			assert.Equal(t, 0, res.Debug.DocsFound)

			assert.Equal(t, []models.Citation{
				{Title: "Help Center", URL: "https://help.test"},
				{Title: "Documentation", URL: "https://docs.test"},
			}, res.Citations)
			assert.NotNil(t, res.RetrievedDocs)
			assert.Empty(t, res.RetrievedDocs)
			assert.NotEmpty(t, res.Summary)
			assert.Contains(t, res.Answer, "gradebook guides")
			assert.Equal(t, 0, f.llm.Calls())
		})
	}
}

func TestRunRejectsShortQuery(t *testing.T) {
	for _, q := range []string{"", "ab", "   a  "} {
		t.Run(q, func(t *testing.T) {
			f := newFixture(&testutil.Store{}, &testutil.LLM{Reply: goodReply}, Config{})

			res, err := f.pipeline.Run(context.Background(), q, Options{})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, xerr.CodeInvalidQuery, xerr.CodeOf(err))
			assert.True(t, xerr.Is(err, xerr.KindValidation))

			assert.Equal(t, 0, f.embedder.Calls())
			plain, hybrid := f.store.Calls()
			assert.Equal(t, 0, plain+hybrid)
			assert.Equal(t, 0, f.llm.Calls())
		})
	}
}

func TestRunStageErrors(t *testing.T) {
	tests := []struct {
		name  string
		store *testutil.Store
		llm   *testutil.LLM
		stage Stage
		code  string
		docs  int
	}{
		{
			name:  "vector store failure",
			store: &testutil.Store{PlainErr: errors.New("connection refused")},
			llm:   &testutil.LLM{Reply: goodReply},
			stage: StageRetrieving,
			code:  xerr.CodeRetrievalFailed,
		},
		{
			name:  "llm failure",
			store: &testutil.Store{Plain: []models.Chunk{sized("a", 0.9, 40)}},
			llm:   &testutil.LLM{Err: errors.New("model not loaded")},
			stage: StageGenerating,
			code:  xerr.CodeGenerationFailed,
			docs:  1,
		},
		{
			name:  "blank llm output",
			store: &testutil.Store{Plain: []models.Chunk{sized("a", 0.9, 40)}},
			llm:   &testutil.LLM{Reply: " \n "},
			stage: StageGenerating,
			code:  xerr.CodeEmptyGeneration,
			docs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.store, tt.llm, Config{})

			_, err := f.pipeline.Run(context.Background(), "enroll a student", Options{})
			require.Error(t, err)

			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)
			assert.Equal(t, StageFailed, se.Debug.Stage)
			assert.Equal(t, tt.docs, se.Debug.DocsFound)
			assert.Equal(t, tt.code, xerr.CodeOf(err))
		})
	}
}

func TestRunBudgetExceeded(t *testing.T) {
	f := newFixture(&testutil.Store{Plain: []models.Chunk{sized("a", 0.9, 400)}},
		&testutil.LLM{Reply: goodReply}, Config{ContextWindow: 600, MaxTokens: 500})

	_, err := f.pipeline.Run(context.Background(), "enroll a student", Options{})
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.KindBudget))
	assert.Equal(t, xerr.CodeContextBudgetExceeded, xerr.CodeOf(err))
	assert.Equal(t, 0, f.llm.Calls())
}

func TestFallbackTips(t *testing.T) {
	tips := fallbackTips("How do I EXPORT grades after SSO login?")
	require.Len(t, tips, 4)
	assert.Contains(t, tips[0], "gradebook")
	assert.Contains(t, tips[1], "sign-in")
	assert.Contains(t, tips[2], "reporting")
	assert.Equal(t, genericTip, tips[3])

	assert.Equal(t, []string{genericTip}, fallbackTips("weather tomorrow"))
}
