package ask_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-copilot/internal/core/answer"
	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/retrieval"
	"github.com/jinford/kb-copilot/internal/core/routing"
	"github.com/jinford/kb-copilot/internal/core/trace"
	"github.com/jinford/kb-copilot/internal/infra/memory"
	"github.com/jinford/kb-copilot/internal/infra/stubembed"
)

var workspaceID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type fixture struct {
	store     *memory.Store
	documents *kb.DocumentService
	processor *kb.Processor
	service   *ask.AskService
}

type fixtureOption struct {
	retriever ask.Retriever
	generator answer.Generator
	wrapStore func(*memory.Store) ask.Store
}

func newFixture(t *testing.T, opt fixtureOption) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.NewStore()
	index, err := memory.NewVectorIndex("")
	require.NoError(t, err)
	embedder := stubembed.NewEmbedder(64)

	documents := kb.NewDocumentService(store, kb.WithDocumentLogger(logger))
	processor := kb.NewProcessor(store, kb.NewChunker(kb.DefaultChunkSize, kb.DefaultChunkOverlap), embedder,
		kb.WithVectorSink(index), kb.WithProcessorLogger(logger))

	retriever := opt.retriever
	if retriever == nil {
		retriever = retrieval.NewService(
			retrieval.NewKeywordMatcher(store, retrieval.DefaultKeywordPoolLimit),
			index, embedder, retrieval.WithRetrievalLogger(logger),
		)
	}

	assemblerOpts := []answer.AssemblerOption{answer.WithAssemblerLogger(logger), answer.WithPricePer1KTokens(0.01)}
	if opt.generator != nil {
		assemblerOpts = append(assemblerOpts, answer.WithGenerator(opt.generator))
	}

	var askStore ask.Store = store
	if opt.wrapStore != nil {
		askStore = opt.wrapStore(store)
	}

	service := ask.NewAskService(
		askStore,
		documents,
		retriever,
		routing.NewRouter(routing.DefaultThresholds(), routing.WithRouterLogger(logger)),
		answer.NewAssembler(assemblerOpts...),
		ask.WithAskLogger(logger),
	)
	return &fixture{store: store, documents: documents, processor: processor, service: service}
}

func (f *fixture) upload(t *testing.T, title, content string) uuid.UUID {
	t.Helper()
	res, err := f.documents.UploadText(context.Background(), kb.UploadParams{
		WorkspaceID: workspaceID,
		Title:       title,
		Content:     content,
	})
	require.NoError(t, err)
	require.NoError(t, f.processor.Process(context.Background(), res.DocumentID))
	return res.DocumentID
}

func (f *fixture) runs(t *testing.T) []*trace.Run {
	t.Helper()
	runs, err := f.store.ListRuns(context.Background(), workspaceID, 100)
	require.NoError(t, err)
	return runs
}

const unicornDoc = "Release notes for the platform.\n\nThe unique token is UNICORN_42. Keep it secret."

func TestAsk_UniqueTokenRoutesToDocument(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Doc1", unicornDoc)

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "what is the unique token?",
		DocumentID:  mo.Some(docID),
		AnswerMode:  "deterministic",
	})

	require.NoError(t, err)
	assert.Equal(t, routing.RouteDocRAG, res.Route)
	require.NotEmpty(t, res.Sources)
	assert.Contains(t, res.Sources[0].Snippet, "UNICORN_42")
	assert.Contains(t, res.Answer, "UNICORN_42")
	assert.Equal(t, "hybrid", res.RetrieverUsed)
	assert.Equal(t, answer.LLMNone, res.LLMUsed)
	assert.Equal(t, "deterministic", res.AnswerMode)
	require.NotNil(t, res.Diagnostics)
	assert.GreaterOrEqual(t, res.Diagnostics.BestKeyword, 4.0)
	assert.True(t, res.Diagnostics.KeywordEvidence)

	run, err := f.store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, trace.RunStatusSuccess, run.MustGet().Status)
	assert.Equal(t, res.Answer, run.MustGet().FinalOutput)

	steps, err := f.store.ListSteps(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, trace.StepRetrieveContext, steps[0].Name)
	assert.Equal(t, trace.StepGenerateAnswer, steps[1].Name)
	assert.NotContains(t, string(steps[0].Output), `"text"`)
}

func TestAsk_UnrelatedQuestionRoutesGeneral(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Doc1", unicornDoc)

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "capital of France?",
		DocumentID:  mo.Some(docID),
		AnswerMode:  "deterministic",
	})

	require.NoError(t, err)
	assert.Equal(t, routing.RouteGeneral, res.Route)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.Sources)
	assert.Contains(t, res.Answer, "This document does not contain information")
}

func TestAsk_RussianGeneralAnswerHasDisclaimerAndHint(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Doc1", unicornDoc)

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "какая столица Франции?",
		DocumentID:  mo.Some(docID),
		AnswerMode:  "llm",
	})

	require.NoError(t, err)
	assert.Equal(t, routing.RouteGeneral, res.Route)
	assert.Contains(t, res.Answer, "В этом документе нет информации")
	assert.Contains(t, res.Answer, "Если вам нужен ответ именно по документу")
	assert.NotContains(t, res.Answer, "Ответ:")
	assert.Empty(t, res.Sources)
}

func TestAsk_SummaryTriggerUsesSampledChunks(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("Chapter text continues here. ", 20))
		b.WriteString("\n\n")
	}
	docID := f.upload(t, "Doc1", b.String())

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "what is this about?",
		DocumentID:  mo.Some(docID),
		AnswerMode:  "deterministic",
	})

	require.NoError(t, err)
	assert.Equal(t, routing.RouteSummary, res.Route)
	assert.Equal(t, "summary", res.RetrieverUsed)
	assert.NotEmpty(t, res.Sources)
	assert.LessOrEqual(t, len(res.Sources), 12)
	assert.True(t, strings.HasPrefix(res.Answer, "Document overview:"))
}

func TestAsk_RussianSummaryQuestion(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Книга", "Это книга о путешествии на север. Герой ищет дорогу домой.")

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "о чем книга?",
		DocumentID:  mo.Some(docID),
		AnswerMode:  "deterministic",
	})

	require.NoError(t, err)
	assert.Equal(t, routing.RouteSummary, res.Route)
	assert.NotEmpty(t, res.Sources)
}

func TestAsk_SummaryTriggerWithUnknownDocumentRoutesGeneral(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	f.upload(t, "Doc1", unicornDoc)

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "what is this about?",
		DocumentID:  mo.Some(uuid.New()),
		AnswerMode:  "deterministic",
	})

	require.NoError(t, err)
	assert.Equal(t, routing.RouteGeneral, res.Route)
	assert.Empty(t, res.Sources)

	run, err := f.store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, trace.RunStatusSuccess, run.MustGet().Status)
}

func TestAsk_SourcesOnlySkipsSummaryFastPath(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Doc1", unicornDoc)

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "what is this about?",
		DocumentID:  mo.Some(docID),
	})

	require.NoError(t, err)
	assert.NotEqual(t, routing.RouteSummary, res.Route)
	assert.Equal(t, "sources_only", res.AnswerMode)
	assert.Empty(t, res.Answer)
}

func TestAsk_SourcesOnlyGeneralRouteHasEmptyAnswer(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Doc1", unicornDoc)

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "capital of France?",
		DocumentID:  mo.Some(docID),
	})

	require.NoError(t, err)
	assert.Equal(t, routing.RouteGeneral, res.Route)
	assert.Equal(t, "sources_only", res.AnswerMode)
	assert.Empty(t, res.Answer)
	assert.Empty(t, res.Sources)
	assert.Equal(t, answer.NoticeNoRelevantContext, res.Notice)
}

func TestAsk_IdempotencyReplayAndConflict(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Doc1", unicornDoc)
	ctx := context.Background()

	params := ask.AskParams{
		WorkspaceID:    workspaceID,
		Question:       "what is the unique token?",
		DocumentID:     mo.Some(docID),
		AnswerMode:     "deterministic",
		IdempotencyKey: "K1",
	}

	first, err := f.service.Ask(ctx, params)
	require.NoError(t, err)
	assert.False(t, first.IdempotentReplay)

	second, err := f.service.Ask(ctx, params)
	require.NoError(t, err)
	assert.True(t, second.IdempotentReplay)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Route, second.Route)
	assert.Equal(t, first.RetrieverUsed, second.RetrieverUsed)
	assert.Equal(t, first.AnswerMode, second.AnswerMode)
	assert.Equal(t, len(first.Sources), len(second.Sources))
	assert.Equal(t, first.Sources[0].ChunkID, second.Sources[0].ChunkID)

	changed := params
	changed.TopK = 2
	_, err = f.service.Ask(ctx, changed)
	require.Error(t, err)
	var conflict *idempotency.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "K1", conflict.Key)

	assert.Len(t, f.runs(t), 1)
}

func TestAsk_ValidationErrorsCreateNoRun(t *testing.T) {
	f := newFixture(t, fixtureOption{})

	tests := []struct {
		name   string
		params ask.AskParams
		field  string
	}{
		{name: "空の質問", params: ask.AskParams{Question: "  "}, field: "question"},
		{name: "長すぎる質問", params: ask.AskParams{Question: strings.Repeat("a", ask.MaxQuestionRunes+1)}, field: "question"},
		{name: "top_k が範囲外", params: ask.AskParams{Question: "q", TopK: 51}, field: "top_k"},
		{name: "負の top_k", params: ask.AskParams{Question: "q", TopK: -1}, field: "top_k"},
		{name: "未知の retriever", params: ask.AskParams{Question: "q", Retriever: "bm25"}, field: "retriever"},
		{name: "未知の mode", params: ask.AskParams{Question: "q", Mode: "chat"}, field: "mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.WorkspaceID = workspaceID
			_, err := f.service.Ask(context.Background(), tt.params)

			var verr *ask.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, f.runs(t))
}

func TestAsk_UnknownAnswerModeFailsRun(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Doc1", unicornDoc)
	ctx := context.Background()

	params := ask.AskParams{
		WorkspaceID:    workspaceID,
		Question:       "what is the unique token?",
		DocumentID:     mo.Some(docID),
		AnswerMode:     "poetry",
		IdempotencyKey: "bad-mode",
	}
	_, err := f.service.Ask(ctx, params)

	var runErr *ask.RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ask.RunErrorUnknownAnswerMode, runErr.Kind)
	assert.Contains(t, runErr.Message, "unknown answer_mode: poetry")
	require.NotNil(t, runErr.Diagnostics)

	run, err := f.store.GetRun(ctx, runErr.RunID)
	require.NoError(t, err)
	assert.Equal(t, trace.RunStatusError, run.MustGet().Status)

	steps, err := f.store.ListSteps(ctx, runErr.RunID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, trace.StepStatusOK, steps[0].Status)
	assert.Equal(t, trace.StepStatusError, steps[1].Status)

	// 同じキーの再送は同じ Run のエラーを再生する
	_, err = f.service.Ask(ctx, params)
	var replayed *ask.RunError
	require.True(t, errors.As(err, &replayed))
	assert.Equal(t, runErr.RunID, replayed.RunID)
	assert.Equal(t, ask.RunErrorUnknownAnswerMode, replayed.Kind)
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, retrieval.Request) (*retrieval.Result, error) {
	return nil, errors.New("vector index unavailable")
}

func TestAsk_RetrievalFailureFailsRun(t *testing.T) {
	f := newFixture(t, fixtureOption{retriever: failingRetriever{}})
	ctx := context.Background()

	_, err := f.service.Ask(ctx, ask.AskParams{WorkspaceID: workspaceID, Question: "anything at all?"})

	var runErr *ask.RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ask.RunErrorRetrieval, runErr.Kind)
	assert.Contains(t, runErr.Message, "vector index unavailable")

	run, err := f.store.GetRun(ctx, runErr.RunID)
	require.NoError(t, err)
	assert.Equal(t, trace.RunStatusError, run.MustGet().Status)
	assert.Equal(t, runErr.Message, run.MustGet().Error)

	steps, err := f.store.ListSteps(ctx, runErr.RunID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, trace.StepRetrieveContext, steps[0].Name)
	assert.Equal(t, trace.StepStatusError, steps[0].Status)
}

// cancelOnRetrieve は検索中に呼び出し元が切断した状況を再現する
type cancelOnRetrieve struct {
	cancel context.CancelFunc
}

func (r cancelOnRetrieve) Retrieve(ctx context.Context, _ retrieval.Request) (*retrieval.Result, error) {
	r.cancel()
	return nil, ctx.Err()
}

// ctxStrictStore は pgx と同様にキャンセル済みのコンテキストでの書き込みを拒否する
type ctxStrictStore struct {
	*memory.Store
}

func (s ctxStrictStore) FinishRun(ctx context.Context, runID uuid.UUID, finish trace.Finish, steps ...*trace.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.FinishRun(ctx, runID, finish, steps...)
}

func TestAsk_CancelledRequestStillFinishesRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, fixtureOption{
		retriever: cancelOnRetrieve{cancel: cancel},
		wrapStore: func(m *memory.Store) ask.Store { return ctxStrictStore{Store: m} },
	})

	params := ask.AskParams{WorkspaceID: workspaceID, Question: "anything at all?", IdempotencyKey: "disconnect-1"}
	_, err := f.service.Ask(ctx, params)

	var runErr *ask.RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ask.RunErrorRetrieval, runErr.Kind)

	run, err := f.store.GetRun(context.Background(), runErr.RunID)
	require.NoError(t, err)
	assert.Equal(t, trace.RunStatusError, run.MustGet().Status)

	steps, err := f.store.ListSteps(context.Background(), runErr.RunID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, trace.StepStatusError, steps[0].Status)

	// 再送は進行中ではなく記録済みのエラーを再生する
	_, err = f.service.Ask(context.Background(), params)
	var replayed *ask.RunError
	require.True(t, errors.As(err, &replayed))
	assert.Equal(t, runErr.RunID, replayed.RunID)
	assert.Equal(t, ask.RunErrorRetrieval, replayed.Kind)
	assert.NotErrorIs(t, err, idempotency.ErrInProgress)
}

func TestAsk_ConcurrentSameKeyCreatesOneRun(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	docID := f.upload(t, "Doc1", unicornDoc)

	params := ask.AskParams{
		WorkspaceID:    workspaceID,
		Question:       "what is the unique token?",
		DocumentID:     mo.Some(docID),
		AnswerMode:     "deterministic",
		IdempotencyKey: "race-1",
	}

	const callers = 32
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]*ask.AskResult, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.service.Ask(context.Background(), params)
		}(i)
	}
	close(start)
	wg.Wait()

	fresh := 0
	var winner uuid.UUID
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], idempotency.ErrInProgress)
			continue
		}
		if !results[i].IdempotentReplay {
			fresh++
			winner = results[i].RunID
		}
	}
	assert.Equal(t, 1, fresh)

	runs := f.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, winner, runs[0].ID)
	for i := 0; i < callers; i++ {
		if errs[i] == nil {
			assert.Equal(t, winner, results[i].RunID)
		}
	}
}

type scriptedGenerator struct {
	text string
}

func (g scriptedGenerator) Name() string { return "gpt-test" }

func (g scriptedGenerator) Generate(context.Context, string, string) (answer.Generation, error) {
	return answer.Generation{Text: g.text, PromptTokens: 400, CompletionTokens: 100}, nil
}

func TestAsk_GeneratedAnswerRecordsUsage(t *testing.T) {
	f := newFixture(t, fixtureOption{generator: scriptedGenerator{
		text: "Answer: The token is UNICORN_42 [1].\nSources:\n- [1] Doc1",
	}})
	docID := f.upload(t, "Doc1", unicornDoc)
	ctx := context.Background()

	res, err := f.service.Ask(ctx, ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "what is the unique token?",
		DocumentID:  mo.Some(docID),
		AnswerMode:  "langchain_rag",
	})

	require.NoError(t, err)
	assert.Equal(t, "gpt-test", res.LLMUsed)
	assert.Equal(t, "langchain_rag", res.AnswerMode)
	assert.Len(t, res.Sources, 1)

	run, err := f.store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 400, run.MustGet().PromptTokens)
	assert.Equal(t, 100, run.MustGet().CompletionTokens)
	assert.InDelta(t, 0.005, run.MustGet().CostUSD, 1e-9)
}

func TestAsk_WorkspaceWideKeywordSearch(t *testing.T) {
	f := newFixture(t, fixtureOption{})
	f.upload(t, "Doc1", unicornDoc)
	f.upload(t, "Doc2", "Bananas are yellow. Apples are red.")

	res, err := f.service.Ask(context.Background(), ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "what is the unique token?",
		Retriever:   "keyword",
		AnswerMode:  "sources_only",
	})

	require.NoError(t, err)
	assert.Equal(t, "keyword", res.RetrieverUsed)
	assert.Equal(t, routing.RouteDocRAG, res.Route)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "Doc1", res.Sources[0].DocumentTitle)
}
