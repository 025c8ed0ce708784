package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/kb-copilot/internal/core/answer"
	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/retrieval"
	"github.com/jinford/kb-copilot/internal/core/routing"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

// Store は Run と冪等キーの永続化を提供する
type Store interface {
	idempotency.Store
	trace.Reader
	trace.Writer

	// StartRun は running の Run を作成し、binding があれば同じトランザクションでキーを束縛する
	// キーが既に束縛済みなら idempotency.ErrKeyTaken を返し、Run は作成しない
	StartRun(ctx context.Context, run *trace.Run, binding mo.Option[*idempotency.Record]) error
}

// ChunkReader は文書のチャンクを index 順に返す（要約経路で使う）
type ChunkReader interface {
	ListChunkTexts(ctx context.Context, documentID uuid.UUID) ([]*retrieval.ChunkText, error)
}

// Retriever は検索を実行する
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// AskService は質問応答のパイプラインを提供する
// 冪等性の確認 → Run 作成 → 検索 → ルーティング → 回答組み立て → Run 完了 の順に進む
type AskService struct {
	store       Store
	chunks      ChunkReader
	retriever   Retriever
	router      *routing.Router
	assembler   *answer.Assembler
	coordinator *idempotency.Coordinator
	logger      *slog.Logger
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	store Store,
	chunks ChunkReader,
	retriever Retriever,
	router *routing.Router,
	assembler *answer.Assembler,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		store:       store,
		chunks:      chunks,
		retriever:   retriever,
		router:      router,
		assembler:   assembler,
		coordinator: idempotency.NewCoordinator(store),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// finishTimeout は Run の終端書き込みに許す時間
const finishTimeout = 10 * time.Second

// normalized は検証済みのパラメータ
type normalized struct {
	params     AskParams
	strategy   retrieval.Strategy
	strictness mo.Option[routing.Strictness]
	key        string
}

// Ask は質問に回答する
// 返すエラーは *ValidationError / *idempotency.ConflictError / idempotency.ErrInProgress / *RunError、
// またはストア障害
func (s *AskService) Ask(ctx context.Context, params AskParams) (*AskResult, error) {
	// 1. バリデーション（Run は作らない）
	n, err := validate(params)
	if err != nil {
		return nil, err
	}

	fingerprint, err := idempotency.Fingerprint(fingerprintFields(n.params))
	if err != nil {
		return nil, err
	}

	// 2. 冪等キーの確認
	if n.key != "" {
		d, err := s.coordinator.Lookup(ctx, n.key, fingerprint)
		if err != nil {
			return nil, err
		}
		if d.Outcome == idempotency.OutcomeReplay {
			return s.replayRecord(ctx, d.Record)
		}
	}

	// 3. Run 作成（キーの束縛と同一トランザクション）
	run := trace.NewRun(n.params.WorkspaceID, n.params.Question, n.params.Mode)
	binding := mo.None[*idempotency.Record]()
	if n.key != "" {
		binding = mo.Some(&idempotency.Record{
			Key:         n.key,
			WorkspaceID: n.params.WorkspaceID,
			Fingerprint: fingerprint,
			RunID:       mo.Some(run.ID),
			CreatedAt:   time.Now().UTC(),
		})
	}
	if err := s.store.StartRun(ctx, run, binding); err != nil {
		if errors.Is(err, idempotency.ErrKeyTaken) {
			// 同じキーの並行リクエストに負けた
			d, err := s.coordinator.ResolveTaken(ctx, n.key, fingerprint)
			if err != nil {
				return nil, err
			}
			return s.replayRecord(ctx, d.Record)
		}
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	s.logger.Debug("run started", "runID", run.ID, "question", n.params.Question, "retriever", n.strategy)

	return s.execute(ctx, run, n)
}

func (s *AskService) execute(ctx context.Context, run *trace.Run, n normalized) (*AskResult, error) {
	p := n.params
	input := retrieveInput{
		Question:   p.Question,
		TopK:       p.TopK,
		Retriever:  string(n.strategy),
		AnswerMode: p.AnswerMode,
	}
	if id, ok := p.DocumentID.Get(); ok {
		str := id.String()
		input.DocumentID = &str
	}
	scoped := p.DocumentID.IsPresent()

	// 4. 要約の高速経路または通常の検索
	var decision routing.Decision
	retrieverUsed := ""
	strictness, known := n.strictness.Get()

	summary := false
	if id, ok := p.DocumentID.Get(); ok && known && s.router.IsSummaryRequest(p.Question, true, strictness) {
		chunks, err := s.chunks.ListChunkTexts(ctx, id)
		switch {
		case errors.Is(err, kb.ErrDocumentNotFound):
			// 未知の文書はチャンクなしとして通常の検索に任せる
			chunks = nil
		case err != nil:
			return nil, s.failRun(ctx, run.ID, trace.StepRetrieveContext, input, RunErrorRetrieval, err.Error(), nil)
		}
		if len(chunks) > 0 {
			sampled := routing.SampleEvenly(chunks, s.router.Thresholds().SummarySampleSize)
			decision = s.router.SummaryDecision(summaryCandidates(sampled))
			retrieverUsed = string(retrieval.HintSummary)
			summary = true
		}
	}

	if !summary {
		result, err := s.retriever.Retrieve(ctx, retrieval.Request{
			WorkspaceID: p.WorkspaceID,
			Question:    p.Question,
			DocumentID:  p.DocumentID,
			TopK:        p.TopK,
			Strategy:    n.strategy,
		})
		if err != nil {
			s.logger.Error("retrieval failed", "runID", run.ID, "error", err)
			return nil, s.failRun(ctx, run.ID, trace.StepRetrieveContext, input, RunErrorRetrieval, err.Error(), nil)
		}
		decision = s.router.Classify(result.Candidates, scoped)
		retrieverUsed = string(result.StrategyUsed)
	}
	diag := decision.Diagnostics

	// 5. 未知の answer_mode は検索結果を記録したうえで Run を error にする
	if !known {
		msg := fmt.Sprintf("%s: %s", answer.ErrUnknownStrictness, p.AnswerMode)
		retrieveStep, err := trace.NewStep(run.ID, trace.StepRetrieveContext, trace.StepStatusOK, input, retrieveOutput{
			Results:       []answer.Source{},
			Considered:    answer.Project(decision.Candidates),
			RetrieverUsed: retrieverUsed,
			Route:         decision.Route,
			Diagnostics:   &diag,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build step: %w", err)
		}
		return nil, s.failRun(ctx, run.ID, trace.StepGenerateAnswer,
			generateInput{Route: decision.Route, AnswerMode: p.AnswerMode},
			RunErrorUnknownAnswerMode, msg, &diag, retrieveStep)
	}

	// 6. 回答の組み立て
	out, err := s.assembler.Assemble(ctx, answer.Input{
		Question:       p.Question,
		Route:          decision.Route,
		Strictness:     strictness,
		Candidates:     decision.Candidates,
		DocumentScoped: scoped,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble answer: %w", err)
	}

	// 7. Step の記録と Run の完了
	retrieveStep, err := trace.NewStep(run.ID, trace.StepRetrieveContext, trace.StepStatusOK, input, retrieveOutput{
		Results:       out.Sources,
		Considered:    answer.Project(decision.Candidates),
		RetrieverUsed: retrieverUsed,
		Route:         decision.Route,
		Diagnostics:   &diag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build step: %w", err)
	}
	generateStep, err := trace.NewStep(run.ID, trace.StepGenerateAnswer, trace.StepStatusOK,
		generateInput{Route: decision.Route, AnswerMode: p.AnswerMode},
		generateOutput{LLMUsed: out.LLMUsed, AnswerMode: p.AnswerMode, Notice: out.Notice, Sources: out.Sources},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build step: %w", err)
	}

	finish := trace.Finish{Status: trace.RunStatusSuccess, FinalOutput: out.Answer, Usage: out.Usage}
	if err := s.finishRun(ctx, run.ID, finish, retrieveStep, generateStep); err != nil {
		return nil, err
	}

	s.logger.Info("ask completed",
		"runID", run.ID,
		"route", decision.Route,
		"retriever", retrieverUsed,
		"llm", out.LLMUsed,
		"sources", len(out.Sources),
	)

	return &AskResult{
		RunID:         run.ID,
		Answer:        out.Answer,
		Sources:       out.Sources,
		RetrieverUsed: retrieverUsed,
		LLMUsed:       out.LLMUsed,
		AnswerMode:    p.AnswerMode,
		Route:         decision.Route,
		Notice:        out.Notice,
		Diagnostics:   &diag,
	}, nil
}

// failRun は error Step を追記して Run を error に遷移させ、RunError を返す
func (s *AskService) failRun(
	ctx context.Context,
	runID uuid.UUID,
	stepName trace.StepName,
	input any,
	kind RunErrorKind,
	message string,
	diag *routing.Diagnostics,
	before ...*trace.Step,
) error {
	step, err := trace.NewStep(runID, stepName, trace.StepStatusError, input, errorOutput{Kind: kind, Error: message, Diagnostics: diag})
	if err != nil {
		return fmt.Errorf("failed to build step: %w", err)
	}
	steps := append(before, step)
	if err := s.finishRun(ctx, runID, trace.Finish{Status: trace.RunStatusError, Error: message}, steps...); err != nil {
		return err
	}
	return &RunError{RunID: runID, Kind: kind, Message: message, Diagnostics: diag}
}

// finishRun は呼び出し元がキャンセルされていても Run を終端状態に書き込む
func (s *AskService) finishRun(ctx context.Context, runID uuid.UUID, finish trace.Finish, steps ...*trace.Step) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := s.store.FinishRun(ctx, runID, finish, steps...); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func summaryCandidates(chunks []*retrieval.ChunkText) []retrieval.Candidate {
	out := make([]retrieval.Candidate, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, retrieval.Candidate{
			ChunkID:       c.ChunkID,
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			ChunkIndex:    c.ChunkIndex,
			Snippet:       retrieval.Snippet(c.Text),
			MatchedTerms:  []string{},
			Hint:          retrieval.HintSummary,
		})
	}
	return out
}

func validate(p AskParams) (normalized, error) {
	p.Question = strings.TrimSpace(p.Question)
	if p.Question == "" {
		return normalized{}, &ValidationError{Field: "question", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(p.Question) > MaxQuestionRunes {
		return normalized{}, &ValidationError{Field: "question", Message: fmt.Sprintf("must be at most %d characters", MaxQuestionRunes)}
	}

	if p.TopK == 0 {
		p.TopK = DefaultTopK
	}
	if p.TopK < 1 || p.TopK > MaxTopK {
		return normalized{}, &ValidationError{Field: "top_k", Message: fmt.Sprintf("must be between 1 and %d", MaxTopK)}
	}

	if p.Mode == "" {
		p.Mode = string(ModeAnswer)
	}
	switch Mode(p.Mode) {
	case ModeAnswer, ModeDocument, ModeAutomation:
	default:
		return normalized{}, &ValidationError{Field: "mode", Message: fmt.Sprintf("unsupported mode %q", p.Mode)}
	}

	strategy, ok := retrieval.ParseStrategy(p.Retriever)
	if !ok {
		return normalized{}, &ValidationError{Field: "retriever", Message: fmt.Sprintf("unsupported retriever %q", p.Retriever)}
	}
	p.Retriever = string(strategy)

	if p.AnswerMode == "" {
		p.AnswerMode = string(routing.StrictnessSourcesOnly)
	}
	strictness := mo.None[routing.Strictness]()
	if st, ok := routing.ParseStrictness(p.AnswerMode); ok {
		strictness = mo.Some(st)
	}

	if p.ActorID == "" {
		p.ActorID = AnonymousActor
	}

	return normalized{
		params:     p,
		strategy:   strategy,
		strictness: strictness,
		key:        idempotency.NormalizeKey(p.IdempotencyKey),
	}, nil
}

func fingerprintFields(p AskParams) map[string]any {
	var documentID any
	if id, ok := p.DocumentID.Get(); ok {
		documentID = id.String()
	}
	return map[string]any{
		"kind":         "ask",
		"workspace_id": p.WorkspaceID.String(),
		"actor":        p.ActorID,
		"mode":         p.Mode,
		"question":     p.Question,
		"retriever":    p.Retriever,
		"top_k":        p.TopK,
		"document_id":  documentID,
		"answer_mode":  p.AnswerMode,
	}
}
