package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/kb-copilot/internal/core/retrieval"
	"github.com/jinford/kb-copilot/internal/core/routing"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

// LLMNone は生成器を使わなかったことを表す llm_used の値
const LLMNone = "none"

// DefaultGenerationTimeout は生成経路全体（下書き + 修正）の既定タイムアウト
const DefaultGenerationTimeout = 30 * time.Second

// DefaultPromptTokenBudget はシステム指示と利用者プロンプトを合わせたトークン上限
const DefaultPromptTokenBudget = 3000

// 回答に添える通知
const (
	NoticeGeneratorUnavailable = "generator_unavailable: deterministic answer used"
	NoticeGenerationFallback   = "generation_failed: deterministic answer used"
	NoticeNoRelevantContext    = "no_relevant_context"
)

// ErrUnknownStrictness は未知の answer_mode を表す
var ErrUnknownStrictness = errors.New("unknown answer_mode")

// Input は回答組み立ての入力
type Input struct {
	Question       string
	Route          routing.Route
	Strictness     routing.Strictness
	Candidates     []retrieval.Candidate
	DocumentScoped bool
}

// Output は組み立てられた回答
type Output struct {
	Answer  string
	Sources []Source
	LLMUsed string
	Notice  string
	Usage   trace.Usage
}

// Assembler は経路と厳密さに応じて回答と出典を組み立てる
type Assembler struct {
	generator   Generator
	counter     TokenCounter
	tokenBudget int
	timeout     time.Duration
	pricePer1K  float64
	logger      *slog.Logger
}

// AssemblerOption は Assembler の設定オプション
type AssemblerOption func(*Assembler)

// WithGenerator は生成器を設定する。nil の場合 llm 指定は決定的経路に退避する
func WithGenerator(gen Generator) AssemblerOption {
	return func(a *Assembler) {
		a.generator = gen
	}
}

// WithTokenBudget はプロンプトのトークン上限を設定する
func WithTokenBudget(counter TokenCounter, budget int) AssemblerOption {
	return func(a *Assembler) {
		a.counter = counter
		a.tokenBudget = budget
	}
}

// WithGenerationTimeout は生成経路のタイムアウトを設定する
func WithGenerationTimeout(d time.Duration) AssemblerOption {
	return func(a *Assembler) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithPricePer1KTokens は1000トークンあたりの料金を設定する
func WithPricePer1KTokens(price float64) AssemblerOption {
	return func(a *Assembler) {
		a.pricePer1K = price
	}
}

// WithAssemblerLogger はロガーを設定する
func WithAssemblerLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// NewAssembler は新しい Assembler を作成する
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{timeout: DefaultGenerationTimeout}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// HasGenerator は生成器が設定されているかを返す
func (a *Assembler) HasGenerator() bool {
	return a.generator != nil
}

// Assemble は回答を組み立てる
// 生成器の失敗や書式違反は決定的経路への退避で吸収し、エラーは未知の厳密さに対してのみ返す
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Output, error) {
	switch in.Strictness {
	case routing.StrictnessSourcesOnly, routing.StrictnessDeterministic, routing.StrictnessLLM:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrictness, in.Strictness)
	}

	t := TemplatesFor(DetectLanguage(in.Question), in.Route)

	// sources_only は経路に関係なく本文を返さない
	if in.Strictness == routing.StrictnessSourcesOnly {
		if in.Route == routing.RouteGeneral {
			return &Output{Answer: "", Sources: []Source{}, LLMUsed: LLMNone, Notice: NoticeNoRelevantContext}, nil
		}
		return &Output{Answer: "", Sources: firstN(Project(in.Candidates), MaxCitedSources), LLMUsed: LLMNone}, nil
	}

	if in.Route == routing.RouteGeneral {
		return a.general(ctx, in, t), nil
	}

	sources := Project(in.Candidates)

	limit := maxContextBlocks
	if in.Route == routing.RouteSummary {
		limit = 0
	}
	out := a.grounded(ctx, in, t, limit)

	if in.Route == routing.RouteSummary {
		out.Sources = sources
	} else {
		out.Sources = FilterCited(out.Answer, sources)
	}
	return out, nil
}

// general は文書に根拠がない場合の回答。免責文と言い換えの案内を必ず含め、出典は空にする
func (a *Assembler) general(ctx context.Context, in Input, t Templates) *Output {
	out := &Output{Sources: []Source{}, LLMUsed: LLMNone, Notice: NoticeNoRelevantContext}
	parts := []string{t.Disclaimer}

	if in.Strictness == routing.StrictnessLLM && a.generator != nil {
		genCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		gen, err := a.generator.Generate(genCtx, t.System, renderUserPrompt(in.Question, nil, t))
		switch {
		case err != nil:
			a.logger.Warn("general answer generation failed", "error", err)
		case strings.TrimSpace(gen.Text) != "":
			parts = append(parts, strings.TrimSpace(gen.Text))
			out.LLMUsed = a.generator.Name()
			addUsage(&out.Usage, gen)
			a.price(&out.Usage)
		}
	}

	parts = append(parts, t.Hint)
	out.Answer = strings.Join(parts, "\n\n")
	return out
}

func (a *Assembler) grounded(ctx context.Context, in Input, t Templates, limit int) *Output {
	deterministic := func(notice string) *Output {
		return &Output{
			Answer:  Deterministic(in.Question, in.Route, in.Candidates, t),
			LLMUsed: LLMNone,
			Notice:  notice,
		}
	}

	if in.Strictness == routing.StrictnessDeterministic {
		return deterministic("")
	}
	if a.generator == nil {
		return deterministic(NoticeGeneratorUnavailable)
	}

	blocks := buildBlocks(in.Candidates, limit, t)
	if len(blocks) == 0 {
		return deterministic("")
	}
	blocks = fitBudget(a.counter, a.tokenBudget, t.System, in.Question, blocks, t)

	genCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, usage, err := generateGrounded(genCtx, a.generator, t.System, renderUserPrompt(in.Question, blocks, t), len(blocks), t)
	a.price(&usage)
	if err != nil {
		a.logger.Warn("falling back to deterministic answer", "route", in.Route, "error", err)
		out := deterministic(NoticeGenerationFallback)
		out.Usage = usage
		return out
	}

	return &Output{Answer: text, LLMUsed: a.generator.Name(), Usage: usage}
}

func (a *Assembler) price(u *trace.Usage) {
	u.CostUSD = float64(u.PromptTokens+u.CompletionTokens) / 1000 * a.pricePer1K
}
