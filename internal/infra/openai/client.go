package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/jinford/kb-copilot/internal/core/answer"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultMaxTokens は回答の最大トークン数
	DefaultMaxTokens = 300

	// DefaultTemperature は回答生成の温度
	DefaultTemperature = 0.1

	// DefaultRequestsPerMinute は1分あたりの最大リクエスト数
	DefaultRequestsPerMinute = 60
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

type generatorOptions struct {
	model             string
	maxTokens         int
	temperature       float64
	requestsPerMinute int
	requestOptions    []option.RequestOption
	logger            *slog.Logger
}

// GeneratorOption は Generator のオプション設定
type GeneratorOption func(*generatorOptions)

// WithModel はチャットモデルを上書きする
func WithModel(model string) GeneratorOption {
	return func(o *generatorOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithMaxTokens は回答の最大トークン数を上書きする
func WithMaxTokens(n int) GeneratorOption {
	return func(o *generatorOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTemperature は温度を上書きする
func WithTemperature(t float64) GeneratorOption {
	return func(o *generatorOptions) {
		o.temperature = t
	}
}

// WithRequestsPerMinute はリクエストレートの上限を設定する
func WithRequestsPerMinute(n int) GeneratorOption {
	return func(o *generatorOptions) {
		if n > 0 {
			o.requestsPerMinute = n
		}
	}
}

// WithRequestOptions は SDK クライアントに渡す追加オプションを設定する
func WithRequestOptions(opts ...option.RequestOption) GeneratorOption {
	return func(o *generatorOptions) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}

// WithGeneratorLogger はロガーを設定する
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(o *generatorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Generator は OpenAI Chat Completions を使った回答生成器
type Generator struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	limiter     *rate.Limiter
	baseBackoff time.Duration
	logger      *slog.Logger
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(apiKey string, opts ...GeneratorOption) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := generatorOptions{
		model:             DefaultModel,
		maxTokens:         DefaultMaxTokens,
		temperature:       DefaultTemperature,
		requestsPerMinute: DefaultRequestsPerMinute,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	// 429 は自前でバックオフするため SDK のリトライは無効にする
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, options.requestOptions...)

	return &Generator{
		client:      openai.NewClient(reqOpts...),
		model:       options.model,
		maxTokens:   options.maxTokens,
		temperature: options.temperature,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(options.requestsPerMinute)), 1),
		baseBackoff: BaseBackoff,
		logger:      options.logger,
	}, nil
}

// Name はモデル名を返す
func (g *Generator) Name() string {
	return g.model
}

// Generate はシステム指示と利用者プロンプトから回答を生成する
func (g *Generator) Generate(ctx context.Context, system, user string) (answer.Generation, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(g.temperature),
		MaxTokens:   openai.Int(int64(g.maxTokens)),
	}

	completion, err := retryRateLimited(ctx, g.baseBackoff, g.logger, "chat", func() (*openai.ChatCompletion, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
		return g.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return answer.Generation{}, fmt.Errorf("%w: %w", answer.ErrGeneratorUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		return answer.Generation{}, fmt.Errorf("%w: no completion choices returned", answer.ErrGeneratorUnavailable)
	}

	return answer.Generation{
		Text:             strings.TrimSpace(completion.Choices[0].Message.Content),
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

// インターフェース実装の確認
var _ answer.Generator = (*Generator)(nil)
