package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/retrieval"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension は pgvector のカラム定義と揃えた次元
	DefaultEmbeddingDimension = 1536
)

// ErrNoTexts は埋め込む対象が空の場合のエラー
var ErrNoTexts = errors.New("no texts provided")

type embedderOptions struct {
	model          string
	dimension      int
	requestOptions []option.RequestOption
	logger         *slog.Logger
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbedderRequestOptions は SDK クライアントに渡す追加オプションを設定する
func WithEmbedderRequestOptions(opts ...option.RequestOption) EmbedderOption {
	return func(o *embedderOptions) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}

// WithEmbedderLogger はロガーを設定する
func WithEmbedderLogger(logger *slog.Logger) EmbedderOption {
	return func(o *embedderOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Embedder は文書チャンクと質問文を OpenAI Embeddings API でベクトルにする
type Embedder struct {
	client      openai.Client
	model       string
	dimension   int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, options.requestOptions...)

	return &Embedder{
		client:      openai.NewClient(reqOpts...),
		model:       options.model,
		dimension:   options.dimension,
		baseBackoff: BaseBackoff,
		logger:      options.logger,
	}
}

// Embed は質問文を1件だけ埋め込む
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// BatchEmbed は入力と同じ順序でベクトルを返す（最大 kb.MaxEmbeddingBatch 件）
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrNoTexts
	}
	if len(texts) > kb.MaxEmbeddingBatch {
		return nil, fmt.Errorf("batch size exceeds maximum of %d", kb.MaxEmbeddingBatch)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := retryRateLimited(ctx, e.baseBackoff, e.logger, "embeddings", func() (*openai.CreateEmbeddingResponse, error) {
		return e.client.Embeddings.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data))
	}

	// API の返却順ではなく index で入力と対応付ける
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("unexpected embedding index %d", d.Index)
		}
		if e.dimension > 0 && len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", e.dimension, len(d.Embedding))
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		vectors[d.Index] = v
	}

	return vectors, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// インターフェース実装の確認
var (
	_ kb.Embedder        = (*Embedder)(nil)
	_ retrieval.Embedder = (*Embedder)(nil)
)
