package kb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAttempts は文書あたりの処理試行回数の上限
	DefaultMaxAttempts = 5
	// MaxEmbeddingBatch は1回の埋め込みリクエストに含めるテキスト数の上限
	MaxEmbeddingBatch = 100
)

// Processor は文書をチャンク化・ベクトル化してチャンク集合を置き換える
type Processor struct {
	repo        Repository
	chunker     *Chunker
	embedder    Embedder
	sink        VectorSink
	maxAttempts int
	logger      *slog.Logger
}

type processorOptions struct {
	sink        VectorSink
	maxAttempts int
	logger      *slog.Logger
}

// ProcessorOption は Processor のオプション設定
type ProcessorOption func(*processorOptions)

// WithVectorSink は外部ベクトル索引を設定する
func WithVectorSink(sink VectorSink) ProcessorOption {
	return func(o *processorOptions) {
		o.sink = sink
	}
}

// WithMaxAttempts は試行回数の上限を設定する
func WithMaxAttempts(n int) ProcessorOption {
	return func(o *processorOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithProcessorLogger はロガーを設定する
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(o *processorOptions) {
		o.logger = logger
	}
}

// NewProcessor は新しい Processor を作成する
func NewProcessor(repo Repository, chunker *Chunker, embedder Embedder, opts ...ProcessorOption) *Processor {
	options := processorOptions{maxAttempts: DefaultMaxAttempts, logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return &Processor{
		repo:        repo,
		chunker:     chunker,
		embedder:    embedder,
		sink:        options.sink,
		maxAttempts: options.maxAttempts,
		logger:      options.logger,
	}
}

// MaxAttempts は試行回数の上限を返す
func (p *Processor) MaxAttempts() int {
	return p.maxAttempts
}

// Process は文書を1回処理する
// 確保できない文書には ErrNotClaimable を返す。処理中の失敗は文書を failed にしてからエラーを返す
func (p *Processor) Process(ctx context.Context, documentID uuid.UUID) error {
	claimed, err := p.repo.ClaimDocument(ctx, documentID, p.maxAttempts)
	if err != nil {
		return fmt.Errorf("failed to claim document: %w", err)
	}
	doc, ok := claimed.Get()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotClaimable, documentID)
	}

	startTime := time.Now()
	p.logger.Info("processing document", "documentID", doc.ID, "attempt", doc.Attempts+1)

	chunks, err := p.buildChunks(ctx, doc)
	if err == nil && p.sink != nil {
		if sinkErr := p.sink.IndexChunks(ctx, doc, chunks); sinkErr != nil {
			err = fmt.Errorf("failed to index chunks: %w", sinkErr)
		}
	}
	if err == nil {
		if replaceErr := p.repo.ReplaceChunks(ctx, doc.ID, chunks, ContentHash(doc.Content)); replaceErr != nil {
			err = fmt.Errorf("failed to replace chunks: %w", replaceErr)
		}
	}
	if err != nil {
		p.logger.Warn("document processing failed", "documentID", doc.ID, "error", err)
		if markErr := p.repo.MarkFailed(context.WithoutCancel(ctx), doc.ID, err.Error()); markErr != nil {
			return fmt.Errorf("failed to mark document failed: %w (original error: %v)", markErr, err)
		}
		return err
	}

	p.logger.Info("document embedded",
		"documentID", doc.ID,
		"chunks", len(chunks),
		"duration", time.Since(startTime),
	)
	return nil
}

func (p *Processor) buildChunks(ctx context.Context, doc *Document) ([]*Chunk, error) {
	pieces, err := p.chunker.Split(doc.Content)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	embeddings, err := p.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	chunks := make([]*Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &Chunk{
			ID:          uuid.Must(uuid.NewV7()),
			DocumentID:  doc.ID,
			WorkspaceID: doc.WorkspaceID,
			Index:       piece.Index,
			Text:        piece.Text,
			Meta:        piece.Meta,
			Embedding:   embeddings[i],
			CreatedAt:   now,
		}
	}
	return chunks, nil
}

func (p *Processor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxEmbeddingBatch {
		end := min(start+MaxEmbeddingBatch, len(texts))
		batch, err := p.embedder.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-start)
		}
		out = append(out, batch...)
	}
	return out, nil
}
