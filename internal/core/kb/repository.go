package kb

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/kb-copilot/internal/core/idempotency"
)

// Repository は文書とチャンクの永続化を提供する
type Repository interface {
	idempotency.Store

	// CreateDocument は文書を作成し、binding があれば同じトランザクションでキーを束縛する
	// キーが既に束縛済みなら idempotency.ErrKeyTaken を返し、文書は作成しない
	CreateDocument(ctx context.Context, doc *Document, binding mo.Option[*idempotency.Record]) error

	// GetDocument は文書を取得する
	GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*Document], error)

	// ListDocuments はワークスペースの文書を新しい順に取得する
	ListDocuments(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*Document, error)

	// ListPendingDocuments は処理待ち（uploaded、または再試行可能な failed）の文書IDを古い順に取得する
	ListPendingDocuments(ctx context.Context, maxAttempts, limit int) ([]uuid.UUID, error)

	// ClaimDocument は uploaded / failed かつ attempts < maxAttempts の文書を条件付きで chunking にする
	// 確保できた場合のみ文書を返す
	ClaimDocument(ctx context.Context, id uuid.UUID, maxAttempts int) (mo.Option[*Document], error)

	// ReplaceChunks は文書単位のロックを取ったうえで旧チャンクを削除して新しいチャンクを挿入し、
	// 文書を embedded にする。すべて1つのトランザクションで行う
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*Chunk, contentHash string) error

	// MarkFailed は文書を failed にし、attempts を増やして最後のエラーを記録する
	MarkFailed(ctx context.Context, documentID uuid.UUID, lastError string) error

	// ListChunks は文書のチャンクを index 順に取得する
	ListChunks(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error)
}

// Embedder はテキストをまとめてベクトル化する
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSink はチャンク表とは別の外部ベクトル索引に再構築結果を反映する
type VectorSink interface {
	IndexChunks(ctx context.Context, doc *Document, chunks []*Chunk) error
}
