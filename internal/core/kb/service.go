package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/retrieval"
)

const (
	defaultListLimit = 50
	// SourceUpload は API / CLI から直接登録された文書
	SourceUpload = "upload"
)

// Extractor はファイルから本文を取り出す
type Extractor interface {
	Extract(filename string, data []byte) (text string, mimeType string, err error)
}

// Queue は処理待ちの文書を受け付ける
type Queue interface {
	Enqueue(documentID uuid.UUID) bool
}

// UploadParams は文書登録のパラメータ
type UploadParams struct {
	WorkspaceID    uuid.UUID
	ActorID        string
	Title          string
	Content        string
	Filename       string
	MimeType       string
	Source         string
	IdempotencyKey string
}

// UploadFileParams はファイル登録のパラメータ
type UploadFileParams struct {
	WorkspaceID    uuid.UUID
	ActorID        string
	Title          string
	Filename       string
	Data           []byte
	IdempotencyKey string
}

// DocumentService は文書の登録と参照を提供する
type DocumentService struct {
	repo        Repository
	extractor   Extractor
	queue       Queue
	coordinator *idempotency.Coordinator
	logger      *slog.Logger
}

type documentServiceOptions struct {
	extractor Extractor
	queue     Queue
	logger    *slog.Logger
}

// DocumentServiceOption は DocumentService のオプション設定
type DocumentServiceOption func(*documentServiceOptions)

// WithExtractor はファイル抽出器を設定する
func WithExtractor(e Extractor) DocumentServiceOption {
	return func(o *documentServiceOptions) {
		o.extractor = e
	}
}

// WithQueue は登録後に文書を積むキューを設定する
func WithQueue(q Queue) DocumentServiceOption {
	return func(o *documentServiceOptions) {
		o.queue = q
	}
}

// WithDocumentLogger はロガーを設定する
func WithDocumentLogger(logger *slog.Logger) DocumentServiceOption {
	return func(o *documentServiceOptions) {
		o.logger = logger
	}
}

// NewDocumentService は新しい DocumentService を作成する
func NewDocumentService(repo Repository, opts ...DocumentServiceOption) *DocumentService {
	options := documentServiceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return &DocumentService{
		repo:        repo,
		extractor:   options.extractor,
		queue:       options.queue,
		coordinator: idempotency.NewCoordinator(repo),
		logger:      options.logger,
	}
}

// SetQueue はキューを後から設定する（ワーカーが文書サービスより後に作られる場合）
func (s *DocumentService) SetQueue(q Queue) {
	s.queue = q
}

// UploadText は本文を文書として登録し、処理待ちにする
func (s *DocumentService) UploadText(ctx context.Context, params UploadParams) (*UploadResult, error) {
	if strings.TrimSpace(params.Content) == "" {
		return nil, ErrEmptyContent
	}
	params.Title = strings.TrimSpace(params.Title)
	if params.Title == "" {
		params.Title = DefaultTitle
	}
	if params.Source == "" {
		params.Source = SourceUpload
	}
	if params.MimeType == "" {
		params.MimeType = "text/plain"
	}

	fingerprint, err := idempotency.Fingerprint(map[string]any{
		"kind":         "upload",
		"workspace_id": params.WorkspaceID.String(),
		"actor":        params.ActorID,
		"title":        params.Title,
		"content":      params.Content,
	})
	if err != nil {
		return nil, err
	}

	key := idempotency.NormalizeKey(params.IdempotencyKey)
	if key != "" {
		d, err := s.coordinator.Lookup(ctx, key, fingerprint)
		if err != nil {
			return nil, err
		}
		if d.Outcome == idempotency.OutcomeReplay {
			return replayUpload(d.Record)
		}
	}

	now := time.Now().UTC()
	doc := &Document{
		ID:          uuid.New(),
		WorkspaceID: params.WorkspaceID,
		Source:      params.Source,
		Title:       params.Title,
		Filename:    params.Filename,
		MimeType:    params.MimeType,
		Content:     params.Content,
		ContentHash: ContentHash(params.Content),
		Status:      StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	result := &UploadResult{DocumentID: doc.ID, Status: StatusUploaded, Queued: true}

	binding := mo.None[*idempotency.Record]()
	if key != "" {
		body, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode upload response: %w", err)
		}
		binding = mo.Some(&idempotency.Record{
			Key:            key,
			WorkspaceID:    params.WorkspaceID,
			Fingerprint:    fingerprint,
			StoredResponse: body,
			CreatedAt:      now,
		})
	}

	if err := s.repo.CreateDocument(ctx, doc, binding); err != nil {
		if errors.Is(err, idempotency.ErrKeyTaken) {
			d, err := s.coordinator.ResolveTaken(ctx, key, fingerprint)
			if err != nil {
				return nil, err
			}
			return replayUpload(d.Record)
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Info("document uploaded", "documentID", doc.ID, "title", doc.Title, "bytes", len(doc.Content))

	if s.queue != nil && !s.queue.Enqueue(doc.ID) {
		// キューが満杯でもポーラーが拾う
		s.logger.Warn("ingestion queue is full, document left for poller", "documentID", doc.ID)
	}
	return result, nil
}

// UploadFile はファイルから本文を抽出して登録する
func (s *DocumentService) UploadFile(ctx context.Context, params UploadFileParams) (*UploadResult, error) {
	if s.extractor == nil {
		return nil, fmt.Errorf("%w: no extractor configured", ErrUnsupportedFile)
	}
	text, mimeType, err := s.extractor.Extract(params.Filename, params.Data)
	if err != nil {
		return nil, err
	}
	title := params.Title
	if strings.TrimSpace(title) == "" {
		title = params.Filename
	}
	return s.UploadText(ctx, UploadParams{
		WorkspaceID:    params.WorkspaceID,
		ActorID:        params.ActorID,
		Title:          title,
		Content:        text,
		Filename:       params.Filename,
		MimeType:       mimeType,
		IdempotencyKey: params.IdempotencyKey,
	})
}

func replayUpload(rec *idempotency.Record) (*UploadResult, error) {
	if len(rec.StoredResponse) == 0 {
		// 質問に使われたキー
		return nil, &idempotency.ConflictError{Key: rec.Key}
	}
	var result UploadResult
	if err := json.Unmarshal(rec.StoredResponse, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored upload response: %w", err)
	}
	result.IdempotentReplay = true
	return &result, nil
}

// ListDocuments は文書一覧を取得する
func (s *DocumentService) ListDocuments(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	docs, err := s.repo.ListDocuments(ctx, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// GetDocument は文書詳細を取得する
func (s *DocumentService) GetDocument(ctx context.Context, id uuid.UUID) (*DocumentDetail, error) {
	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{Document: doc, ContentPreview: preview(doc.Content)}, nil
}

func (s *DocumentService) getDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	found, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc, ok := found.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc, nil
}

// Chunks は文書のチャンクを index 順に返す
func (s *DocumentService) Chunks(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error) {
	chunks, err := s.repo.ListChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// ListChunkTexts は要約経路向けにチャンクを文書タイトル付きで返す
func (s *DocumentService) ListChunkTexts(ctx context.Context, documentID uuid.UUID) ([]*retrieval.ChunkText, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.Chunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]*retrieval.ChunkText, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, &retrieval.ChunkText{
			ChunkID:       c.ID,
			DocumentID:    c.DocumentID,
			DocumentTitle: doc.Title,
			ChunkIndex:    c.Index,
			Text:          c.Text,
		})
	}
	return out, nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewRunes {
		return content
	}
	return string(runes[:PreviewRunes])
}
