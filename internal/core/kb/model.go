package kb

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDocumentNotFound は文書が存在しない場合のエラー
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEmptyContent は本文が空の文書を拒否する
	ErrEmptyContent = errors.New("document content is empty")

	// ErrUnsupportedFile はテキストを抽出できないファイル
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrNotClaimable は処理対象として確保できない文書（処理中・完了済み・再試行上限）
	ErrNotClaimable = errors.New("document is not claimable for processing")
)

// DefaultTitle はタイトル未指定時の値
const DefaultTitle = "Untitled"

// PreviewRunes は文書詳細に含める本文プレビューの文字数
const PreviewRunes = 500

// DocumentStatus は取り込みの状態
// uploaded → chunking → embedded | failed、failed は試行回数が上限未満なら chunking に戻れる
type DocumentStatus string

const (
	StatusUploaded DocumentStatus = "uploaded"
	StatusChunking DocumentStatus = "chunking"
	StatusEmbedded DocumentStatus = "embedded"
	StatusFailed   DocumentStatus = "failed"
)

// CanTransition は状態遷移が許されるかを返す
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusUploaded:
		return to == StatusChunking
	case StatusChunking:
		return to == StatusEmbedded || to == StatusFailed
	case StatusFailed:
		return to == StatusChunking
	case StatusEmbedded:
		return to == StatusChunking
	default:
		return false
	}
}

// Document は知識ベースの文書
type Document struct {
	ID          uuid.UUID      `json:"id"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	Source      string         `json:"source"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	Content     string         `json:"-"`
	ContentHash string         `json:"content_hash"`
	Status      DocumentStatus `json:"status"`
	ChunkCount  int            `json:"chunk_count"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Claimable は処理を開始できるかを返す
func (d *Document) Claimable(maxAttempts int) bool {
	return (d.Status == StatusUploaded || d.Status == StatusFailed) && d.Attempts < maxAttempts
}

// ChunkMeta はチャンクの本文内オフセット（文字単位）
type ChunkMeta struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk は文書の断片。(DocumentID, Index) は一意
type Chunk struct {
	ID          uuid.UUID `json:"id"`
	DocumentID  uuid.UUID `json:"document_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Index       int       `json:"index"`
	Text        string    `json:"text"`
	Meta        ChunkMeta `json:"meta"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// UploadResult はアップロードの応答。冪等再生ではこの本体をそのまま返す
type UploadResult struct {
	DocumentID       uuid.UUID      `json:"document_id"`
	Status           DocumentStatus `json:"status"`
	Queued           bool           `json:"queued"`
	IdempotentReplay bool           `json:"idempotent_replay,omitempty"`
}

// DocumentDetail は文書詳細の応答
type DocumentDetail struct {
	*Document
	ContentPreview string `json:"content_preview"`
}

// ContentHash は本文の SHA-256 を返す
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// workspaceNamespace はワークスペース名から ID を導出する名前空間
var workspaceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kb-copilot:workspace"))

// WorkspaceID はワークスペース名に対応する決定的な ID を返す
func WorkspaceID(name string) uuid.UUID {
	return uuid.NewSHA1(workspaceNamespace, []byte(name))
}
