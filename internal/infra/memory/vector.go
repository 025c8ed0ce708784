package memory

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/retrieval"
)

const (
	metaDocumentID    = "document_id"
	metaDocumentTitle = "document_title"
	metaChunkIndex    = "chunk_index"
)

// VectorIndex は chromem-go によるプロセス内のベクトル索引
// ワークスペースごとにコレクションを分け、チャンクIDを文書IDとして保存する
type VectorIndex struct {
	db *chromem.DB
}

// NewVectorIndex はメモリ上の索引を作成する。path を指定した場合はディスクに永続化する
func NewVectorIndex(path string) (*VectorIndex, error) {
	if path == "" {
		return &VectorIndex{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem database: %w", err)
	}
	return &VectorIndex{db: db}, nil
}

func collectionName(workspaceID uuid.UUID) string {
	return "ws-" + workspaceID.String()
}

func (v *VectorIndex) collection(workspaceID uuid.UUID) (*chromem.Collection, error) {
	// 埋め込みは常に呼び出し側が渡すので埋め込み関数は使わない
	c, err := v.db.GetOrCreateCollection(collectionName(workspaceID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return c, nil
}

// IndexChunks は文書の既存エントリを削除してから新しいチャンクを登録する
func (v *VectorIndex) IndexChunks(ctx context.Context, doc *kb.Document, chunks []*kb.Chunk) error {
	c, err := v.collection(doc.WorkspaceID)
	if err != nil {
		return err
	}

	if c.Count() > 0 {
		if err := c.Delete(ctx, map[string]string{metaDocumentID: doc.ID.String()}, nil); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		docs = append(docs, chromem.Document{
			ID:      ch.ID.String(),
			Content: ch.Text,
			Metadata: map[string]string{
				metaDocumentID:    doc.ID.String(),
				metaDocumentTitle: doc.Title,
				metaChunkIndex:    strconv.Itoa(ch.Index),
			},
			Embedding: ch.Embedding,
		})
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add chunks: %w", err)
	}
	return nil
}

// Nearest は類似度の高い順（距離の昇順）にチャンクを返す
// chromem の類似度はコサイン類似度なので距離は 1 - similarity
func (v *VectorIndex) Nearest(ctx context.Context, q retrieval.VectorQuery) ([]retrieval.VectorHit, error) {
	c, err := v.collection(q.WorkspaceID)
	if err != nil {
		return nil, err
	}

	n := min(q.Limit, c.Count())
	if n <= 0 {
		return nil, nil
	}

	var where map[string]string
	if id, ok := q.DocumentID.Get(); ok {
		where = map[string]string{metaDocumentID: id.String()}
	}

	results, err := c.QueryEmbedding(ctx, q.Embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromem: %w", err)
	}

	hits := make([]retrieval.VectorHit, 0, len(results))
	for _, r := range results {
		chunkID, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid chunk id %q: %w", r.ID, err)
		}
		documentID, err := uuid.Parse(r.Metadata[metaDocumentID])
		if err != nil {
			return nil, fmt.Errorf("invalid document id for chunk %s: %w", r.ID, err)
		}
		index, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
		distance := 1 - float64(r.Similarity)
		hits = append(hits, retrieval.VectorHit{
			ChunkID:       chunkID,
			DocumentID:    documentID,
			DocumentTitle: r.Metadata[metaDocumentTitle],
			ChunkIndex:    index,
			Snippet:       retrieval.Snippet(r.Content),
			Distance:      distance,
			Score:         retrieval.ScoreFromDistance(distance),
		})
	}
	return hits, nil
}
