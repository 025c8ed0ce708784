package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/kb-copilot/internal/core/retrieval"
	"github.com/jinford/kb-copilot/internal/infra/postgres/sqlc"
)

// wordClass は語の一部とみなす文字（retrieval.CountWholeWord と同じ境界）
const wordClass = `0-9A-Za-zА-Яа-яЁё_`

// SearchRepository はチャンク表に対するキーワード候補取得と pgvector の近傍検索を提供する
type SearchRepository struct {
	q sqlc.Querier
}

// NewSearchRepository は新しい SearchRepository を作成します
func NewSearchRepository(q sqlc.Querier) *SearchRepository {
	return &SearchRepository{q: q}
}

// コンパイル時の型チェック
var (
	_ retrieval.KeywordSource = (*SearchRepository)(nil)
	_ retrieval.VectorIndex   = (*SearchRepository)(nil)
)

// wordPattern は語のいずれかに語境界付きで一致する POSIX 正規表現を返す
func wordPattern(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(t)))
	}
	if len(quoted) == 0 {
		return ""
	}
	return fmt.Sprintf(`(^|[^%s])(%s)($|[^%s])`, wordClass, strings.Join(quoted, "|"), wordClass)
}

// KeywordCandidates は本文またはタイトルが語に一致するチャンクを新しい順に返す
// 語ごとの出現回数は呼び出し側で数える
func (r *SearchRepository) KeywordCandidates(ctx context.Context, q retrieval.KeywordQuery) ([]*retrieval.ChunkText, error) {
	pattern := wordPattern(q.Terms)
	if pattern == "" {
		return []*retrieval.ChunkText{}, nil
	}

	rows, err := r.q.ListKeywordCandidates(ctx, sqlc.ListKeywordCandidatesParams{
		WorkspaceID: UUIDToPgtype(q.WorkspaceID),
		DocumentID:  UUIDOptionToPgtype(q.DocumentID),
		Pattern:     pattern,
		RowLimit:    rowLimit(q.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keyword candidates: %w", err)
	}

	out := make([]*retrieval.ChunkText, 0, len(rows))
	for _, row := range rows {
		out = append(out, &retrieval.ChunkText{
			ChunkID:       PgtypeToUUID(row.ChunkID),
			DocumentID:    PgtypeToUUID(row.DocumentID),
			DocumentTitle: row.DocumentTitle,
			ChunkIndex:    int(row.ChunkIndex),
			Text:          row.Text,
		})
	}
	return out, nil
}

// Nearest はコサイン距離の昇順にチャンクを返す
func (r *SearchRepository) Nearest(ctx context.Context, q retrieval.VectorQuery) ([]retrieval.VectorHit, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}

	rows, err := r.q.SearchNearestChunks(ctx, sqlc.SearchNearestChunksParams{
		QueryVector: pgvector.NewVector(q.Embedding),
		WorkspaceID: UUIDToPgtype(q.WorkspaceID),
		DocumentID:  UUIDOptionToPgtype(q.DocumentID),
		RowLimit:    rowLimit(q.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search nearest chunks: %w", err)
	}

	hits := make([]retrieval.VectorHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, retrieval.VectorHit{
			ChunkID:       PgtypeToUUID(row.ChunkID),
			DocumentID:    PgtypeToUUID(row.DocumentID),
			DocumentTitle: row.DocumentTitle,
			ChunkIndex:    int(row.ChunkIndex),
			Snippet:       retrieval.Snippet(row.Text),
			Distance:      row.Distance,
			Score:         retrieval.ScoreFromDistance(row.Distance),
		})
	}
	return hits, nil
}
