package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// DefaultKeywordPoolLimit はキーワード照合の候補プール上限
const DefaultKeywordPoolLimit = 50

const (
	textHitWeight  = 2
	titleHitWeight = 4
)

// KeywordQuery はキーワード候補の取得条件
type KeywordQuery struct {
	WorkspaceID uuid.UUID
	DocumentID  mo.Option[uuid.UUID]
	Terms       []string
	Limit       int
}

// KeywordSource はキーワード候補を供給する
type KeywordSource interface {
	// KeywordCandidates は本文またはタイトルがいずれかの語に単語一致するチャンクを新しい順に最大 Limit 件返す
	KeywordCandidates(ctx context.Context, q KeywordQuery) ([]*ChunkText, error)
}

// KeywordMatcher は語の一致数でチャンクを順位付けする
type KeywordMatcher struct {
	source    KeywordSource
	poolLimit int
}

// NewKeywordMatcher は新しい KeywordMatcher を作成する
func NewKeywordMatcher(source KeywordSource, poolLimit int) *KeywordMatcher {
	if poolLimit <= 0 {
		poolLimit = DefaultKeywordPoolLimit
	}
	return &KeywordMatcher{source: source, poolLimit: poolLimit}
}

// Match は質問の語でチャンクを照合し、スコア上位 topK 件を返す
// 語が残らない場合は空の結果を返す（最新チャンクでの代替はしない）
func (m *KeywordMatcher) Match(ctx context.Context, workspaceID uuid.UUID, question string, documentID mo.Option[uuid.UUID], topK int) ([]KeywordHit, error) {
	terms := Tokenize(question)
	if len(terms) == 0 {
		return nil, nil
	}

	candidates, err := m.source.KeywordCandidates(ctx, KeywordQuery{
		WorkspaceID: workspaceID,
		DocumentID:  documentID,
		Terms:       terms,
		Limit:       m.poolLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword candidates: %w", err)
	}

	return ScoreKeyword(terms, candidates, topK), nil
}

// ScoreKeyword は候補ごとに score = 2×本文一致数 + 4×タイトル一致数 を計算し、
// (score, chunk_id) の降順で topK 件を返す。一致のない候補は除外する
func ScoreKeyword(terms []string, candidates []*ChunkText, topK int) []KeywordHit {
	hits := make([]KeywordHit, 0, len(candidates))
	for _, c := range candidates {
		var matched []string
		score := 0
		for _, t := range terms {
			inText := CountWholeWord(c.Text, t)
			inTitle := CountWholeWord(c.DocumentTitle, t)
			if inText == 0 && inTitle == 0 {
				continue
			}
			matched = append(matched, t)
			score += inText*textHitWeight + inTitle*titleHitWeight
		}
		if len(matched) == 0 {
			continue
		}
		hits = append(hits, KeywordHit{
			ChunkID:       c.ChunkID,
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			ChunkIndex:    c.ChunkIndex,
			Snippet:       Snippet(c.Text),
			MatchedTerms:  matched,
			Score:         score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return bytes.Compare(hits[i].ChunkID[:], hits[j].ChunkID[:]) > 0
	})

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
