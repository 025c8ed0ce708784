package retrieval

import (
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// SnippetMaxRunes はソース投影に含めるスニペットの最大文字数
const SnippetMaxRunes = 300

// Hint は候補を生成した検索器を表す
type Hint string

const (
	HintKeyword Hint = "keyword"
	HintVector  Hint = "vector"
	HintHybrid  Hint = "hybrid"
	HintSummary Hint = "summary"
)

// Strategy はリクエストで指定される検索方式
type Strategy string

const (
	StrategyAuto    Strategy = "auto"
	StrategyVector  Strategy = "vector"
	StrategyKeyword Strategy = "keyword"
	StrategyHybrid  Strategy = "hybrid"
)

// ParseStrategy は文字列を Strategy に変換する
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case "":
		return StrategyAuto, true
	case StrategyAuto, StrategyVector, StrategyKeyword, StrategyHybrid:
		return Strategy(s), true
	default:
		return "", false
	}
}

// ChunkText はキーワード候補として読み出したチャンク本文
type ChunkText struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	DocumentTitle string
	ChunkIndex    int
	Text          string
}

// KeywordHit はキーワード照合の結果
type KeywordHit struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	DocumentTitle string
	ChunkIndex    int
	Snippet       string
	MatchedTerms  []string
	Score         int
}

// VectorHit は近傍検索の結果
type VectorHit struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	DocumentTitle string
	ChunkIndex    int
	Snippet       string
	Distance      float64
	Score         float64
}

// Candidate は融合後の検索候補（永続化はしない）
type Candidate struct {
	ChunkID       uuid.UUID `json:"chunk_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	ChunkIndex    int       `json:"chunk_index"`
	Snippet       string    `json:"snippet"`
	MatchedTerms  []string  `json:"matched_terms"`
	KeywordScore  float64   `json:"keyword_score"`
	VectorScore   float64   `json:"vector_score"`
	KeywordBonus  float64   `json:"keyword_bonus"`
	KeywordNorm   float64   `json:"keyword_norm"`
	FinalScore    float64   `json:"final_score"`
	Distance      *float64  `json:"distance,omitempty"`
	Hint          Hint      `json:"retriever_hint"`
}

// Request は検索リクエスト
type Request struct {
	WorkspaceID uuid.UUID
	Question    string
	DocumentID  mo.Option[uuid.UUID]
	TopK        int
	Strategy    Strategy
}

// Result は検索結果
type Result struct {
	Candidates []Candidate
	// StrategyUsed は実際に使われた検索方式（auto は hybrid に解決される）
	StrategyUsed Strategy
}

// Snippet はテキスト先頭からスニペットを切り出す
func Snippet(text string) string {
	return truncateRunes(text, SnippetMaxRunes)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
