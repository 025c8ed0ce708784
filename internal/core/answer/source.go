package answer

import (
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/jinford/kb-copilot/internal/core/retrieval"
)

// MaxCitedSources は回答に添える出典の上限
const MaxCitedSources = 3

// Source は外部に公開する出典。チャンク本文は含めずスニペットのみを持つ
type Source struct {
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	ChunkID       uuid.UUID `json:"chunk_id"`
	ChunkIndex    int       `json:"chunk_index"`
	Snippet       string    `json:"snippet"`
	MatchedTerms  []string  `json:"matched_terms"`
	Score         float64   `json:"score"`
	RetrieverHint string    `json:"retriever_hint"`
	VectorScore   float64   `json:"vector_score"`
	KeywordScore  float64   `json:"keyword_score"`
	KeywordBonus  float64   `json:"keyword_bonus"`
	KeywordNorm   float64   `json:"keyword_norm"`
	FinalScore    float64   `json:"final_score"`
	Distance      *float64  `json:"distance,omitempty"`
}

// Project は候補を公開用の出典に変換する
func Project(candidates []retrieval.Candidate) []Source {
	out := make([]Source, 0, len(candidates))
	for _, c := range candidates {
		terms := c.MatchedTerms
		if terms == nil {
			terms = []string{}
		}
		score := c.FinalScore
		if score == 0 {
			score = max(c.VectorScore, c.KeywordScore)
		}
		out = append(out, Source{
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			ChunkID:       c.ChunkID,
			ChunkIndex:    c.ChunkIndex,
			Snippet:       retrieval.Snippet(c.Snippet),
			MatchedTerms:  terms,
			Score:         score,
			RetrieverHint: string(c.Hint),
			VectorScore:   c.VectorScore,
			KeywordScore:  c.KeywordScore,
			KeywordBonus:  c.KeywordBonus,
			KeywordNorm:   c.KeywordNorm,
			FinalScore:    c.FinalScore,
			Distance:      c.Distance,
		})
	}
	return out
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Citations は回答中の [n] を出現順・重複なしで返す
func Citations(text string) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// FilterCited は回答で引用された番号（1始まり）の出典だけを元の順序で最大3件返す
// 引用マーカーがない場合は先頭3件を返す
func FilterCited(text string, sources []Source) []Source {
	cited := Citations(text)
	if len(cited) == 0 {
		return firstN(sources, MaxCitedSources)
	}

	want := make(map[int]struct{}, len(cited))
	for _, n := range cited {
		want[n] = struct{}{}
	}

	out := make([]Source, 0, MaxCitedSources)
	for i, s := range sources {
		if _, ok := want[i+1]; !ok {
			continue
		}
		out = append(out, s)
		if len(out) == MaxCitedSources {
			break
		}
	}
	return out
}

func firstN(sources []Source, n int) []Source {
	if len(sources) <= n {
		out := make([]Source, len(sources))
		copy(out, sources)
		return out
	}
	out := make([]Source, n)
	copy(out, sources[:n])
	return out
}
