package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	vectorWeight      = 0.75
	keywordWeight     = 0.25
	bonusPerTerm      = 0.05
	maxKeywordBonus   = 0.25
	keywordNormOffset = 4.0
)

// ExpandLimit は融合前に各検索器から取得する件数 max(10, 5×topK) を返す
func ExpandLimit(topK int) int {
	return max(10, 5*topK)
}

// Fuse はベクトル結果とキーワード結果をチャンク単位で統合し、final_score 降順に topK 件を返す
// 同じ入力からは常に同じ順序とスコアを返す
func Fuse(vector []VectorHit, keyword []KeywordHit, question string, topK int) []Candidate {
	m := newMerger(len(vector) + len(keyword))
	for _, v := range vector {
		m.addVector(v)
	}
	for _, k := range keyword {
		m.addKeyword(k)
	}
	return m.rank(question, topK)
}

// MergeKeyword は既存の候補列にキーワード結果を追加して再採点する
// 文書スコープ時に呼び出し側が別途実行したスコープ内キーワード照合を合流させるために使う
func MergeKeyword(base []Candidate, keyword []KeywordHit, question string, topK int) []Candidate {
	m := newMerger(len(base) + len(keyword))
	for _, c := range base {
		m.addCandidate(c)
	}
	for _, k := range keyword {
		m.addKeyword(k)
	}
	return m.rank(question, topK)
}

// merger はチャンクIDをキーにした明示的なマップで候補を統合する
type merger struct {
	order   []uuid.UUID
	records map[uuid.UUID]*Candidate
}

func newMerger(n int) *merger {
	return &merger{
		order:   make([]uuid.UUID, 0, n),
		records: make(map[uuid.UUID]*Candidate, n),
	}
}

// seed は初出のレコードを作成し、既出なら hint を hybrid にする
func (m *merger) seed(c Candidate, source Hint) *Candidate {
	if rec, ok := m.records[c.ChunkID]; ok {
		if rec.Hint != source {
			rec.Hint = HintHybrid
		}
		return rec
	}
	c.Hint = source
	rec := &c
	m.records[c.ChunkID] = rec
	m.order = append(m.order, c.ChunkID)
	return rec
}

func (m *merger) addVector(v VectorHit) {
	rec := m.seed(Candidate{
		ChunkID:       v.ChunkID,
		DocumentID:    v.DocumentID,
		DocumentTitle: v.DocumentTitle,
		ChunkIndex:    v.ChunkIndex,
		Snippet:       v.Snippet,
	}, HintVector)
	rec.VectorScore = v.Score
	d := v.Distance
	rec.Distance = &d
}

func (m *merger) addKeyword(k KeywordHit) {
	rec := m.seed(Candidate{
		ChunkID:       k.ChunkID,
		DocumentID:    k.DocumentID,
		DocumentTitle: k.DocumentTitle,
		ChunkIndex:    k.ChunkIndex,
		Snippet:       k.Snippet,
	}, HintKeyword)
	rec.KeywordScore = float64(k.Score)
	rec.MatchedTerms = append([]string(nil), k.MatchedTerms...)
}

func (m *merger) addCandidate(c Candidate) {
	if rec, ok := m.records[c.ChunkID]; ok {
		if rec.Hint != c.Hint {
			rec.Hint = HintHybrid
		}
		return
	}
	rec := c
	rec.MatchedTerms = append([]string(nil), c.MatchedTerms...)
	m.records[c.ChunkID] = &rec
	m.order = append(m.order, c.ChunkID)
}

func (m *merger) rank(question string, topK int) []Candidate {
	terms := QueryTerms(question)
	out := make([]Candidate, 0, len(m.order))
	for _, id := range m.order {
		rec := *m.records[id]
		score(&rec, terms)
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// score は keyword_bonus / keyword_norm / final_score を計算する
func score(c *Candidate, terms []string) {
	snippet := strings.ToLower(c.Snippet)
	hits := 0
	if snippet != "" {
		for _, t := range terms {
			if strings.Contains(snippet, t) {
				hits++
			}
		}
	}
	c.KeywordBonus = math.Min(maxKeywordBonus, bonusPerTerm*float64(hits))

	c.KeywordNorm = 0
	if c.KeywordScore > 0 {
		c.KeywordNorm = c.KeywordScore / (c.KeywordScore + keywordNormOffset)
	}

	c.FinalScore = vectorWeight*c.VectorScore + keywordWeight*c.KeywordNorm + c.KeywordBonus
}
