package routing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-copilot/internal/core/retrieval"
)

func newTestRouter() *Router {
	return NewRouter(DefaultThresholds(), WithRouterLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func candidate(kw, vec float64, terms ...string) retrieval.Candidate {
	c := retrieval.Candidate{
		ChunkID:      uuid.New(),
		KeywordScore: kw,
		VectorScore:  vec,
		MatchedTerms: terms,
	}
	norm := 0.0
	if kw > 0 {
		norm = kw / (kw + 4)
	}
	c.KeywordNorm = norm
	c.FinalScore = 0.75*vec + 0.25*norm
	return c
}

func TestRouter_Classify(t *testing.T) {
	tests := []struct {
		name       string
		candidates []retrieval.Candidate
		scoped     bool
		wantRoute  Route
		wantReason Reason
	}{
		{
			name:       "キーワード閾値と根拠語で doc_rag",
			candidates: []retrieval.Candidate{candidate(4, 0.3, "unicorn")},
			scoped:     true,
			wantRoute:  RouteDocRAG,
			wantReason: ReasonKeywordThreshold,
		},
		{
			name:       "根拠語とベクトル閾値で doc_rag",
			candidates: []retrieval.Candidate{candidate(2, 0.8, "unicorn")},
			scoped:     true,
			wantRoute:  RouteDocRAG,
			wantReason: ReasonKeywordVector,
		},
		{
			name:       "スコープなしの高いベクトルスコアで doc_rag",
			candidates: []retrieval.Candidate{candidate(0, 0.75)},
			scoped:     false,
			wantRoute:  RouteDocRAG,
			wantReason: ReasonVectorHard,
		},
		{
			name:       "文書スコープだけでは関連と見なさない",
			candidates: []retrieval.Candidate{candidate(0, 0.75)},
			scoped:     true,
			wantRoute:  RouteGeneral,
			wantReason: ReasonNoEvidence,
		},
		{
			name:       "低情報語は根拠にならない",
			candidates: []retrieval.Candidate{candidate(8, 0.2, "document", "text")},
			scoped:     true,
			wantRoute:  RouteGeneral,
			wantReason: ReasonNoEvidence,
		},
		{
			name:       "短い語は根拠にならない",
			candidates: []retrieval.Candidate{candidate(8, 0.2, "ai")},
			scoped:     false,
			wantRoute:  RouteGeneral,
			wantReason: ReasonNoEvidence,
		},
		{
			name:       "候補なしは general",
			candidates: nil,
			scoped:     true,
			wantRoute:  RouteGeneral,
			wantReason: ReasonNoCandidates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestRouter().Classify(tt.candidates, tt.scoped)
			assert.Equal(t, tt.wantRoute, d.Route)
			assert.Equal(t, tt.wantReason, d.Diagnostics.Reason)
			if tt.wantRoute == RouteGeneral {
				assert.Empty(t, d.Candidates)
			} else {
				assert.Equal(t, tt.candidates, d.Candidates)
			}
		})
	}
}

func TestRouter_HardGateOnMaxScore(t *testing.T) {
	th := DefaultThresholds()
	th.KeywordMin = 0.1
	r := NewRouter(th, WithRouterLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	c := retrieval.Candidate{ChunkID: uuid.New(), KeywordScore: 0.2, VectorScore: 0.3, FinalScore: 0.3, MatchedTerms: []string{"unicorn"}}
	d := r.Classify([]retrieval.Candidate{c}, true)

	assert.Equal(t, RouteGeneral, d.Route)
	assert.Equal(t, ReasonGatedMaxScore, d.Diagnostics.Reason)
	assert.False(t, d.Diagnostics.Relevant)
}

func TestRouter_MonotonicInBestKeyword(t *testing.T) {
	r := newTestRouter()

	below := r.Classify([]retrieval.Candidate{candidate(3, 0.2, "unicorn")}, true)
	atThreshold := r.Classify([]retrieval.Candidate{candidate(4, 0.2, "unicorn")}, true)
	above := r.Classify([]retrieval.Candidate{candidate(10, 0.2, "unicorn")}, true)

	assert.Equal(t, RouteGeneral, below.Route)
	assert.Equal(t, RouteDocRAG, atThreshold.Route)
	assert.Equal(t, RouteDocRAG, above.Route)
}

func TestRouter_DiagnosticsCaptureScores(t *testing.T) {
	cands := []retrieval.Candidate{
		candidate(6, 0.4, "unicorn", "token"),
		candidate(2, 0.6, "token", "meadow"),
	}

	d := newTestRouter().Classify(cands, true)

	assert.InDelta(t, 6.0, d.Diagnostics.BestKeyword, 1e-9)
	assert.InDelta(t, 0.6, d.Diagnostics.BestVector, 1e-9)
	assert.InDelta(t, 6.0, d.Diagnostics.MaxScore, 1e-9)
	assert.True(t, d.Diagnostics.KeywordEvidence)
	assert.Equal(t, []string{"unicorn", "token", "meadow"}, d.Diagnostics.EvidenceTerms)
	assert.Equal(t, 2, d.Diagnostics.CandidateCount)
	assert.Equal(t, DefaultThresholds(), d.Diagnostics.Thresholds)
}

func TestRouter_IsSummaryRequest(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name       string
		question   string
		scoped     bool
		strictness Strictness
		want       bool
	}{
		{name: "英語トリガー", question: "What is this about?", scoped: true, strictness: StrictnessDeterministic, want: true},
		{name: "ロシア語トリガー", question: "О чём книга?", scoped: true, strictness: StrictnessLLM, want: true},
		{name: "要約動詞", question: "Please summarize the chapter", scoped: true, strictness: StrictnessDeterministic, want: true},
		{name: "スコープなし", question: "What is this about?", scoped: false, strictness: StrictnessDeterministic, want: false},
		{name: "sources_only", question: "What is this about?", scoped: true, strictness: StrictnessSourcesOnly, want: false},
		{name: "トリガーなし", question: "What is the unique token?", scoped: true, strictness: StrictnessDeterministic, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsSummaryRequest(tt.question, tt.scoped, tt.strictness))
		})
	}
}

func TestSampleEvenly(t *testing.T) {
	items := make([]int, 30)
	for i := range items {
		items[i] = i
	}

	got := SampleEvenly(items, 12)

	require.Len(t, got, 12)
	assert.Equal(t, 0, got[0])
	assert.Equal(t, 29, got[11])
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}

	assert.Equal(t, []int{0, 1, 2}, SampleEvenly([]int{0, 1, 2}, 12))
	assert.Equal(t, []int{}, SampleEvenly([]int{}, 12))
	assert.Equal(t, []int{0}, SampleEvenly(items, 1))
}

func TestParseStrictness(t *testing.T) {
	for _, alias := range []string{"llm", "langchain_rag", "answer"} {
		s, ok := ParseStrictness(alias)
		assert.True(t, ok)
		assert.Equal(t, StrictnessLLM, s)
	}
	s, ok := ParseStrictness("")
	assert.True(t, ok)
	assert.Equal(t, StrictnessSourcesOnly, s)

	_, ok = ParseStrictness("poetic")
	assert.False(t, ok)
}
