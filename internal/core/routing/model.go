package routing

import (
	"github.com/jinford/kb-copilot/internal/core/retrieval"
)

// Route は質問の回答経路
type Route string

const (
	RouteDocRAG  Route = "doc_rag"
	RouteSummary Route = "summary"
	RouteGeneral Route = "general"
)

// Strictness は要求された回答の厳密さ
type Strictness string

const (
	StrictnessSourcesOnly   Strictness = "sources_only"
	StrictnessDeterministic Strictness = "deterministic"
	StrictnessLLM           Strictness = "llm"
)

// ParseStrictness は answer_mode を Strictness に変換する
// langchain_rag / answer は llm の別名として受け付ける
func ParseStrictness(s string) (Strictness, bool) {
	switch s {
	case "":
		return StrictnessSourcesOnly, true
	case string(StrictnessSourcesOnly):
		return StrictnessSourcesOnly, true
	case string(StrictnessDeterministic):
		return StrictnessDeterministic, true
	case string(StrictnessLLM), "langchain_rag", "answer":
		return StrictnessLLM, true
	default:
		return "", false
	}
}

// Thresholds はルーティング閾値。手動調整された暫定値であり設定から注入する
type Thresholds struct {
	KeywordMin        float64 `json:"kw_thr"`
	VectorMin         float64 `json:"v_thr"`
	VectorHard        float64 `json:"v_hard"`
	MinMaxScore       float64 `json:"min_max_score"`
	SummarySampleSize int     `json:"summary_sample_size"`
}

// DefaultThresholds は既定の閾値を返す
func DefaultThresholds() Thresholds {
	return Thresholds{
		KeywordMin:        4,
		VectorMin:         0.55,
		VectorHard:        0.70,
		MinMaxScore:       0.55,
		SummarySampleSize: 12,
	}
}

// Reason は判定理由
type Reason string

const (
	ReasonKeywordThreshold Reason = "keyword_threshold"
	ReasonKeywordVector    Reason = "keyword_evidence_with_vector"
	ReasonVectorHard       Reason = "vector_hard_threshold"
	ReasonGatedMaxScore    Reason = "gated_by_max_score"
	ReasonNoEvidence       Reason = "no_evidence"
	ReasonNoCandidates     Reason = "no_candidates"
	ReasonSummaryTrigger   Reason = "summary_trigger"
)

// Diagnostics はルーティング判定の診断値。Step にそのまま保存する
type Diagnostics struct {
	BestKeyword     float64    `json:"best_kw"`
	BestVector      float64    `json:"best_vec"`
	MaxScore        float64    `json:"max_score"`
	KeywordEvidence bool       `json:"kw_evidence"`
	EvidenceTerms   []string   `json:"evidence_terms"`
	DocumentScoped  bool       `json:"document_scoped"`
	Relevant        bool       `json:"relevant"`
	Reason          Reason     `json:"reason"`
	CandidateCount  int        `json:"candidate_count"`
	Thresholds      Thresholds `json:"thresholds"`
}

// Decision はルーティング結果
type Decision struct {
	Route       Route
	Candidates  []retrieval.Candidate
	Diagnostics Diagnostics
}
