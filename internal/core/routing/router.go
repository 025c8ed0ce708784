package routing

import (
	"log/slog"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jinford/kb-copilot/internal/core/retrieval"
)

const minEvidenceRunes = 3

// 要約要求とみなすフレーズ（正規化後に語単位で照合する）
var summaryTriggers = []string{
	"what is this about",
	"what s this about",
	"what is it about",
	"what is the document about",
	"what is this document about",
	"what is the book about",
	"summarize",
	"summarise",
	"summary",
	"give me an overview",
	"overview of",
	"tl dr",
	"tldr",
	"main idea",
	"key points",
	"о чем книга",
	"о чем документ",
	"о чем этот",
	"о чем эта",
	"о чем текст",
	"о чем файл",
	"краткое содержание",
	"кратко перескажи",
	"перескажи",
	"пересказ",
	"основная мысль",
	"главная мысль",
	"в чем суть",
}

// 根拠として扱わない低情報語
var lowInformationTerms = map[string]struct{}{
	"document": {}, "documents": {}, "doc": {}, "text": {}, "file": {}, "files": {},
	"info": {}, "information": {}, "thing": {}, "things": {}, "something": {}, "anything": {},
	"page": {}, "content": {}, "question": {}, "answer": {}, "example": {},
	"документ": {}, "документе": {}, "документа": {}, "документы": {}, "документах": {},
	"текст": {}, "тексте": {}, "текста": {}, "файл": {}, "файле": {},
	"информация": {}, "информации": {}, "вопрос": {}, "ответ": {}, "пример": {},
	"нибудь": {}, "вообще": {}, "можно": {}, "нужно": {}, "есть": {}, "было": {}, "быть": {},
}

// RouterOption は Router のオプション
type RouterOption func(*Router)

// WithRouterLogger はロガーを設定する
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Router は検索候補と質問文から回答経路を決定する
type Router struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// NewRouter は新しい Router を作成する
func NewRouter(thresholds Thresholds, opts ...RouterOption) *Router {
	if thresholds.SummarySampleSize <= 0 {
		thresholds.SummarySampleSize = DefaultThresholds().SummarySampleSize
	}
	r := &Router{
		thresholds: thresholds,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Thresholds は現在の閾値を返す
func (r *Router) Thresholds() Thresholds {
	return r.thresholds
}

// IsSummaryRequest は要約の高速経路に入るかを判定する
// 要約トリガーに一致し、文書スコープがあり、sources_only でない場合に true
func (r *Router) IsSummaryRequest(question string, documentScoped bool, strictness Strictness) bool {
	if !documentScoped || strictness == StrictnessSourcesOnly {
		return false
	}
	return MatchesSummaryTrigger(question)
}

// SummaryDecision は要約経路の判定結果を作る
func (r *Router) SummaryDecision(candidates []retrieval.Candidate) Decision {
	return Decision{
		Route:      RouteSummary,
		Candidates: candidates,
		Diagnostics: Diagnostics{
			DocumentScoped: true,
			Relevant:       true,
			Reason:         ReasonSummaryTrigger,
			CandidateCount: len(candidates),
			Thresholds:     r.thresholds,
			EvidenceTerms:  []string{},
		},
	}
}

// Classify は融合済み候補から doc_rag / general を判定する
func (r *Router) Classify(candidates []retrieval.Candidate, documentScoped bool) Decision {
	d := Diagnostics{
		DocumentScoped: documentScoped,
		CandidateCount: len(candidates),
		Thresholds:     r.thresholds,
		EvidenceTerms:  []string{},
	}

	if len(candidates) == 0 {
		d.Reason = ReasonNoCandidates
		return r.decide(d, nil)
	}

	seen := make(map[string]struct{})
	for _, c := range candidates {
		d.BestKeyword = math.Max(d.BestKeyword, c.KeywordScore)
		d.BestVector = math.Max(d.BestVector, c.VectorScore)
		d.MaxScore = math.Max(d.MaxScore, math.Max(c.FinalScore, math.Max(c.VectorScore, c.KeywordScore)))
		for _, t := range c.MatchedTerms {
			if !isEvidenceTerm(t) {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			d.EvidenceTerms = append(d.EvidenceTerms, t)
		}
	}
	d.KeywordEvidence = len(d.EvidenceTerms) > 0

	th := r.thresholds
	switch {
	case d.KeywordEvidence && d.BestKeyword >= th.KeywordMin:
		d.Relevant = true
		d.Reason = ReasonKeywordThreshold
	case d.KeywordEvidence && d.BestVector >= th.VectorMin:
		d.Relevant = true
		d.Reason = ReasonKeywordVector
	case !documentScoped && d.BestVector >= th.VectorHard:
		d.Relevant = true
		d.Reason = ReasonVectorHard
	default:
		d.Reason = ReasonNoEvidence
	}

	if d.Relevant && d.MaxScore < th.MinMaxScore {
		d.Relevant = false
		d.Reason = ReasonGatedMaxScore
	}

	return r.decide(d, candidates)
}

func (r *Router) decide(d Diagnostics, candidates []retrieval.Candidate) Decision {
	route := RouteGeneral
	used := []retrieval.Candidate{}
	if d.Relevant {
		route = RouteDocRAG
		used = candidates
	}

	r.logger.Info("route decided",
		"route", route,
		"reason", d.Reason,
		"bestKeyword", d.BestKeyword,
		"bestVector", d.BestVector,
		"maxScore", d.MaxScore,
		"keywordEvidence", d.KeywordEvidence,
		"documentScoped", d.DocumentScoped,
	)

	return Decision{Route: route, Candidates: used, Diagnostics: d}
}

func isEvidenceTerm(term string) bool {
	if utf8.RuneCountInString(term) < minEvidenceRunes {
		return false
	}
	_, low := lowInformationTerms[strings.ToLower(term)]
	return !low
}

// MatchesSummaryTrigger は質問文が要約トリガーを含むかを判定する
func MatchesSummaryTrigger(question string) bool {
	normalized := normalizeQuestion(question)
	if normalized == "" {
		return false
	}
	padded := " " + normalized + " "
	for _, trigger := range summaryTriggers {
		if strings.Contains(padded, " "+trigger+" ") {
			return true
		}
	}
	return false
}

// normalizeQuestion は小文字化し、ё を е に寄せ、記号を空白にして連続空白を畳む
func normalizeQuestion(q string) string {
	q = strings.ToLower(q)
	q = strings.ReplaceAll(q, "ё", "е")
	fields := strings.FieldsFunc(q, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	return strings.Join(fields, " ")
}
