package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jinford/kb-copilot/internal/core/retrieval"
	"github.com/jinford/kb-copilot/internal/core/routing"
)

const (
	maxStitchedSnippets  = 5
	maxProceduralLines   = 14
	maxSentencesPerChunk = 2
	maxSentenceRunes     = 240
)

var proceduralMarkers = []string{
	"how to ", "how do i ", "how can i ", "how should i ", "how do you ", "how does one ",
	"steps to ", "step by step", "instructions", "guide to ", "what are the steps",
	"как сделать", "как настроить", "как установить", "как запустить", "как подключить",
	"каким образом", "пошагово", "инструкция", "какие шаги", "что нужно сделать",
}

// IsProcedural は質問が手順を尋ねているかを判定する
func IsProcedural(question string) bool {
	q := " " + strings.Join(strings.Fields(strings.ToLower(question)), " ") + " "
	if strings.HasPrefix(q, " как ") {
		return true
	}
	for _, m := range proceduralMarkers {
		if strings.Contains(q, m) {
			return true
		}
	}
	return false
}

// Deterministic は候補スニペットを引用マーカー付きでつなぎ合わせて回答を作る
func Deterministic(question string, route routing.Route, candidates []retrieval.Candidate, t Templates) string {
	if len(candidates) == 0 {
		return t.NoSources
	}
	if route == routing.RouteSummary {
		return summaryOverview(candidates, t)
	}
	if IsProcedural(question) {
		if out := procedural(candidates, t); out != "" {
			return out
		}
	}
	return stitch(candidates, t)
}

func stitch(candidates []retrieval.Candidate, t Templates) string {
	parts := make([]string, 0, maxStitchedSnippets)
	for i, c := range top(candidates, maxStitchedSnippets) {
		snip := collapseSpace(c.Snippet)
		if snip == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s [%d]", snip, i+1))
	}
	if len(parts) == 0 {
		return t.NoSnippets
	}
	return strings.Join(parts, " ")
}

// summaryOverview は文書全体から等間隔に選んだ断片の冒頭文を箇条書きにする
func summaryOverview(candidates []retrieval.Candidate, t Templates) string {
	indexes := make([]int, len(candidates))
	for i := range candidates {
		indexes[i] = i
	}

	lines := []string{t.SummaryHeading}
	for _, i := range routing.SampleEvenly(indexes, maxStitchedSnippets) {
		sentences := splitSentences(candidates[i].Snippet)
		if len(sentences) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s [%d]", sentences[0], i+1))
	}
	if len(lines) == 1 {
		return t.NoSnippets
	}
	return strings.Join(lines, "\n")
}

// procedural は「回答文 + 詳細の箇条書き + 出典の箇条書き」に再構成する
// 空でない行が上限を超える場合は詳細の箇条書きを末尾から削る
func procedural(candidates []retrieval.Candidate, t Templates) string {
	picked := top(candidates, maxStitchedSnippets)

	answerLine := ""
	var details, sources []string
	for i, c := range picked {
		sentences := splitSentences(c.Snippet)
		if len(sentences) == 0 {
			continue
		}
		n := i + 1
		if answerLine == "" {
			answerLine = fmt.Sprintf("%s [%d]", sentences[0], n)
			sentences = sentences[1:]
		}
		for j, s := range sentences {
			if j == maxSentencesPerChunk {
				break
			}
			details = append(details, fmt.Sprintf("- %s [%d]", s, n))
		}
		title := strings.TrimSpace(c.DocumentTitle)
		if title == "" {
			title = t.UntitledDocument
		}
		sources = append(sources, fmt.Sprintf("- [%d] %s", n, title))
	}
	if answerLine == "" {
		return ""
	}

	// 回答文・詳細見出し・出典見出しの3行を除いた残りを詳細に割り当てる
	budget := maxProceduralLines - 3 - len(sources)
	if budget < 0 {
		budget = 0
	}
	if len(details) > budget {
		details = details[:budget]
	}

	lines := []string{answerLine}
	if len(details) > 0 {
		lines = append(lines, "", t.DetailsHeading)
		lines = append(lines, details...)
	}
	lines = append(lines, "", t.SourcesHeading)
	lines = append(lines, sources...)
	return strings.Join(lines, "\n")
}

func top(candidates []retrieval.Candidate, n int) []retrieval.Candidate {
	if len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitSentences はスニペットを文に分割する（文末記号の後に空白が続く位置で切る）
func splitSentences(text string) []string {
	text = collapseSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for i, r := range text {
		if !strings.ContainsRune(".!?…", r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		if end < len(text) && text[end] != ' ' {
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, clampSentence(s))
		}
		start = end
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, clampSentence(s))
	}
	return out
}

func clampSentence(s string) string {
	if utf8.RuneCountInString(s) <= maxSentenceRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxSentenceRunes])) + "…"
}
