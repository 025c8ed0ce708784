package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jinford/kb-copilot/internal/core/retrieval"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

const (
	maxContextBlocks = 5
	maxBlockRunes    = 800
	maxQuoteRunes    = 200
)

var (
	// ErrGeneratorUnavailable は生成器が設定されていない、または呼び出せない場合のエラー
	ErrGeneratorUnavailable = errors.New("answer generator unavailable")

	// ErrInvalidGeneration は修正依頼後も出力が書式に従わない場合のエラー
	ErrInvalidGeneration = errors.New("generated answer does not follow the required format")
)

// Generation は生成器の出力
type Generation struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Generator は外部の自然言語生成器
type Generator interface {
	Name() string
	Generate(ctx context.Context, system, user string) (Generation, error)
}

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	Count(text string) int
}

// contextBlock は生成器に渡す番号付きの文脈
type contextBlock struct {
	Number int
	Title  string
	Text   string
}

func buildBlocks(candidates []retrieval.Candidate, limit int, t Templates) []contextBlock {
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	blocks := make([]contextBlock, 0, len(candidates))
	for i, c := range candidates {
		title := strings.TrimSpace(c.DocumentTitle)
		if title == "" {
			title = t.UntitledDocument
		}
		text := collapseSpace(c.Snippet)
		if utf8.RuneCountInString(text) > maxBlockRunes {
			text = string([]rune(text)[:maxBlockRunes])
		}
		blocks = append(blocks, contextBlock{Number: i + 1, Title: title, Text: text})
	}
	return blocks
}

func renderUserPrompt(question string, blocks []contextBlock, t Templates) string {
	var b strings.Builder
	b.WriteString(t.QuestionLabel)
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(question))
	if len(blocks) == 0 {
		return b.String()
	}
	b.WriteString("\n\n")
	b.WriteString(t.ContextLabel)
	b.WriteString("\n")
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n%s", blk.Number, blk.Title, blk.Text)
	}
	return b.String()
}

// fitBudget はプロンプトが予算に収まるまで末尾の文脈ブロックを削る
func fitBudget(counter TokenCounter, budget int, system, question string, blocks []contextBlock, t Templates) []contextBlock {
	if counter == nil || budget <= 0 {
		return blocks
	}
	for len(blocks) > 1 {
		if counter.Count(system)+counter.Count(renderUserPrompt(question, blocks, t)) <= budget {
			break
		}
		blocks = blocks[:len(blocks)-1]
	}
	return blocks
}

// Validate は生成された回答が書式に従っているかを検査し、問題点を返す
// blocks は文脈ブロック数で、引用番号はその範囲内でなければならない
func Validate(text string, g Grammar, blocks int) []string {
	sections := splitSections(text, g)

	var problems []string
	answer, hasAnswer := sections[g.Answer]
	if !hasAnswer {
		problems = append(problems, fmt.Sprintf("missing %q section", g.Answer))
	} else if !hasCitationInRange(answer, blocks) {
		problems = append(problems, fmt.Sprintf("%q section has no citation such as [1]", g.Answer))
	}
	if _, ok := sections[g.Sources]; !ok {
		problems = append(problems, fmt.Sprintf("missing %q section", g.Sources))
	}

	if quotes, ok := sections[g.Quotes]; ok {
		for _, line := range strings.Split(quotes, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			quoted := strings.TrimSpace(citationPattern.ReplaceAllString(strings.TrimPrefix(line, "-"), ""))
			quoted = strings.Trim(quoted, "\"“”«» ")
			if utf8.RuneCountInString(quoted) > maxQuoteRunes {
				problems = append(problems, fmt.Sprintf("quote longer than %d characters", maxQuoteRunes))
			}
			if len(Citations(line)) == 0 {
				problems = append(problems, "quote without citation")
			}
		}
	}

	for _, n := range Citations(text) {
		if n < 1 || n > blocks {
			problems = append(problems, fmt.Sprintf("citation [%d] out of range 1..%d", n, blocks))
		}
	}
	return problems
}

// splitSections は見出し行ごとに本文を分ける。見出しと同じ行の後続テキストも本文に含める
func splitSections(text string, g Grammar) map[string]string {
	headings := []string{g.Answer, g.Quotes, g.Sources}
	sections := make(map[string]string)
	current := ""
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		matched := false
		for _, h := range headings {
			if strings.HasPrefix(line, h) {
				current = h
				sections[h] = strings.TrimSpace(strings.TrimPrefix(line, h))
				matched = true
				break
			}
		}
		if matched || current == "" {
			continue
		}
		if sections[current] == "" {
			sections[current] = line
		} else {
			sections[current] += "\n" + line
		}
	}
	return sections
}

func hasCitationInRange(text string, blocks int) bool {
	for _, n := range Citations(text) {
		if n >= 1 && n <= blocks {
			return true
		}
	}
	return false
}

// generateGrounded は下書きを生成し、書式違反があれば1回だけ修正を依頼する
func generateGrounded(ctx context.Context, gen Generator, system, user string, blocks int, t Templates) (string, trace.Usage, error) {
	var usage trace.Usage

	draft, err := gen.Generate(ctx, system, user)
	if err != nil {
		return "", usage, fmt.Errorf("failed to generate draft: %w", err)
	}
	addUsage(&usage, draft)

	problems := Validate(draft.Text, t.Grammar, blocks)
	if len(problems) == 0 {
		return strings.TrimSpace(draft.Text), usage, nil
	}

	repaired, err := gen.Generate(ctx, system, repairPrompt(user, draft.Text, problems, t))
	if err != nil {
		return "", usage, fmt.Errorf("failed to repair draft: %w", err)
	}
	addUsage(&usage, repaired)

	if problems := Validate(repaired.Text, t.Grammar, blocks); len(problems) > 0 {
		return "", usage, fmt.Errorf("%w: %s", ErrInvalidGeneration, strings.Join(problems, "; "))
	}
	return strings.TrimSpace(repaired.Text), usage, nil
}

func repairPrompt(user, draft string, problems []string, t Templates) string {
	var b strings.Builder
	b.WriteString(user)
	b.WriteString("\n\n")
	b.WriteString(t.RepairPreamble)
	for _, p := range problems {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(draft))
	b.WriteString("\n\n")
	b.WriteString(t.RepairSuffix)
	return b.String()
}

func addUsage(u *trace.Usage, g Generation) {
	u.PromptTokens += g.PromptTokens
	u.CompletionTokens += g.CompletionTokens
}
