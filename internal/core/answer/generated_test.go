package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	g := TemplatesFor(LanguageEnglish, "doc_rag").Grammar

	tests := []struct {
		name     string
		text     string
		blocks   int
		problems []string
	}{
		{
			name:   "正しい書式",
			text:   "Answer: It works [1].\nQuotes:\n- \"it works\" [1]\nSources:\n- [1] Doc",
			blocks: 2,
		},
		{
			name:     "Answer 見出しがない",
			text:     "It works [1].\nSources:\n- [1] Doc",
			blocks:   1,
			problems: []string{`missing "Answer:" section`},
		},
		{
			name:     "回答に引用がない",
			text:     "Answer: It works.\nSources:\n- [1] Doc",
			blocks:   1,
			problems: []string{`"Answer:" section has no citation such as [1]`},
		},
		{
			name:     "Sources 見出しがない",
			text:     "Answer: It works [1].",
			blocks:   1,
			problems: []string{`missing "Sources:" section`},
		},
		{
			name:     "範囲外の引用",
			text:     "Answer: It works [1][4].\nSources:\n- [1] Doc",
			blocks:   2,
			problems: []string{"citation [4] out of range 1..2"},
		},
		{
			name:     "長すぎる引用と引用番号のない引用",
			text:     "Answer: It works [1].\nQuotes:\n- \"" + strings.Repeat("a", 201) + "\" [1]\n- \"short\"\nSources:\n- [1] Doc",
			blocks:   1,
			problems: []string{"quote longer than 200 characters", "quote without citation"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.problems, Validate(tt.text, g, tt.blocks))
		})
	}
}

func TestValidate_RussianGrammar(t *testing.T) {
	g := TemplatesFor(LanguageRussian, "doc_rag").Grammar

	problems := Validate("Ответ: Всё работает [1].\nИсточники:\n- [1] Документ", g, 1)

	assert.Empty(t, problems)
}

func TestFilterCited(t *testing.T) {
	sources := Project(testCandidates(5))

	t.Run("引用された番号のみ", func(t *testing.T) {
		got := FilterCited("see [2] and [1] and [2]", sources)
		assert.Len(t, got, 2)
		assert.Equal(t, "Doc1", got[0].DocumentTitle)
		assert.Equal(t, "Doc2", got[1].DocumentTitle)
	})

	t.Run("3件を超えない", func(t *testing.T) {
		got := FilterCited("[1] [2] [3] [4] [5]", sources)
		assert.Len(t, got, 3)
	})

	t.Run("引用がなければ先頭3件", func(t *testing.T) {
		got := FilterCited("no markers", sources)
		assert.Len(t, got, 3)
		assert.Equal(t, "Doc3", got[2].DocumentTitle)
	})

	t.Run("範囲外の引用は無視", func(t *testing.T) {
		got := FilterCited("[9]", sources)
		assert.Empty(t, got)
	})
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LanguageRussian, DetectLanguage("о чем книга?"))
	assert.Equal(t, LanguageEnglish, DetectLanguage("what is this about?"))
}

func TestIsProcedural(t *testing.T) {
	assert.True(t, IsProcedural("How to reset the password?"))
	assert.True(t, IsProcedural("как настроить сервер"))
	assert.True(t, IsProcedural("Как удалить документ?"))
	assert.False(t, IsProcedural("what is the unique token?"))
}
