package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{
			name:     "英語の疑問詞とストップワードを除外",
			question: "What is the unique token?",
			want:     []string{"unique", "token"},
		},
		{
			name:     "ロシア語の疑問詞とメタ語を除外",
			question: "Что автор говорит о свободе?",
			want:     []string{"свободе"},
		},
		{
			name:     "アンダースコアを含む識別子を保持",
			question: "Find UNICORN_42 please",
			want:     []string{"find", "unicorn_42"},
		},
		{
			name:     "重複を出現順で除去",
			question: "alpha beta alpha BETA gamma",
			want:     []string{"alpha", "beta", "gamma"},
		},
		{
			name:     "短い語のみなら空",
			question: "is it ok?",
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.question))
		})
	}
}

func TestQueryTerms_KeepsTwoLetterTermsAndDropsFusionStopwords(t *testing.T) {
	got := QueryTerms("What is inside the document about Go and AI?")
	assert.Equal(t, []string{"about", "go", "ai"}, got)
}

func TestCountWholeWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		term string
		want int
	}{
		{name: "単語境界で一致", text: "Token, token; TOKEN.", term: "token", want: 3},
		{name: "部分一致は数えない", text: "tokens tokenizer retoken", term: "token", want: 0},
		{name: "アンダースコアは単語の一部", text: "UNICORN_42 and unicorn", term: "unicorn", want: 1},
		{name: "識別子全体で一致", text: "value UNICORN_42.", term: "unicorn_42", want: 1},
		{name: "キリル文字", text: "Свобода и свобода выбора", term: "свобода", want: 2},
		{name: "隣接する出現", text: "go go go", term: "go", want: 3},
		{name: "空の語", text: "anything", term: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountWholeWord(tt.text, tt.term))
		})
	}
}

func TestSnippet_TruncatesByRunes(t *testing.T) {
	long := make([]rune, 0, 400)
	for i := 0; i < 400; i++ {
		long = append(long, 'ж')
	}

	got := Snippet(string(long))

	assert.Equal(t, SnippetMaxRunes, len([]rune(got)))
	assert.Equal(t, "short", Snippet("short"))
}
