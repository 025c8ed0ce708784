package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTermRunes = 3

// 英語のストップワードと質問の埋め草
var englishStopwords = setOf(
	"the", "a", "an", "and", "or", "of", "to", "in", "on", "for", "with", "is", "are", "was", "were",
	"this", "that", "it", "as", "at", "by", "from", "be",
	"what", "which", "who", "whom", "whose", "where", "when", "why", "how",
	"does", "did", "can", "could", "would", "should", "will", "please", "tell", "about",
	"there", "these", "those", "any", "some", "you", "your", "have", "has", "had",
)

// ロシア語のストップワード。疑問詞とメタ語は本文の事実検索に寄与せず誤一致を生む
var russianStopwords = setOf(
	"и", "а", "но", "или", "что", "это", "как", "к", "ко", "в", "во", "на", "по", "о", "об", "обо", "от", "до",
	"для", "с", "со", "у", "из", "за", "над", "под", "при", "без", "же", "ли", "то", "не", "ни", "бы",
	"мы", "вы", "я", "он", "она", "они", "про", "чем", "эта", "этот", "эти",
	"книга", "книге", "книгу", "книги",
	"кто", "где", "когда", "почему", "зачем", "какой", "какая", "какое", "какие",
	"какого", "какому", "каким", "какими", "каком", "какую", "каких",
	"каков", "какова", "каково", "сколько", "насколько", "либо",
	"автор", "автора", "авторы", "автору", "автором", "авторе",
	"сказать", "говорит", "говорят", "сказал", "сказала",
	"пишет", "написал", "написала", "упоминает", "упомянул", "упомянула",
	"фраза", "фразу", "фразы", "цитата", "цитату", "цитаты",
	"имеет", "значит",
)

// 融合ボーナス計算で除外する語
var fusionStopwords = setOf(
	"what", "is", "inside", "the", "document", "return", "exact", "keyword",
	"a", "an", "and", "or", "to", "in", "of",
)

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// splitWords は文字・数字・アンダースコアの連続を小文字で切り出す
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isWordRune(r)
	})
}

// Tokenize は質問文からキーワード照合用の語を抽出する
// 3文字未満の語とストップワードを除き、出現順を保って重複を除去する
func Tokenize(question string) []string {
	words := splitWords(question)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "_")
		if utf8.RuneCountInString(w) < minTermRunes {
			continue
		}
		if _, ok := englishStopwords[w]; ok {
			continue
		}
		if _, ok := russianStopwords[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// QueryTerms は融合ボーナス用の語（2文字以上）を抽出する
func QueryTerms(question string) []string {
	words := splitWords(question)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		if _, ok := fusionStopwords[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// CountWholeWord は text 中の term の単語単位の出現回数を数える（大文字小文字は区別しない）
// term は小文字であること
func CountWholeWord(text, term string) int {
	if term == "" || text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	count := 0
	offset := 0
	for {
		idx := strings.Index(lower[offset:], term)
		if idx < 0 {
			return count
		}
		start := offset + idx
		end := start + len(term)
		if boundaryBefore(lower, start) && boundaryAfter(lower, end) {
			count++
		}
		_, size := utf8.DecodeRuneInString(lower[start:])
		offset = start + size
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}
