package answer

import (
	"unicode"

	"github.com/jinford/kb-copilot/internal/core/routing"
)

// Language は回答言語
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageRussian Language = "ru"
)

// DetectLanguage は質問文にキリル文字が含まれれば ru、それ以外は en を返す
func DetectLanguage(question string) Language {
	for _, r := range question {
		if unicode.Is(unicode.Cyrillic, r) {
			return LanguageRussian
		}
	}
	return LanguageEnglish
}

// Grammar は生成回答の節見出し
type Grammar struct {
	Answer  string
	Quotes  string
	Sources string
}

// Templates は言語と経路ごとの定型文
type Templates struct {
	Grammar Grammar

	// general 経路
	Disclaimer string
	Hint       string

	// 決定的経路
	NoSources        string
	NoSnippets       string
	SummaryHeading   string
	DetailsHeading   string
	SourcesHeading   string
	UntitledDocument string

	// 生成経路
	System         string
	QuestionLabel  string
	ContextLabel   string
	RepairPreamble string
	RepairSuffix   string
}

type templateKey struct {
	lang  Language
	route routing.Route
}

var templateTable = buildTemplateTable()

// TemplatesFor は言語と経路に対応する定型文を返す。未知の組み合わせは英語の doc_rag
func TemplatesFor(lang Language, route routing.Route) Templates {
	if t, ok := templateTable[templateKey{lang: lang, route: route}]; ok {
		return t
	}
	return templateTable[templateKey{lang: LanguageEnglish, route: routing.RouteDocRAG}]
}

func buildTemplateTable() map[templateKey]Templates {
	en := Templates{
		Grammar:          Grammar{Answer: "Answer:", Quotes: "Quotes:", Sources: "Sources:"},
		Disclaimer:       "This document does not contain information on this question.",
		Hint:             "If you need an answer based on the document, rephrase the question using terms from the document or pick another document.",
		NoSources:        "No sources found.",
		NoSnippets:       "No useful snippets found in sources.",
		SummaryHeading:   "Document overview:",
		DetailsHeading:   "Details:",
		SourcesHeading:   "Sources:",
		UntitledDocument: "Untitled",
		QuestionLabel:    "Question:",
		ContextLabel:     "Context:",
		RepairPreamble:   "Your previous reply did not follow the required format:",
		RepairSuffix:     "Rewrite the reply so that it follows the required format exactly. Use only the context above.",
	}
	ru := Templates{
		Grammar:          Grammar{Answer: "Ответ:", Quotes: "Цитаты:", Sources: "Источники:"},
		Disclaimer:       "В этом документе нет информации по этому вопросу.",
		Hint:             "Если вам нужен ответ именно по документу, переформулируйте вопрос словами из документа или выберите другой документ.",
		NoSources:        "Источники не найдены.",
		NoSnippets:       "В источниках нет полезных фрагментов.",
		SummaryHeading:   "Краткое содержание документа:",
		DetailsHeading:   "Подробности:",
		SourcesHeading:   "Источники:",
		UntitledDocument: "Без названия",
		QuestionLabel:    "Вопрос:",
		ContextLabel:     "Контекст:",
		RepairPreamble:   "Предыдущий ответ не соответствует требуемому формату:",
		RepairSuffix:     "Перепиши ответ строго в требуемом формате. Используй только приведённый контекст.",
	}

	table := make(map[templateKey]Templates)
	for _, base := range []struct {
		lang Language
		t    Templates
	}{{LanguageEnglish, en}, {LanguageRussian, ru}} {
		for _, route := range []routing.Route{routing.RouteDocRAG, routing.RouteSummary, routing.RouteGeneral} {
			t := base.t
			t.System = systemPrompt(base.lang, route, t.Grammar)
			table[templateKey{lang: base.lang, route: route}] = t
		}
	}
	return table
}

func systemPrompt(lang Language, route routing.Route, g Grammar) string {
	if lang == LanguageRussian {
		switch route {
		case routing.RouteGeneral:
			return "Ты полезный ассистент. В базе знаний нет информации по вопросу, поэтому ответь кратко из общих знаний, не ссылаясь на документ. Ответ на русском языке."
		case routing.RouteSummary:
			return "Ты RAG-ассистент. Кратко опиши, о чём документ, используя ТОЛЬКО приведённые фрагменты. " + grammarRU(g)
		default:
			return "Ты RAG-ассистент. Отвечай ТОЛЬКО по приведённому контексту. Если контекста недостаточно, скажи, что не знаешь. " + grammarRU(g)
		}
	}
	switch route {
	case routing.RouteGeneral:
		return "You are a helpful assistant. The knowledge base has no information on this question, so answer briefly from general knowledge without referring to any document."
	case routing.RouteSummary:
		return "You are a RAG assistant. Briefly describe what the document is about using ONLY the provided excerpts. " + grammarEN(g)
	default:
		return "You are a RAG assistant. Answer ONLY using the provided context. If context is insufficient, say you don't know. " + grammarEN(g)
	}
}

func grammarEN(g Grammar) string {
	return "Reply in exactly this format:\n" +
		g.Answer + " <one or two sentences ending with citations such as [1] or [2]>\n" +
		g.Quotes + " (optional)\n- \"<verbatim quote, at most 200 characters>\" [n]\n" +
		g.Sources + "\n- [n] <document title>\n" +
		"Cite only context block numbers that exist."
}

func grammarRU(g Grammar) string {
	return "Отвечай строго в формате:\n" +
		g.Answer + " <одно-два предложения со ссылками вида [1] или [2] в конце>\n" +
		g.Quotes + " (необязательно)\n- \"<дословная цитата не длиннее 200 символов>\" [n]\n" +
		g.Sources + "\n- [n] <название документа>\n" +
		"Ссылайся только на существующие номера блоков контекста."
}
