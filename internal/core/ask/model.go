package ask

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/kb-copilot/internal/core/answer"
	"github.com/jinford/kb-copilot/internal/core/routing"
)

const (
	// MaxQuestionRunes は質問文の最大文字数
	MaxQuestionRunes = 4000
	// DefaultTopK は top_k 未指定時の値
	DefaultTopK = 5
	// MaxTopK は top_k の上限
	MaxTopK = 50
	// AnonymousActor はトークンなしの呼び出し元
	AnonymousActor = "anonymous"
)

// Mode はリクエストの用途
type Mode string

const (
	ModeAnswer     Mode = "answer"
	ModeDocument   Mode = "document"
	ModeAutomation Mode = "automation"
)

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	WorkspaceID    uuid.UUID
	ActorID        string
	Question       string
	Mode           string
	Retriever      string               // auto / vector / keyword / hybrid（空なら auto）
	TopK           int                  // 1..50（0 なら 5）
	DocumentID     mo.Option[uuid.UUID] // 文書スコープ
	AnswerMode     string               // sources_only / deterministic / llm（空なら sources_only）
	IdempotencyKey string
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	RunID            uuid.UUID            `json:"run_id"`
	Answer           string               `json:"answer"`
	Sources          []answer.Source      `json:"sources"`
	RetrieverUsed    string               `json:"retriever_used"`
	LLMUsed          string               `json:"llm_used"`
	AnswerMode       string               `json:"answer_mode"`
	Route            routing.Route        `json:"route"`
	Notice           string               `json:"notice"`
	IdempotentReplay bool                 `json:"idempotent_replay,omitempty"`
	Diagnostics      *routing.Diagnostics `json:"diagnostics,omitempty"`
}

// ValidationError は Run を作成する前に拒否した入力の誤り
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RunErrorKind は Run が error で終わった理由
type RunErrorKind string

const (
	RunErrorRetrieval         RunErrorKind = "retrieval_failed"
	RunErrorUnknownAnswerMode RunErrorKind = "unknown_answer_mode"
)

// RunError は Run が error 状態で終わったことを表す
type RunError struct {
	RunID       uuid.UUID
	Kind        RunErrorKind
	Message     string
	Diagnostics *routing.Diagnostics
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed (%s): %s", e.RunID, e.Kind, e.Message)
}

// retrieveInput は retrieve_context Step の入力
type retrieveInput struct {
	Question   string  `json:"question"`
	TopK       int     `json:"top_k"`
	Retriever  string  `json:"retriever"`
	DocumentID *string `json:"document_id"`
	AnswerMode string  `json:"answer_mode"`
}

// retrieveOutput は retrieve_context Step の出力。results が再生時の出典の正本になる
type retrieveOutput struct {
	Results       []answer.Source      `json:"results"`
	Considered    []answer.Source      `json:"considered"`
	RetrieverUsed string               `json:"retriever_used"`
	Route         routing.Route        `json:"route"`
	Diagnostics   *routing.Diagnostics `json:"diagnostics,omitempty"`
}

// generateInput は generate_answer Step の入力
type generateInput struct {
	Route      routing.Route `json:"route"`
	AnswerMode string        `json:"answer_mode"`
}

// generateOutput は generate_answer Step の出力
type generateOutput struct {
	LLMUsed    string          `json:"llm_used"`
	AnswerMode string          `json:"answer_mode"`
	Notice     string          `json:"notice"`
	Sources    []answer.Source `json:"sources"`
}

// errorOutput は error Step の出力
type errorOutput struct {
	Kind        RunErrorKind         `json:"kind"`
	Error       string               `json:"error"`
	Diagnostics *routing.Diagnostics `json:"diagnostics,omitempty"`
}
