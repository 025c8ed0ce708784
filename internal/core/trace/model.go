package trace

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound は Run が存在しない場合のエラー
var ErrRunNotFound = errors.New("run not found")

// ErrRunFinished は完了済みの Run を再度完了させようとした場合のエラー
var ErrRunFinished = errors.New("run already finished")

// RunStatus は Run の状態
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// StepName は Step の種別
type StepName string

const (
	StepRetrieveContext StepName = "retrieve_context"
	StepGenerateAnswer  StepName = "generate_answer"
)

// StepStatus は Step の結果
type StepStatus string

const (
	StepStatusOK    StepStatus = "ok"
	StepStatusError StepStatus = "error"
)

// Run は1回の質問実行を表す
type Run struct {
	ID               uuid.UUID `json:"id"`
	WorkspaceID      uuid.UUID `json:"workspace_id"`
	Question         string    `json:"question"`
	Mode             string    `json:"mode"`
	Status           RunStatus `json:"status"`
	FinalOutput      string    `json:"final_output"`
	Error            string    `json:"error"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsFinished は Run が終端状態かを返す
func (r *Run) IsFinished() bool {
	return r.Status == RunStatusSuccess || r.Status == RunStatusError
}

// Step は Run に追記される監査レコード
type Step struct {
	ID        uuid.UUID       `json:"id"`
	RunID     uuid.UUID       `json:"run_id"`
	Name      StepName        `json:"name"`
	Input     json.RawMessage `json:"input"`
	Output    json.RawMessage `json:"output"`
	Status    StepStatus      `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Usage は生成時のトークン使用量とコスト
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Finish は Run の終端遷移を表す
type Finish struct {
	Status      RunStatus
	FinalOutput string
	Error       string
	Usage       Usage
}

// NewRun は running 状態の Run を作成する
func NewRun(workspaceID uuid.UUID, question, mode string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Question:    question,
		Mode:        mode,
		Status:      RunStatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewStep は入出力を JSON 化して Step を作成する。ID は作成順に並ぶ UUIDv7
func NewStep(runID uuid.UUID, name StepName, status StepStatus, input, output any) (*Step, error) {
	in, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	return &Step{
		ID:        uuid.Must(uuid.NewV7()),
		RunID:     runID,
		Name:      name,
		Input:     in,
		Output:    out,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}, nil
}
