package ask

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jinford/kb-copilot/internal/core/answer"
	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

// replayRecord はキーに束縛された Run から応答を再構成する
// 経路は再判定せず、保存された Step の内容をそのまま使う
func (s *AskService) replayRecord(ctx context.Context, rec *idempotency.Record) (*AskResult, error) {
	runID, ok := rec.RunID.Get()
	if !ok {
		// アップロードに使われたキー
		return nil, &idempotency.ConflictError{Key: rec.Key}
	}

	found, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run, ok := found.Get()
	if !ok || !run.IsFinished() {
		return nil, idempotency.ErrInProgress
	}

	steps, err := s.store.ListSteps(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}

	s.logger.Info("replaying run", "runID", run.ID, "key", rec.Key)

	if run.Status == trace.RunStatusError {
		return nil, replayError(run, steps)
	}
	return replayResult(run, steps)
}

func replayResult(run *trace.Run, steps []*trace.Step) (*AskResult, error) {
	res := &AskResult{
		RunID:            run.ID,
		Answer:           run.FinalOutput,
		Sources:          []answer.Source{},
		LLMUsed:          answer.LLMNone,
		IdempotentReplay: true,
	}

	for _, step := range steps {
		switch step.Name {
		case trace.StepRetrieveContext:
			var out retrieveOutput
			if err := json.Unmarshal(step.Output, &out); err != nil {
				return nil, fmt.Errorf("failed to decode %s step: %w", step.Name, err)
			}
			if out.Results != nil {
				res.Sources = out.Results
			}
			res.RetrieverUsed = out.RetrieverUsed
			res.Route = out.Route
			res.Diagnostics = out.Diagnostics
		case trace.StepGenerateAnswer:
			var out generateOutput
			if err := json.Unmarshal(step.Output, &out); err != nil {
				return nil, fmt.Errorf("failed to decode %s step: %w", step.Name, err)
			}
			res.LLMUsed = out.LLMUsed
			res.AnswerMode = out.AnswerMode
			res.Notice = out.Notice
		}
	}
	return res, nil
}

func replayError(run *trace.Run, steps []*trace.Step) error {
	runErr := &RunError{RunID: run.ID, Kind: RunErrorRetrieval, Message: run.Error}
	for _, step := range steps {
		if step.Status != trace.StepStatusError {
			continue
		}
		var out errorOutput
		if err := json.Unmarshal(step.Output, &out); err == nil {
			runErr.Kind = out.Kind
			runErr.Diagnostics = out.Diagnostics
		}
	}
	return runErr
}
