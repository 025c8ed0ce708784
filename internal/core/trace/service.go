package trace

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const defaultListLimit = 50

// Service は Run / Step の参照サービス
type Service struct {
	reader Reader
}

// NewService は新しい Service を作成する
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// GetRun は Run を取得する。存在しない場合は ErrRunNotFound を返す
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := s.reader.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run.IsAbsent() {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run.MustGet(), nil
}

// ListRuns はワークスペースの Run 一覧を取得する
func (s *Service) ListRuns(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs, err := s.reader.ListRuns(ctx, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListSteps は Run の Step 一覧を取得する
func (s *Service) ListSteps(ctx context.Context, runID uuid.UUID) ([]*Step, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	steps, err := s.reader.ListSteps(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	return steps, nil
}
