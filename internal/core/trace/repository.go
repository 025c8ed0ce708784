package trace

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Reader は Run / Step の参照を提供する
type Reader interface {
	// GetRun は Run を取得する
	GetRun(ctx context.Context, id uuid.UUID) (mo.Option[*Run], error)

	// ListRuns はワークスペースの Run を新しい順に取得する
	ListRuns(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*Run, error)

	// ListSteps は Run の Step を作成順に取得する
	ListSteps(ctx context.Context, runID uuid.UUID) ([]*Step, error)
}

// Writer は Run の段階ごとの書き込みを提供する
// 各メソッドは1つのトランザクションで完結する
type Writer interface {
	// FinishRun は Step の追記と Run の終端遷移を同一トランザクションで行う
	// running 以外の Run に対しては ErrRunFinished を返す
	FinishRun(ctx context.Context, runID uuid.UUID, finish Finish, steps ...*Step) error
}
