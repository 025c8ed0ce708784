package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-copilot/internal/core/trace"
)

// RunsListAction は実行履歴の一覧を表示するコマンドのアクション
func RunsListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	runs, err := appCtx.Container.Trace.ListRuns(ctx, appCtx.WorkspaceID(cmd), cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("実行履歴の取得に失敗: %w", err)
	}

	printRuns(stdout(cmd), runs)
	return nil
}

// RunsShowAction は実行の詳細を表示するコマンドのアクション
func RunsShowAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	run, err := appCtx.Container.Trace.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("実行の取得に失敗: %w", err)
	}
	if run.WorkspaceID != appCtx.WorkspaceID(cmd) {
		return fmt.Errorf("実行の取得に失敗: %w", trace.ErrRunNotFound)
	}

	printRun(stdout(cmd), run)
	return nil
}

// RunsStepsAction は実行のステップを表示するコマンドのアクション
func RunsStepsAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	steps, err := appCtx.Container.Trace.ListSteps(ctx, id)
	if err != nil {
		return fmt.Errorf("ステップの取得に失敗: %w", err)
	}

	printSteps(stdout(cmd), steps)
	return nil
}
