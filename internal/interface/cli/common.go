package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/platform/config"
	"github.com/jinford/kb-copilot/internal/platform/container"
	"github.com/jinford/kb-copilot/internal/platform/logger"
)

// CLI から実行した操作の実行者 ID
const cliActor = "cli"

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、コンテナを初期化して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	cont, err := container.NewContainer(ctx, cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

// WorkspaceID は --workspace フラグ（未指定なら既定のワークスペース）の ID を返す
func (ac *AppContext) WorkspaceID(cmd *cli.Command) uuid.UUID {
	name := cmd.String("workspace")
	if name == "" {
		name = ac.Config.DefaultWorkspace
	}
	return kb.WorkspaceID(name)
}

// stdout はコマンドの出力先を返す
func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func parseID(cmd *cli.Command, name string) (uuid.UUID, error) {
	raw := cmd.String(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s が不正です: %q", name, raw)
	}
	return id, nil
}
