package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-copilot/internal/infra/postgres"
	"github.com/jinford/kb-copilot/internal/platform/config"
	"github.com/jinford/kb-copilot/internal/platform/database"
	"github.com/jinford/kb-copilot/internal/platform/logger"
)

// DBMigrateAction はスキーマのマイグレーションを適用するコマンドのアクション
func DBMigrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	if cfg.Storage.Backend != "postgres" {
		return fmt.Errorf("マイグレーションは postgres バックエンドでのみ実行できます（STORAGE_BACKEND=%s）", cfg.Storage.Backend)
	}

	appLogger := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("データベース接続に失敗: %w", err)
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db.Pool, postgres.Migrations(), appLogger)
	if err != nil {
		return err
	}

	w := stdout(cmd)
	if len(applied) == 0 {
		fmt.Fprintln(w, "適用するマイグレーションはありません")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(w, "%s %s\n", okText("✓"), name)
	}
	return nil
}
