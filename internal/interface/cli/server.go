package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/kb-copilot/internal/interface/httpapi"
)

// ServerStartAction は HTTP API サーバーと取り込みワーカーを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	port := cfg.Server.Port
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}
	if cfg.APIToken == "" {
		appCtx.Logger().Warn("KB_API_TOKEN が未設定のため、認証なしで起動します")
	}

	c := appCtx.Container
	server := httpapi.NewServer(c.Documents, c.Ask, c.Trace,
		httpapi.WithAPIToken(cfg.APIToken),
		httpapi.WithDefaultWorkspace(cfg.DefaultWorkspace),
		httpapi.WithServerLogger(appCtx.Logger()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.RunWorker(gctx)
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx, port, cfg.Server.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("サーバーが異常終了しました: %w", err)
	}
	return nil
}

// WorkerStartAction は取り込みワーカーのみを起動するコマンドのアクション
func WorkerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return appCtx.Container.RunWorker(ctx)
}
