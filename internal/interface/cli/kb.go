package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-copilot/internal/core/kb"
)

// KBUploadAction はテキストまたはファイルを文書として登録するコマンドのアクション
func KBUploadAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	title := cmd.String("title")
	file := cmd.String("file")
	text := cmd.String("text")

	if (file == "") == (text == "") {
		return errors.New("--file と --text のどちらか一方を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	workspaceID := appCtx.WorkspaceID(cmd)
	key := cmd.String("idempotency-key")

	var res *kb.UploadResult
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
		}
		res, err = appCtx.Container.Documents.UploadFile(ctx, kb.UploadFileParams{
			WorkspaceID:    workspaceID,
			ActorID:        cliActor,
			Title:          title,
			Filename:       filepath.Base(file),
			Data:           data,
			IdempotencyKey: key,
		})
		if err != nil {
			return fmt.Errorf("文書の登録に失敗: %w", err)
		}
	} else {
		res, err = appCtx.Container.Documents.UploadText(ctx, kb.UploadParams{
			WorkspaceID:    workspaceID,
			ActorID:        cliActor,
			Title:          title,
			Content:        text,
			IdempotencyKey: key,
		})
		if err != nil {
			return fmt.Errorf("文書の登録に失敗: %w", err)
		}
	}

	// ワーカーが動いていないため、--wait 指定時はこのプロセスで取り込む
	if cmd.Bool("wait") && !res.IdempotentReplay {
		appCtx.Logger().Info("文書を取り込みます", "documentID", res.DocumentID)
		if err := appCtx.Container.Processor.Process(ctx, res.DocumentID); err != nil {
			return fmt.Errorf("文書の取り込みに失敗: %w", err)
		}
		detail, err := appCtx.Container.Documents.GetDocument(ctx, res.DocumentID)
		if err != nil {
			return err
		}
		res.Status = detail.Status
	}

	printUploadResult(stdout(cmd), res)
	return nil
}

// KBListAction は文書一覧を表示するコマンドのアクション
func KBListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Container.Documents.ListDocuments(ctx, appCtx.WorkspaceID(cmd), cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("文書一覧の取得に失敗: %w", err)
	}

	printDocuments(stdout(cmd), docs)
	return nil
}

// KBShowAction は文書詳細を表示するコマンドのアクション
func KBShowAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	detail, err := appCtx.Container.Documents.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("文書の取得に失敗: %w", err)
	}
	if detail.WorkspaceID != appCtx.WorkspaceID(cmd) {
		return fmt.Errorf("文書の取得に失敗: %w", kb.ErrDocumentNotFound)
	}

	printDocument(stdout(cmd), detail)
	return nil
}

// KBImportGitAction は Git リポジトリのテキストファイルを文書として取り込むコマンドのアクション
func KBImportGitAction(ctx context.Context, cmd *cli.Command) error {
	repoURL := cmd.String("url")
	ref := cmd.String("ref")

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Logger().Info("Gitリポジトリの取り込みを開始", "url", repoURL, "ref", ref)

	res, err := appCtx.Container.Importer.Import(ctx, kb.ImportParams{
		WorkspaceID: appCtx.WorkspaceID(cmd),
		ActorID:     cliActor,
		URL:         repoURL,
		Ref:         ref,
	})
	if err != nil {
		return fmt.Errorf("Gitリポジトリの取り込みに失敗: %w", err)
	}

	printImportResult(stdout(cmd), res)
	return nil
}
