package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-copilot/internal/core/ask"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	question := cmd.String("question")

	documentID := mo.None[uuid.UUID]()
	if cmd.String("document") != "" {
		id, err := parseID(cmd, "document")
		if err != nil {
			return err
		}
		documentID = mo.Some(id)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	topK := cmd.Int("top-k")
	if topK == 0 {
		topK = appCtx.Config.Retrieval.DefaultTopK
	}

	res, err := appCtx.Container.Ask.Ask(ctx, ask.AskParams{
		WorkspaceID:    appCtx.WorkspaceID(cmd),
		ActorID:        cliActor,
		Question:       question,
		Mode:           cmd.String("mode"),
		Retriever:      cmd.String("retriever"),
		TopK:           topK,
		DocumentID:     documentID,
		AnswerMode:     cmd.String("answer-mode"),
		IdempotencyKey: cmd.String("idempotency-key"),
	})
	if err != nil {
		var runErr *ask.RunError
		if errors.As(err, &runErr) {
			fmt.Fprintf(stdout(cmd), "%s run=%s kind=%s\n", errText("✗"), runErr.RunID, runErr.Kind)
		}
		return fmt.Errorf("質問応答に失敗: %w", err)
	}

	printAskResult(stdout(cmd), res)
	return nil
}
