package cli

import (
	"github.com/urfave/cli/v3"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func workspaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "workspace",
		Usage: "ワークスペース名（未指定なら DEFAULT_WORKSPACE）",
	}
}

func idFlag(usage string) cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Usage:    usage,
		Required: true,
	}
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "limit",
		Usage: "表示件数の上限",
		Value: 50,
	}
}

// NewRootCommand は kb-copilot のコマンドツリーを構築する
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "kb-copilot",
		Usage: "ナレッジベース検索と回答ルーティングのエンジン",
		Commands: []*cli.Command{
			{
				Name:  "db",
				Usage: "データベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "migrate",
						Usage:  "スキーマのマイグレーションを適用",
						Flags:  []cli.Flag{envFlag()},
						Action: DBMigrateAction,
					},
				},
			},
			{
				Name:  "kb",
				Usage: "ナレッジベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "upload",
						Usage: "テキストまたはファイルを文書として登録",
						Flags: []cli.Flag{
							envFlag(),
							workspaceFlag(),
							&cli.StringFlag{
								Name:  "title",
								Usage: "文書タイトル",
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "登録するファイル（.md/.txt/.pdf/.docx）",
							},
							&cli.StringFlag{
								Name:  "text",
								Usage: "登録する本文",
							},
							&cli.StringFlag{
								Name:  "idempotency-key",
								Usage: "冪等キー",
							},
							&cli.BoolFlag{
								Name:  "wait",
								Usage: "このプロセスでチャンク分割と埋め込みまで行う",
							},
						},
						Action: KBUploadAction,
					},
					{
						Name:   "list",
						Usage:  "文書一覧を表示",
						Flags:  []cli.Flag{envFlag(), workspaceFlag(), limitFlag()},
						Action: KBListAction,
					},
					{
						Name:   "show",
						Usage:  "文書詳細を表示",
						Flags:  []cli.Flag{envFlag(), workspaceFlag(), idFlag("文書ID")},
						Action: KBShowAction,
					},
					{
						Name:  "import-git",
						Usage: "Gitリポジトリのテキストファイルを取り込む",
						Flags: []cli.Flag{
							envFlag(),
							workspaceFlag(),
							&cli.StringFlag{
								Name:     "url",
								Usage:    "GitリポジトリURL",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "ref",
								Usage: "ブランチ名またはタグ名（未指定なら GIT_DEFAULT_BRANCH）",
							},
						},
						Action: KBImportGitAction,
					},
				},
			},
			{
				Name:  "ask",
				Usage: "ナレッジベースに質問する",
				Flags: []cli.Flag{
					envFlag(),
					workspaceFlag(),
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "document",
						Usage: "検索対象を絞り込む文書ID",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "answer / document / automation",
					},
					&cli.StringFlag{
						Name:  "retriever",
						Usage: "auto / vector / keyword / hybrid",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "返す参照ソースの数（1..50）",
					},
					&cli.StringFlag{
						Name:  "answer-mode",
						Usage: "sources_only / deterministic / llm",
					},
					&cli.StringFlag{
						Name:  "idempotency-key",
						Usage: "冪等キー",
					},
				},
				Action: AskAction,
			},
			{
				Name:  "runs",
				Usage: "実行履歴コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "実行履歴を表示",
						Flags:  []cli.Flag{envFlag(), workspaceFlag(), limitFlag()},
						Action: RunsListAction,
					},
					{
						Name:   "show",
						Usage:  "実行の詳細を表示",
						Flags:  []cli.Flag{envFlag(), workspaceFlag(), idFlag("実行ID")},
						Action: RunsShowAction,
					},
					{
						Name:   "steps",
						Usage:  "実行のステップを表示",
						Flags:  []cli.Flag{envFlag(), idFlag("実行ID")},
						Action: RunsStepsAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "HTTP API サーバーコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTP API サーバーと取り込みワーカーを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "待ち受けポート（未指定なら HTTP_PORT）",
							},
						},
						Action: ServerStartAction,
					},
				},
			},
			{
				Name:  "worker",
				Usage: "取り込みワーカーコマンド",
				Commands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "取り込みワーカーを起動",
						Flags:  []cli.Flag{envFlag()},
						Action: WorkerStartAction,
					},
				},
			},
		},
	}
}
