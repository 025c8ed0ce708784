package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/kb-copilot/internal/core/answer"
	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/retrieval"
	"github.com/jinford/kb-copilot/internal/core/routing"
	"github.com/jinford/kb-copilot/internal/core/trace"
	"github.com/jinford/kb-copilot/internal/infra/extract"
	"github.com/jinford/kb-copilot/internal/infra/git"
	"github.com/jinford/kb-copilot/internal/infra/memory"
	"github.com/jinford/kb-copilot/internal/infra/openai"
	"github.com/jinford/kb-copilot/internal/infra/postgres"
	"github.com/jinford/kb-copilot/internal/infra/postgres/sqlc"
	"github.com/jinford/kb-copilot/internal/infra/stubembed"
	"github.com/jinford/kb-copilot/internal/platform/config"
	"github.com/jinford/kb-copilot/internal/platform/database"
)

// Embedder は取り込みと検索の両方で使う埋め込み器
type Embedder interface {
	kb.Embedder
	retrieval.Embedder
}

// store はバックエンドが提供するリポジトリ群
type store interface {
	kb.Repository
	ask.Store
}

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	Config    *config.Config
	Documents *kb.DocumentService
	Processor *kb.Processor
	Worker    *kb.Worker
	Importer  *kb.Importer
	Ask       *ask.AskService
	Trace     *trace.Service

	logger   *slog.Logger
	database *database.DB
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  Embedder
	generator answer.Generator
	database  *database.DB
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerGenerator は回答生成器を差し替える
func WithContainerGenerator(gen answer.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = gen
	}
}

// WithContainerDatabase は既存の接続を使う（postgres バックエンドのみ）
func WithContainerDatabase(db *database.DB) ContainerOption {
	return func(opts *containerOptions) {
		opts.database = db
	}
}

// NewContainer は設定からコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	embedder := options.embedder
	if embedder == nil {
		embedder = newEmbedder(cfg, logger)
	}

	c := &ServiceContainer{Config: cfg, logger: logger}

	// Repository / KeywordSource / VectorIndex
	var (
		repo    store
		keyword retrieval.KeywordSource
		index   retrieval.VectorIndex
		sink    kb.VectorSink
	)
	switch cfg.Storage.Backend {
	case "memory":
		mem := memory.NewStore()
		repo, keyword = mem, mem
		if cfg.Storage.VectorBackend == "pgvector" {
			logger.Warn("pgvector requires the postgres backend, using chromem instead")
		}
	default:
		db := options.database
		if db == nil {
			var err error
			db, err = database.New(ctx, database.ConnectionParams{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				DBName:   cfg.Database.DBName,
				SSLMode:  cfg.Database.SSLMode,
				MaxConns: cfg.Database.MaxConns,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to initialize database: %w", err)
			}
			c.database = db
		}
		q := sqlc.New(db.Pool)
		search := postgres.NewSearchRepository(q)
		repo = postgres.NewRepository(q, database.NewTransactionProvider(db.Pool))
		keyword = search
		if cfg.Storage.VectorBackend == "pgvector" {
			index = search
		}
	}
	if index == nil {
		chromem, err := memory.NewVectorIndex(cfg.Storage.ChromemPath)
		if err != nil {
			c.Close()
			return nil, err
		}
		index, sink = chromem, chromem
	}

	// Documents
	c.Documents = kb.NewDocumentService(repo,
		kb.WithExtractor(extract.NewExtractor()),
		kb.WithDocumentLogger(logger),
	)

	procOpts := []kb.ProcessorOption{
		kb.WithMaxAttempts(cfg.Ingestion.MaxAttempts),
		kb.WithProcessorLogger(logger),
	}
	if sink != nil {
		procOpts = append(procOpts, kb.WithVectorSink(sink))
	}
	c.Processor = kb.NewProcessor(repo, kb.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap), embedder, procOpts...)

	worker, err := kb.NewWorker(c.Processor, repo,
		kb.WithWorkers(cfg.Ingestion.Workers),
		kb.WithQueueSize(cfg.Ingestion.QueueSize),
		kb.WithPollInterval(cfg.Ingestion.PollInterval),
		kb.WithWorkerLogger(logger),
	)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Worker = worker
	c.Documents.SetQueue(worker)

	// Git knowledge source
	gitClient := git.NewClient(cfg.Git.SSHKeyPath, cfg.Git.SSHPassword)
	c.Importer = kb.NewImporter(git.NewSource(gitClient, cfg.Git.CloneDir, cfg.Git.DefaultBranch, logger), c.Documents, logger)

	// Ask
	retriever := retrieval.NewService(
		retrieval.NewKeywordMatcher(keyword, cfg.Retrieval.KeywordPoolLimit),
		index,
		embedder,
		retrieval.WithRetrievalLogger(logger),
	)
	router := routing.NewRouter(routing.Thresholds{
		KeywordMin:        cfg.Router.KeywordThreshold,
		VectorMin:         cfg.Router.VectorThreshold,
		VectorHard:        cfg.Router.VectorHardThreshold,
		MinMaxScore:       cfg.Router.MinMaxScore,
		SummarySampleSize: cfg.Router.SummarySampleSize,
	}, routing.WithRouterLogger(logger))

	assembler, err := newAssembler(cfg, options.generator, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Ask = ask.NewAskService(repo, c.Documents, retriever, router, assembler, ask.WithAskLogger(logger))
	c.Trace = trace.NewService(repo)

	return c, nil
}

func newEmbedder(cfg *config.Config, logger *slog.Logger) Embedder {
	if cfg.Embeddings.Provider == "stub" {
		return stubembed.NewEmbedder(cfg.Embeddings.Dimension)
	}
	return openai.NewEmbedder(
		cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.Embeddings.Model),
		openai.WithEmbeddingDimension(cfg.Embeddings.Dimension),
		openai.WithEmbedderLogger(logger),
	)
}

// newAssembler は回答組み立てを構築する。API キーがなければ生成器なしで動作する
func newAssembler(cfg *config.Config, gen answer.Generator, logger *slog.Logger) (*answer.Assembler, error) {
	opts := []answer.AssemblerOption{
		answer.WithPricePer1KTokens(cfg.OpenAI.PricePer1KTokens),
		answer.WithGenerationTimeout(cfg.OpenAI.Timeout),
		answer.WithAssemblerLogger(logger),
	}

	if gen == nil && cfg.OpenAI.APIKey != "" {
		g, err := openai.NewGenerator(cfg.OpenAI.APIKey,
			openai.WithModel(cfg.OpenAI.Model),
			openai.WithMaxTokens(cfg.OpenAI.MaxTokens),
			openai.WithTemperature(cfg.OpenAI.Temperature),
			openai.WithRequestsPerMinute(cfg.OpenAI.RequestsPerMinute),
			openai.WithGeneratorLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
		gen = g
	}
	if gen != nil {
		opts = append(opts, answer.WithGenerator(gen))
	}

	counter := openai.NewTokenCounter(cfg.OpenAI.Model, logger)
	opts = append(opts, answer.WithTokenBudget(counter, answer.DefaultPromptTokenBudget))

	return answer.NewAssembler(opts...), nil
}

// RunWorker はコンテキストが終了するまで取り込みワーカーを動かす
func (c *ServiceContainer) RunWorker(ctx context.Context) error {
	return c.Worker.Run(ctx)
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	if c.Worker != nil {
		c.Worker.Release()
	}
	if c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す（memory バックエンドでは nil）
func (c *ServiceContainer) Database() *database.DB {
	if c == nil {
		return nil
	}
	return c.database
}
