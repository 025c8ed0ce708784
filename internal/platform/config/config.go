package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jinford/kb-copilot/internal/platform/logger"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// ストレージバックエンド（postgres / memory）
	Storage StorageConfig

	// API認証
	APIToken string

	// デフォルトワークスペース名
	DefaultWorkspace string

	// OpenAI設定（生成 + Embeddings）
	OpenAI OpenAIConfig

	// Embeddings設定
	Embeddings EmbeddingsConfig

	// 検索設定
	Retrieval RetrievalConfig

	// ルーター閾値
	Router RouterConfig

	// 取り込みワーカー設定
	Ingestion IngestionConfig

	// HTTPサーバー設定
	Server ServerConfig

	// Git設定
	Git GitConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// StorageConfig はストレージバックエンド設定
type StorageConfig struct {
	Backend       string // "postgres" or "memory"
	VectorBackend string // "pgvector" or "chromem"
	ChromemPath   string // 空の場合はインメモリ
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey            string
	Model             string
	MaxTokens         int
	Temperature       float64
	Timeout           time.Duration
	RequestsPerMinute int
	PricePer1KTokens  float64
}

// EmbeddingsConfig はEmbeddings設定
type EmbeddingsConfig struct {
	Provider  string // "openai" or "stub"
	Model     string
	Dimension int
}

// RetrievalConfig は検索設定
type RetrievalConfig struct {
	KeywordPoolLimit int
	DefaultTopK      int
}

// RouterConfig はルーター閾値設定
type RouterConfig struct {
	KeywordThreshold    float64
	VectorThreshold     float64
	VectorHardThreshold float64
	MinMaxScore         float64
	SummarySampleSize   int
}

// IngestionConfig は取り込みワーカー設定
type IngestionConfig struct {
	Workers      int
	MaxAttempts  int
	ChunkSize    int
	ChunkOverlap int
	QueueSize    int
	PollInterval time.Duration
}

// ServerConfig はHTTPサーバー設定
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// GitConfig はGit操作設定
type GitConfig struct {
	CloneDir      string
	SSHKeyPath    string
	SSHPassword   string
	DefaultBranch string
}

// LogConfig はログ設定
type LogConfig struct {
	Level  slog.Level
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "copilot"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "copilot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
		},
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE_BACKEND", "postgres"),
			VectorBackend: getEnv("VECTOR_BACKEND", "pgvector"),
			ChromemPath:   getEnv("CHROMEM_PATH", ""),
		},
		APIToken:         getEnv("KB_API_TOKEN", ""),
		DefaultWorkspace: getEnv("DEFAULT_WORKSPACE", "default"),
		OpenAI: OpenAIConfig{
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:         getEnvAsInt("OPENAI_MAX_TOKENS", 300),
			Temperature:       getEnvAsFloat("OPENAI_TEMPERATURE", 0.1),
			Timeout:           getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			RequestsPerMinute: getEnvAsInt("OPENAI_REQUESTS_PER_MINUTE", 60),
			PricePer1KTokens:  getEnvAsFloat("LLM_PRICE_PER_1K", 0.0006),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", "openai"),
			Model:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getEnvAsInt("EMBEDDINGS_DIM", 1536),
		},
		Retrieval: RetrievalConfig{
			KeywordPoolLimit: getEnvAsInt("KEYWORD_POOL_LIMIT", 50),
			DefaultTopK:      getEnvAsInt("RAG_DEFAULT_TOP_K", 5),
		},
		Router: RouterConfig{
			KeywordThreshold:    getEnvAsFloat("RAG_KW_THRESHOLD", 4),
			VectorThreshold:     getEnvAsFloat("RAG_VECTOR_THRESHOLD", 0.55),
			VectorHardThreshold: getEnvAsFloat("RAG_VECTOR_HARD_THRESHOLD", 0.70),
			MinMaxScore:         getEnvAsFloat("RAG_MIN_MAX_SCORE", 0.55),
			SummarySampleSize:   getEnvAsInt("SUMMARY_SAMPLE_SIZE", 12),
		},
		Ingestion: IngestionConfig{
			Workers:      getEnvAsInt("INGEST_WORKERS", 4),
			MaxAttempts:  getEnvAsInt("INGEST_MAX_ATTEMPTS", 5),
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 3500),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 300),
			QueueSize:    getEnvAsInt("INGEST_QUEUE_SIZE", 256),
			PollInterval: getEnvAsDuration("INGEST_POLL_INTERVAL", 30*time.Second),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("HTTP_PORT", 8000),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Git: GitConfig{
			CloneDir:      getEnv("GIT_CLONE_DIR", "/var/lib/kb-copilot/repos"),
			SSHKeyPath:    getEnv("GIT_SSH_KEY_PATH", ""),
			SSHPassword:   getEnv("GIT_SSH_PASSWORD", ""),
			DefaultBranch: getEnv("GIT_DEFAULT_BRANCH", "main"),
		},
		Log: LogConfig{
			Level:  getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %q", c.Storage.Backend)
	}
	switch c.Storage.VectorBackend {
	case "pgvector", "chromem":
	default:
		return fmt.Errorf("invalid VECTOR_BACKEND: %q", c.Storage.VectorBackend)
	}
	switch c.Embeddings.Provider {
	case "openai", "stub":
	default:
		return fmt.Errorf("invalid EMBEDDINGS_PROVIDER: %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("EMBEDDINGS_DIM must be positive: %d", c.Embeddings.Dimension)
	}
	if !logger.ValidFormat(c.Log.Format) {
		return fmt.Errorf("invalid LOG_FORMAT: %q", c.Log.Format)
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（"30s" 形式または秒数）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultValue
	}
}
