package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, 50, cfg.Retrieval.KeywordPoolLimit)
	assert.Equal(t, 4.0, cfg.Router.KeywordThreshold)
	assert.Equal(t, 0.55, cfg.Router.VectorThreshold)
	assert.Equal(t, 0.70, cfg.Router.VectorHardThreshold)
	assert.Equal(t, 0.55, cfg.Router.MinMaxScore)
	assert.Equal(t, 12, cfg.Router.SummarySampleSize)
	assert.Equal(t, 3500, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 300, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 30*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FromEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "STORAGE_BACKEND=memory\nVECTOR_BACKEND=chromem\nRAG_KW_THRESHOLD=6\nLLM_TIMEOUT=5\nLOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	for _, key := range []string{"STORAGE_BACKEND", "VECTOR_BACKEND", "RAG_KW_THRESHOLD", "LLM_TIMEOUT", "LOG_LEVEL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "chromem", cfg.Storage.VectorBackend)
	assert.Equal(t, 6.0, cfg.Router.KeywordThreshold)
	assert.Equal(t, 5*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "storage backend", key: "STORAGE_BACKEND", val: "sqlite"},
		{name: "vector backend", key: "VECTOR_BACKEND", val: "faiss"},
		{name: "embeddings provider", key: "EMBEDDINGS_PROVIDER", val: "cohere"},
		{name: "overlap larger than chunk", key: "CHUNK_OVERLAP", val: "5000"},
		{name: "log format", key: "LOG_FORMAT", val: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
