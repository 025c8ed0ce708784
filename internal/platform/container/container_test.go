package container

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/routing"
	"github.com/jinford/kb-copilot/internal/core/trace"
	"github.com/jinford/kb-copilot/internal/platform/config"
)

func newMemoryContainer(t *testing.T) *ServiceContainer {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("VECTOR_BACKEND", "chromem")
	t.Setenv("EMBEDDINGS_PROVIDER", "stub")
	t.Setenv("EMBEDDINGS_DIM", "64")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CHROMEM_PATH", "")

	cfg, err := config.Load("")
	require.NoError(t, err)

	c, err := NewContainer(context.Background(), cfg,
		WithContainerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewContainer_MemoryBackend(t *testing.T) {
	c := newMemoryContainer(t)
	ctx := context.Background()
	workspaceID := uuid.MustParse("00000000-0000-0000-0000-000000000009")

	assert.Nil(t, c.Database())

	up, err := c.Documents.UploadText(ctx, kb.UploadParams{
		WorkspaceID: workspaceID,
		Title:       "Release notes",
		Content:     "Release notes for the platform.\n\nThe unique token is UNICORN_42. Keep it secret.",
	})
	require.NoError(t, err)
	require.NoError(t, c.Processor.Process(ctx, up.DocumentID))

	res, err := c.Ask.Ask(ctx, ask.AskParams{
		WorkspaceID: workspaceID,
		Question:    "what is the unique token?",
		DocumentID:  mo.Some(up.DocumentID),
		AnswerMode:  "deterministic",
	})
	require.NoError(t, err)
	assert.Equal(t, routing.RouteDocRAG, res.Route)
	assert.Contains(t, res.Answer, "UNICORN_42")

	run, err := c.Trace.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, trace.RunStatusSuccess, run.Status)

	steps, err := c.Trace.ListSteps(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}

func TestNewContainer_RunWorkerStopsOnCancel(t *testing.T) {
	c := newMemoryContainer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, c.RunWorker(ctx))
}
