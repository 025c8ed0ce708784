package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-copilot/internal/core/answer"
	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/routing"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := NewRootCommand()
	root.Writer = &buf
	root.ErrWriter = &buf
	err := root.Run(context.Background(), append([]string{"kb-copilot"}, args...))
	return buf.String(), err
}

func TestKBUpload_RequiresExactlyOneSource(t *testing.T) {
	_, err := run(t, "kb", "upload", "--env", "", "--title", "T")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--file")

	_, err = run(t, "kb", "upload", "--env", "", "--title", "T", "--file", "a.md", "--text", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--text")
}

func TestInvalidIDIsRejectedBeforeConnecting(t *testing.T) {
	_, err := run(t, "kb", "show", "--env", "", "--id", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id")

	_, err = run(t, "runs", "steps", "--env", "", "--id", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id")

	_, err = run(t, "ask", "--env", "", "--question", "q", "--document", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--document")
}

func TestDBMigrate_RequiresPostgres(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("VECTOR_BACKEND", "chromem")

	_, err := run(t, "db", "migrate", "--env", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BACKEND=memory")
}

func TestPrintDocuments(t *testing.T) {
	var buf bytes.Buffer
	printDocuments(&buf, nil)
	assert.Contains(t, buf.String(), "文書はありません")

	buf.Reset()
	id := uuid.New()
	printDocuments(&buf, []*kb.Document{{
		ID:         id,
		Title:      "Release notes",
		Source:     kb.SourceUpload,
		Status:     kb.StatusEmbedded,
		ChunkCount: 3,
		UpdatedAt:  time.Now(),
	}})
	out := buf.String()
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "Release notes")
	assert.Contains(t, out, "embedded")
}

func TestPrintAskResult(t *testing.T) {
	var buf bytes.Buffer
	runID := uuid.New()

	printAskResult(&buf, &ask.AskResult{
		RunID:         runID,
		Answer:        "The unique token is UNICORN_42.",
		RetrieverUsed: "hybrid",
		LLMUsed:       answer.LLMNone,
		AnswerMode:    "deterministic",
		Route:         routing.RouteDocRAG,
		Sources: []answer.Source{{
			DocumentTitle: "Release notes",
			ChunkIndex:    0,
			Snippet:       "The unique token is UNICORN_42.",
			Score:         0.9,
			RetrieverHint: "keyword",
		}},
	})

	out := buf.String()
	assert.Contains(t, out, "UNICORN_42")
	assert.Contains(t, out, "Release notes")
	assert.Contains(t, out, "0.9000")
	assert.Contains(t, out, "run="+runID.String())
	assert.Contains(t, out, "route=doc_rag")
}

func TestPrintRunAndSteps(t *testing.T) {
	var buf bytes.Buffer
	r := &trace.Run{
		ID:          uuid.New(),
		Question:    "what is the token?",
		Mode:        "answer",
		Status:      trace.RunStatusError,
		Error:       "unknown answer mode",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		FinalOutput: "",
	}
	printRun(&buf, r)
	assert.Contains(t, buf.String(), "unknown answer mode")
	assert.Contains(t, buf.String(), "error")

	buf.Reset()
	printSteps(&buf, []*trace.Step{{
		Name:   trace.StepRetrieveContext,
		Status: trace.StepStatusOK,
		Input:  json.RawMessage(`{"top_k":5}`),
		Output: json.RawMessage(`{"hits":1}`),
	}})
	assert.Contains(t, buf.String(), "retrieve_context")
	assert.Contains(t, buf.String(), `{"top_k":5}`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate(" a \n b ", 10))
	assert.Equal(t, "あいう…", truncate("あいうえお", 3))
}
