package kb_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/infra/memory"
	"github.com/jinford/kb-copilot/internal/infra/stubembed"
)

var workspaceID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type flakyEmbedder struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    *stubembed.Embedder
}

func (e *flakyEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.calls <= e.failures
	e.mu.Unlock()
	if fail {
		return nil, errors.New("embedding service unavailable")
	}
	return e.inner.BatchEmbed(ctx, texts)
}

type recordingSink struct {
	mu     sync.Mutex
	chunks map[uuid.UUID]int
}

func (s *recordingSink) IndexChunks(_ context.Context, doc *kb.Document, chunks []*kb.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == nil {
		s.chunks = make(map[uuid.UUID]int)
	}
	s.chunks[doc.ID] = len(chunks)
	return nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(filename string, data []byte) (string, string, error) {
	if strings.HasSuffix(filename, ".bin") {
		return "", "", kb.ErrUnsupportedFile
	}
	return string(data), "text/markdown", nil
}

func TestDocumentService_UploadText(t *testing.T) {
	store := memory.NewStore()
	svc := kb.NewDocumentService(store, kb.WithDocumentLogger(discardLogger()))
	ctx := context.Background()

	t.Run("タイトル未指定は Untitled", func(t *testing.T) {
		res, err := svc.UploadText(ctx, kb.UploadParams{WorkspaceID: workspaceID, Content: "hello"})
		require.NoError(t, err)
		assert.Equal(t, kb.StatusUploaded, res.Status)
		assert.True(t, res.Queued)

		doc, err := svc.GetDocument(ctx, res.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, kb.DefaultTitle, doc.Title)
		assert.Equal(t, "hello", doc.ContentPreview)
		assert.Equal(t, kb.SourceUpload, doc.Source)
	})

	t.Run("空の本文は拒否", func(t *testing.T) {
		_, err := svc.UploadText(ctx, kb.UploadParams{WorkspaceID: workspaceID, Content: "   "})
		assert.ErrorIs(t, err, kb.ErrEmptyContent)
	})

	t.Run("同じキーと同じ内容は保存済みの応答を再生", func(t *testing.T) {
		params := kb.UploadParams{WorkspaceID: workspaceID, Title: "Doc1", Content: "body", IdempotencyKey: "up-1"}
		first, err := svc.UploadText(ctx, params)
		require.NoError(t, err)
		second, err := svc.UploadText(ctx, params)
		require.NoError(t, err)

		assert.Equal(t, first.DocumentID, second.DocumentID)
		assert.False(t, first.IdempotentReplay)
		assert.True(t, second.IdempotentReplay)
	})

	t.Run("同じキーで内容が異なれば衝突", func(t *testing.T) {
		_, err := svc.UploadText(ctx, kb.UploadParams{WorkspaceID: workspaceID, Title: "Doc1", Content: "body", IdempotencyKey: "up-2"})
		require.NoError(t, err)

		before, err := svc.ListDocuments(ctx, workspaceID, 0)
		require.NoError(t, err)

		_, err = svc.UploadText(ctx, kb.UploadParams{WorkspaceID: workspaceID, Title: "Doc1", Content: "other", IdempotencyKey: "up-2"})
		assert.ErrorIs(t, err, idempotency.ErrConflict)

		after, err := svc.ListDocuments(ctx, workspaceID, 0)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})
}

func TestDocumentService_ConcurrentUploadsWithSameKey(t *testing.T) {
	store := memory.NewStore()
	svc := kb.NewDocumentService(store, kb.WithDocumentLogger(discardLogger()))
	params := kb.UploadParams{WorkspaceID: workspaceID, Title: "Doc1", Content: "body", IdempotencyKey: "up-race"}

	const callers = 32
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]*kb.UploadResult, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = svc.UploadText(context.Background(), params)
		}(i)
	}
	close(start)
	wg.Wait()

	fresh := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if !results[i].IdempotentReplay {
			fresh++
		}
		assert.Equal(t, results[0].DocumentID, results[i].DocumentID)
	}
	assert.Equal(t, 1, fresh)

	docs, err := svc.ListDocuments(context.Background(), workspaceID, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestDocumentService_UploadFile(t *testing.T) {
	store := memory.NewStore()
	svc := kb.NewDocumentService(store, kb.WithExtractor(stubExtractor{}), kb.WithDocumentLogger(discardLogger()))

	res, err := svc.UploadFile(context.Background(), kb.UploadFileParams{
		WorkspaceID: workspaceID,
		Filename:    "guide.md",
		Data:        []byte("# Guide\n\nSteps."),
	})
	require.NoError(t, err)

	doc, err := svc.GetDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "guide.md", doc.Title)
	assert.Equal(t, "text/markdown", doc.MimeType)

	_, err = svc.UploadFile(context.Background(), kb.UploadFileParams{WorkspaceID: workspaceID, Filename: "blob.bin", Data: []byte{0, 1}})
	assert.ErrorIs(t, err, kb.ErrUnsupportedFile)
}

func TestDocumentService_GetDocumentNotFound(t *testing.T) {
	svc := kb.NewDocumentService(memory.NewStore())

	_, err := svc.GetDocument(context.Background(), uuid.New())

	assert.ErrorIs(t, err, kb.ErrDocumentNotFound)
}

func TestProcessor_EmbedsAndReplacesChunks(t *testing.T) {
	store := memory.NewStore()
	sink := &recordingSink{}
	svc := kb.NewDocumentService(store, kb.WithDocumentLogger(discardLogger()))
	proc := kb.NewProcessor(store, kb.NewChunker(100, 20), stubembed.NewEmbedder(32),
		kb.WithVectorSink(sink), kb.WithProcessorLogger(discardLogger()))
	ctx := context.Background()

	content := strings.Repeat("Paragraph about the product.\n\n", 10)
	res, err := svc.UploadText(ctx, kb.UploadParams{WorkspaceID: workspaceID, Title: "Manual", Content: content})
	require.NoError(t, err)

	require.NoError(t, proc.Process(ctx, res.DocumentID))

	doc, err := svc.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, kb.StatusEmbedded, doc.Status)
	assert.Equal(t, kb.ContentHash(content), doc.ContentHash)

	chunks, err := svc.Chunks(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Equal(t, doc.ChunkCount, len(chunks))
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Len(t, c.Embedding, 32)
	}
	assert.Equal(t, len(chunks), sink.chunks[res.DocumentID])

	texts, err := svc.ListChunkTexts(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Manual", texts[0].DocumentTitle)

	// 完了済みの文書は確保できない
	err = proc.Process(ctx, res.DocumentID)
	assert.ErrorIs(t, err, kb.ErrNotClaimable)
}

func TestProcessor_FailureMarksDocumentFailed(t *testing.T) {
	store := memory.NewStore()
	svc := kb.NewDocumentService(store)
	emb := &flakyEmbedder{failures: 1, inner: stubembed.NewEmbedder(16)}
	proc := kb.NewProcessor(store, kb.NewChunker(0, 0), emb,
		kb.WithMaxAttempts(2), kb.WithProcessorLogger(discardLogger()))
	ctx := context.Background()

	res, err := svc.UploadText(ctx, kb.UploadParams{WorkspaceID: workspaceID, Content: "text"})
	require.NoError(t, err)

	err = proc.Process(ctx, res.DocumentID)
	require.Error(t, err)

	doc, err := svc.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, kb.StatusFailed, doc.Status)
	assert.Equal(t, 1, doc.Attempts)
	assert.Contains(t, doc.LastError, "embedding service unavailable")

	// failed → chunking → embedded
	require.NoError(t, proc.Process(ctx, res.DocumentID))
	doc, err = svc.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, kb.StatusEmbedded, doc.Status)
	assert.Empty(t, doc.LastError)
}

func TestProcessor_StopsAfterMaxAttempts(t *testing.T) {
	store := memory.NewStore()
	svc := kb.NewDocumentService(store)
	emb := &flakyEmbedder{failures: 10, inner: stubembed.NewEmbedder(16)}
	proc := kb.NewProcessor(store, kb.NewChunker(0, 0), emb,
		kb.WithMaxAttempts(2), kb.WithProcessorLogger(discardLogger()))
	ctx := context.Background()

	res, err := svc.UploadText(ctx, kb.UploadParams{WorkspaceID: workspaceID, Content: "text"})
	require.NoError(t, err)

	assert.Error(t, proc.Process(ctx, res.DocumentID))
	assert.Error(t, proc.Process(ctx, res.DocumentID))
	assert.ErrorIs(t, proc.Process(ctx, res.DocumentID), kb.ErrNotClaimable)

	pending, err := store.ListPendingDocuments(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorker_ProcessesQueuedDocumentsWithRetry(t *testing.T) {
	store := memory.NewStore()
	emb := &flakyEmbedder{failures: 1, inner: stubembed.NewEmbedder(16)}
	proc := kb.NewProcessor(store, kb.NewChunker(0, 0), emb,
		kb.WithMaxAttempts(3), kb.WithProcessorLogger(discardLogger()))

	worker, err := kb.NewWorker(proc, store,
		kb.WithWorkers(2),
		kb.WithPollInterval(time.Hour),
		kb.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		kb.WithWorkerLogger(discardLogger()),
	)
	require.NoError(t, err)
	defer worker.Release()

	svc := kb.NewDocumentService(store, kb.WithQueue(worker), kb.WithDocumentLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	res, err := svc.UploadText(context.Background(), kb.UploadParams{WorkspaceID: workspaceID, Content: "queued text"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		doc, err := svc.GetDocument(context.Background(), res.DocumentID)
		return err == nil && doc.Status == kb.StatusEmbedded
	}, 5*time.Second, 10*time.Millisecond)

	doc, err := svc.GetDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Attempts)

	cancel()
	<-done
}
