package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

const (
	// maxBodyBytes は JSON ボディの上限
	maxBodyBytes = 1 << 20
	// maxUploadBytes は multipart アップロードの上限
	maxUploadBytes = 32 << 20

	readHeaderTimeout = 10 * time.Second
)

// DocumentService は文書 API が使う操作
type DocumentService interface {
	UploadText(ctx context.Context, params kb.UploadParams) (*kb.UploadResult, error)
	UploadFile(ctx context.Context, params kb.UploadFileParams) (*kb.UploadResult, error)
	ListDocuments(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*kb.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*kb.DocumentDetail, error)
}

// AskService は質問応答 API が使う操作
type AskService interface {
	Ask(ctx context.Context, params ask.AskParams) (*ask.AskResult, error)
}

// TraceService は Run 参照 API が使う操作
type TraceService interface {
	GetRun(ctx context.Context, id uuid.UUID) (*trace.Run, error)
	ListRuns(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*trace.Run, error)
	ListSteps(ctx context.Context, runID uuid.UUID) ([]*trace.Step, error)
}

// Option は Server のオプション
type Option func(*Server)

// WithAPIToken は Bearer トークンを設定する。空なら認証しない
func WithAPIToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithDefaultWorkspace は X-Workspace ヘッダーがない場合のワークスペース名を設定する
func WithDefaultWorkspace(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.defaultWorkspace = name
		}
	}
}

// WithServerLogger はロガーを設定する
func WithServerLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server は知識ベースと質問応答の HTTP JSON API
type Server struct {
	documents        DocumentService
	asker            AskService
	traces           TraceService
	token            string
	defaultWorkspace string
	logger           *slog.Logger
}

// NewServer は新しい Server を作成する
func NewServer(documents DocumentService, asker AskService, traces TraceService, opts ...Option) *Server {
	s := &Server{
		documents:        documents,
		asker:            asker,
		traces:           traces,
		defaultWorkspace: "default",
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health/{$}", s.handleHealth)

	mux.HandleFunc("POST /api/kb/upload_text/{$}", s.handleUploadText)
	mux.HandleFunc("POST /api/kb/upload_file/{$}", s.handleUploadFile)
	mux.HandleFunc("GET /api/kb/documents/{$}", s.handleListDocuments)
	mux.HandleFunc("GET /api/kb/documents/{id}/{$}", s.handleGetDocument)

	mux.HandleFunc("POST /api/ask/{$}", s.handleAsk)

	mux.HandleFunc("GET /api/runs/{$}", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}/{$}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/steps/{$}", s.handleListSteps)

	return s.logRequests(s.authenticate(mux))
}

// ListenAndServe はコンテキストが終了するまでサーバーを動かし、終了時に graceful shutdown する
func (s *Server) ListenAndServe(ctx context.Context, port int, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
