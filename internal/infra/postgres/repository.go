package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/mo"

	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/trace"
	"github.com/jinford/kb-copilot/internal/infra/postgres/sqlc"
	"github.com/jinford/kb-copilot/internal/platform/database"
)

// uniqueViolationCode は PostgreSQL の一意制約違反
const uniqueViolationCode = "23505"

// defaultRowLimit は limit 未指定時の取得件数
const defaultRowLimit = 50

// Repository は文書・チャンク・Run・冪等キーを PostgreSQL に保存する
// 複数の書き込みを伴う操作は TransactionProvider のトランザクションで行う
type Repository struct {
	q  sqlc.Querier
	tx *database.TransactionProvider
}

// NewRepository は新しい Repository を作成します
func NewRepository(q sqlc.Querier, tx *database.TransactionProvider) *Repository {
	return &Repository{q: q, tx: tx}
}

// コンパイル時の型チェック
var (
	_ kb.Repository = (*Repository)(nil)
	_ ask.Store     = (*Repository)(nil)
)

// IsUniqueViolation は一意制約違反かを判定する
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func rowLimit(limit int) int32 {
	if limit <= 0 {
		return defaultRowLimit
	}
	return int32(limit)
}

// === Idempotency ===

func (r *Repository) GetRecord(ctx context.Context, key string) (mo.Option[*idempotency.Record], error) {
	row, err := r.q.GetIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*idempotency.Record](), nil
		}
		return mo.None[*idempotency.Record](), fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return mo.Some(recordFromRow(row)), nil
}

// bindKey はトランザクション内でキーを束縛する。既に束縛済みなら idempotency.ErrKeyTaken
func bindKey(ctx context.Context, q *sqlc.Queries, binding mo.Option[*idempotency.Record]) error {
	rec, ok := binding.Get()
	if !ok {
		return nil
	}
	err := q.CreateIdempotencyKey(ctx, sqlc.CreateIdempotencyKeyParams{
		Key:            rec.Key,
		WorkspaceID:    UUIDToPgtype(rec.WorkspaceID),
		Fingerprint:    rec.Fingerprint,
		RunID:          UUIDOptionToPgtype(rec.RunID),
		StoredResponse: rec.StoredResponse,
		CreatedAt:      TimeToPgtype(rec.CreatedAt),
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return idempotency.ErrKeyTaken
		}
		return fmt.Errorf("failed to bind idempotency key: %w", err)
	}
	return nil
}

// === Document ===

func (r *Repository) CreateDocument(ctx context.Context, doc *kb.Document, binding mo.Option[*idempotency.Record]) error {
	return database.Exec(ctx, r.tx, func(a *database.Adapter) error {
		if err := a.Queries.CreateDocument(ctx, createDocumentParams(doc)); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		return bindKey(ctx, a.Queries, binding)
	})
}

func (r *Repository) GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*kb.Document], error) {
	row, err := r.q.GetDocument(ctx, UUIDToPgtype(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*kb.Document](), nil
		}
		return mo.None[*kb.Document](), fmt.Errorf("failed to get document: %w", err)
	}
	return mo.Some(documentFromRow(row)), nil
}

func (r *Repository) ListDocuments(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*kb.Document, error) {
	rows, err := r.q.ListDocumentsByWorkspace(ctx, sqlc.ListDocumentsByWorkspaceParams{
		WorkspaceID: UUIDToPgtype(workspaceID),
		RowLimit:    rowLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]*kb.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, documentFromRow(row))
	}
	return docs, nil
}

func (r *Repository) ListPendingDocuments(ctx context.Context, maxAttempts, limit int) ([]uuid.UUID, error) {
	rows, err := r.q.ListPendingDocumentIDs(ctx, sqlc.ListPendingDocumentIDsParams{
		MaxAttempts: int32(maxAttempts),
		RowLimit:    rowLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, id := range rows {
		ids = append(ids, PgtypeToUUID(id))
	}
	return ids, nil
}

func (r *Repository) ClaimDocument(ctx context.Context, id uuid.UUID, maxAttempts int) (mo.Option[*kb.Document], error) {
	row, err := r.q.ClaimDocument(ctx, sqlc.ClaimDocumentParams{
		ID:          UUIDToPgtype(id),
		MaxAttempts: int32(maxAttempts),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*kb.Document](), nil
		}
		return mo.None[*kb.Document](), fmt.Errorf("failed to claim document: %w", err)
	}
	return mo.Some(documentFromRow(row)), nil
}

func (r *Repository) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*kb.Chunk, contentHash string) error {
	return database.Exec(ctx, r.tx, func(a *database.Adapter) error {
		if err := a.Locks.LockDocument(ctx, documentID); err != nil {
			return err
		}

		if _, err := a.Queries.GetDocument(ctx, UUIDToPgtype(documentID)); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", kb.ErrDocumentNotFound, documentID)
			}
			return fmt.Errorf("failed to get document: %w", err)
		}

		if err := a.Queries.DeleteChunksByDocument(ctx, UUIDToPgtype(documentID)); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		for _, c := range chunks {
			params, err := createChunkParams(c)
			if err != nil {
				return err
			}
			if err := a.Queries.CreateChunk(ctx, params); err != nil {
				return fmt.Errorf("failed to create chunk %d: %w", c.Index, err)
			}
		}

		n, err := a.Queries.MarkDocumentEmbedded(ctx, sqlc.MarkDocumentEmbeddedParams{
			ChunkCount:  int32(len(chunks)),
			ContentHash: contentHash,
			ID:          UUIDToPgtype(documentID),
		})
		if err != nil {
			return fmt.Errorf("failed to mark document embedded: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("cannot mark document %s embedded: not in %s", documentID, kb.StatusChunking)
		}
		return nil
	})
}

func (r *Repository) MarkFailed(ctx context.Context, documentID uuid.UUID, lastError string) error {
	n, err := r.q.MarkDocumentFailed(ctx, sqlc.MarkDocumentFailedParams{
		LastError: lastError,
		ID:        UUIDToPgtype(documentID),
	})
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", kb.ErrDocumentNotFound, documentID)
	}
	return nil
}

func (r *Repository) ListChunks(ctx context.Context, documentID uuid.UUID) ([]*kb.Chunk, error) {
	rows, err := r.q.ListChunksByDocument(ctx, UUIDToPgtype(documentID))
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	chunks := make([]*kb.Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, chunkFromRow(row))
	}
	return chunks, nil
}

// === Run ===

func (r *Repository) StartRun(ctx context.Context, run *trace.Run, binding mo.Option[*idempotency.Record]) error {
	return database.Exec(ctx, r.tx, func(a *database.Adapter) error {
		err := a.Queries.CreateRun(ctx, sqlc.CreateRunParams{
			ID:          UUIDToPgtype(run.ID),
			WorkspaceID: UUIDToPgtype(run.WorkspaceID),
			Question:    run.Question,
			Mode:        run.Mode,
			Status:      string(run.Status),
			CreatedAt:   TimeToPgtype(run.CreatedAt),
			UpdatedAt:   TimeToPgtype(run.UpdatedAt),
		})
		if err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		return bindKey(ctx, a.Queries, binding)
	})
}

func (r *Repository) FinishRun(ctx context.Context, runID uuid.UUID, finish trace.Finish, steps ...*trace.Step) error {
	return database.Exec(ctx, r.tx, func(a *database.Adapter) error {
		run, err := a.Queries.GetRunForUpdate(ctx, UUIDToPgtype(runID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", trace.ErrRunNotFound, runID)
			}
			return fmt.Errorf("failed to get run: %w", err)
		}
		if run.Status != string(trace.RunStatusRunning) {
			return fmt.Errorf("%w: %s", trace.ErrRunFinished, runID)
		}

		for _, s := range steps {
			err := a.Queries.CreateRunStep(ctx, sqlc.CreateRunStepParams{
				ID:        UUIDToPgtype(s.ID),
				RunID:     UUIDToPgtype(runID),
				Name:      string(s.Name),
				Input:     s.Input,
				Output:    s.Output,
				Status:    string(s.Status),
				CreatedAt: TimeToPgtype(s.CreatedAt),
			})
			if err != nil {
				return fmt.Errorf("failed to create step %s: %w", s.Name, err)
			}
		}

		if _, err := a.Queries.FinishRun(ctx, sqlc.FinishRunParams{
			Status:           string(finish.Status),
			FinalOutput:      finish.FinalOutput,
			Error:            finish.Error,
			PromptTokens:     int32(finish.Usage.PromptTokens),
			CompletionTokens: int32(finish.Usage.CompletionTokens),
			CostUsd:          finish.Usage.CostUSD,
			ID:               UUIDToPgtype(runID),
		}); err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (mo.Option[*trace.Run], error) {
	row, err := r.q.GetRun(ctx, UUIDToPgtype(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*trace.Run](), nil
		}
		return mo.None[*trace.Run](), fmt.Errorf("failed to get run: %w", err)
	}
	return mo.Some(runFromRow(row)), nil
}

func (r *Repository) ListRuns(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*trace.Run, error) {
	rows, err := r.q.ListRunsByWorkspace(ctx, sqlc.ListRunsByWorkspaceParams{
		WorkspaceID: UUIDToPgtype(workspaceID),
		RowLimit:    rowLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*trace.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, runFromRow(row))
	}
	return runs, nil
}

func (r *Repository) ListSteps(ctx context.Context, runID uuid.UUID) ([]*trace.Step, error) {
	rows, err := r.q.ListRunSteps(ctx, UUIDToPgtype(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}

	steps := make([]*trace.Step, 0, len(rows))
	for _, row := range rows {
		steps = append(steps, stepFromRow(row))
	}
	return steps, nil
}
