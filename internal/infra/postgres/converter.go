package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/trace"
	"github.com/jinford/kb-copilot/internal/infra/postgres/sqlc"
)

// UUIDToPgtype converts uuid.UUID to pgtype.UUID
func UUIDToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgtypeToUUID converts pgtype.UUID to uuid.UUID
func PgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}

// UUIDOptionToPgtype converts mo.Option[uuid.UUID] to pgtype.UUID (nullable)
func UUIDOptionToPgtype(id mo.Option[uuid.UUID]) pgtype.UUID {
	v, ok := id.Get()
	if !ok {
		return pgtype.UUID{}
	}
	return UUIDToPgtype(v)
}

// PgtypeToUUIDOption converts pgtype.UUID to mo.Option[uuid.UUID]
func PgtypeToUUIDOption(id pgtype.UUID) mo.Option[uuid.UUID] {
	if !id.Valid {
		return mo.None[uuid.UUID]()
	}
	return mo.Some(uuid.UUID(id.Bytes))
}

// TimeToPgtype converts time.Time to pgtype.Timestamp
func TimeToPgtype(t time.Time) pgtype.Timestamp {
	return pgtype.Timestamp{Time: t.UTC(), Valid: true}
}

// PgtypeToTime converts pgtype.Timestamp to time.Time
func PgtypeToTime(t pgtype.Timestamp) time.Time {
	return t.Time.UTC()
}

func createDocumentParams(doc *kb.Document) sqlc.CreateDocumentParams {
	return sqlc.CreateDocumentParams{
		ID:          UUIDToPgtype(doc.ID),
		WorkspaceID: UUIDToPgtype(doc.WorkspaceID),
		Source:      doc.Source,
		Title:       doc.Title,
		Filename:    doc.Filename,
		MimeType:    doc.MimeType,
		Content:     doc.Content,
		ContentHash: doc.ContentHash,
		Status:      string(doc.Status),
		ChunkCount:  int32(doc.ChunkCount),
		Attempts:    int32(doc.Attempts),
		LastError:   doc.LastError,
		CreatedAt:   TimeToPgtype(doc.CreatedAt),
		UpdatedAt:   TimeToPgtype(doc.UpdatedAt),
	}
}

func documentFromRow(row sqlc.Document) *kb.Document {
	return &kb.Document{
		ID:          PgtypeToUUID(row.ID),
		WorkspaceID: PgtypeToUUID(row.WorkspaceID),
		Source:      row.Source,
		Title:       row.Title,
		Filename:    row.Filename,
		MimeType:    row.MimeType,
		Content:     row.Content,
		ContentHash: row.ContentHash,
		Status:      kb.DocumentStatus(row.Status),
		ChunkCount:  int(row.ChunkCount),
		Attempts:    int(row.Attempts),
		LastError:   row.LastError,
		CreatedAt:   PgtypeToTime(row.CreatedAt),
		UpdatedAt:   PgtypeToTime(row.UpdatedAt),
	}
}

func createChunkParams(c *kb.Chunk) (sqlc.CreateChunkParams, error) {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return sqlc.CreateChunkParams{}, fmt.Errorf("failed to encode chunk meta: %w", err)
	}
	return sqlc.CreateChunkParams{
		ID:          UUIDToPgtype(c.ID),
		DocumentID:  UUIDToPgtype(c.DocumentID),
		WorkspaceID: UUIDToPgtype(c.WorkspaceID),
		ChunkIndex:  int32(c.Index),
		Text:        c.Text,
		Meta:        meta,
		Embedding:   pgvector.NewVector(c.Embedding),
		CreatedAt:   TimeToPgtype(c.CreatedAt),
	}, nil
}

func chunkFromRow(row sqlc.Chunk) *kb.Chunk {
	var meta kb.ChunkMeta
	// meta は書き込み時に常に JSON 化しているので壊れていれば空のまま返す
	_ = json.Unmarshal(row.Meta, &meta)
	return &kb.Chunk{
		ID:          PgtypeToUUID(row.ID),
		DocumentID:  PgtypeToUUID(row.DocumentID),
		WorkspaceID: PgtypeToUUID(row.WorkspaceID),
		Index:       int(row.ChunkIndex),
		Text:        row.Text,
		Meta:        meta,
		Embedding:   row.Embedding.Slice(),
		CreatedAt:   PgtypeToTime(row.CreatedAt),
	}
}

func runFromRow(row sqlc.Run) *trace.Run {
	return &trace.Run{
		ID:               PgtypeToUUID(row.ID),
		WorkspaceID:      PgtypeToUUID(row.WorkspaceID),
		Question:         row.Question,
		Mode:             row.Mode,
		Status:           trace.RunStatus(row.Status),
		FinalOutput:      row.FinalOutput,
		Error:            row.Error,
		PromptTokens:     int(row.PromptTokens),
		CompletionTokens: int(row.CompletionTokens),
		CostUSD:          row.CostUsd,
		CreatedAt:        PgtypeToTime(row.CreatedAt),
		UpdatedAt:        PgtypeToTime(row.UpdatedAt),
	}
}

func stepFromRow(row sqlc.RunStep) *trace.Step {
	return &trace.Step{
		ID:        PgtypeToUUID(row.ID),
		RunID:     PgtypeToUUID(row.RunID),
		Name:      trace.StepName(row.Name),
		Input:     row.Input,
		Output:    row.Output,
		Status:    trace.StepStatus(row.Status),
		CreatedAt: PgtypeToTime(row.CreatedAt),
	}
}

func recordFromRow(row sqlc.IdempotencyKey) *idempotency.Record {
	return &idempotency.Record{
		Key:            row.Key,
		WorkspaceID:    PgtypeToUUID(row.WorkspaceID),
		Fingerprint:    row.Fingerprint,
		RunID:          PgtypeToUUIDOption(row.RunID),
		StoredResponse: row.StoredResponse,
		CreatedAt:      PgtypeToTime(row.CreatedAt),
	}
}
