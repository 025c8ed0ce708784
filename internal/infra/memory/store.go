package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/retrieval"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

// Store はプロセス内で完結する文書・チャンク・Run・冪等キーのストア
// 1つの RWMutex で全体を保護し、各メソッドが1つのトランザクションに相当する
type Store struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*kb.Document
	chunks    map[uuid.UUID][]*kb.Chunk
	runs      map[uuid.UUID]*trace.Run
	steps     map[uuid.UUID][]*trace.Step
	keys      map[string]*idempotency.Record
}

// NewStore は空の Store を作成する
func NewStore() *Store {
	return &Store{
		documents: make(map[uuid.UUID]*kb.Document),
		chunks:    make(map[uuid.UUID][]*kb.Chunk),
		runs:      make(map[uuid.UUID]*trace.Run),
		steps:     make(map[uuid.UUID][]*trace.Step),
		keys:      make(map[string]*idempotency.Record),
	}
}

// bindKey は呼び出し側がロックを保持している前提でキーを束縛する
func (s *Store) bindKey(binding mo.Option[*idempotency.Record]) error {
	rec, ok := binding.Get()
	if !ok {
		return nil
	}
	if _, taken := s.keys[rec.Key]; taken {
		return idempotency.ErrKeyTaken
	}
	cp := *rec
	s.keys[rec.Key] = &cp
	return nil
}

// GetRecord は冪等キーのレコードを取得する
func (s *Store) GetRecord(_ context.Context, key string) (mo.Option[*idempotency.Record], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.keys[key]
	if !ok {
		return mo.None[*idempotency.Record](), nil
	}
	cp := *rec
	return mo.Some(&cp), nil
}

// CreateDocument は文書を作成する
func (s *Store) CreateDocument(_ context.Context, doc *kb.Document, binding mo.Option[*idempotency.Record]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	if err := s.bindKey(binding); err != nil {
		return err
	}
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

// GetDocument は文書を取得する
func (s *Store) GetDocument(_ context.Context, id uuid.UUID) (mo.Option[*kb.Document], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return mo.None[*kb.Document](), nil
	}
	cp := *doc
	return mo.Some(&cp), nil
}

// ListDocuments はワークスペースの文書を新しい順に取得する
func (s *Store) ListDocuments(_ context.Context, workspaceID uuid.UUID, limit int) ([]*kb.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*kb.Document, 0)
	for _, doc := range s.documents {
		if doc.WorkspaceID != workspaceID {
			continue
		}
		cp := *doc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPendingDocuments は処理待ちの文書IDを古い順に取得する
func (s *Store) ListPendingDocuments(_ context.Context, maxAttempts, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*kb.Document, 0)
	for _, doc := range s.documents {
		if doc.Claimable(maxAttempts) {
			pending = append(pending, doc)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	ids := make([]uuid.UUID, len(pending))
	for i, doc := range pending {
		ids[i] = doc.ID
	}
	return ids, nil
}

// ClaimDocument は処理可能な文書を chunking にする
func (s *Store) ClaimDocument(_ context.Context, id uuid.UUID, maxAttempts int) (mo.Option[*kb.Document], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok || !doc.Claimable(maxAttempts) {
		return mo.None[*kb.Document](), nil
	}
	doc.Status = kb.StatusChunking
	doc.UpdatedAt = time.Now().UTC()
	cp := *doc
	return mo.Some(&cp), nil
}

// ReplaceChunks はチャンク集合を置き換えて文書を embedded にする
func (s *Store) ReplaceChunks(_ context.Context, documentID uuid.UUID, chunks []*kb.Chunk, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: %s", kb.ErrDocumentNotFound, documentID)
	}
	if !kb.CanTransition(doc.Status, kb.StatusEmbedded) {
		return fmt.Errorf("cannot mark document %s embedded from %s", documentID, doc.Status)
	}

	copied := make([]*kb.Chunk, len(chunks))
	for i, c := range chunks {
		cp := *c
		copied[i] = &cp
	}
	sort.Slice(copied, func(i, j int) bool { return copied[i].Index < copied[j].Index })
	s.chunks[documentID] = copied

	doc.Status = kb.StatusEmbedded
	doc.ChunkCount = len(copied)
	doc.ContentHash = contentHash
	doc.LastError = ""
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed は文書を failed にする
func (s *Store) MarkFailed(_ context.Context, documentID uuid.UUID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: %s", kb.ErrDocumentNotFound, documentID)
	}
	doc.Status = kb.StatusFailed
	doc.Attempts++
	doc.LastError = lastError
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// ListChunks は文書のチャンクを index 順に取得する
func (s *Store) ListChunks(_ context.Context, documentID uuid.UUID) ([]*kb.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.chunks[documentID]
	out := make([]*kb.Chunk, len(src))
	for i, c := range src {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

// KeywordCandidates は本文またはタイトルがいずれかの語に単語一致するチャンクを新しい順に返す
func (s *Store) KeywordCandidates(_ context.Context, q retrieval.KeywordQuery) ([]*retrieval.ChunkText, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*retrieval.ChunkText, 0)
	for docID, chunks := range s.chunks {
		doc := s.documents[docID]
		if doc == nil || doc.WorkspaceID != q.WorkspaceID {
			continue
		}
		if scope, ok := q.DocumentID.Get(); ok && scope != docID {
			continue
		}
		for _, c := range chunks {
			if !matchesAny(c.Text, doc.Title, q.Terms) {
				continue
			}
			out = append(out, &retrieval.ChunkText{
				ChunkID:       c.ID,
				DocumentID:    docID,
				DocumentTitle: doc.Title,
				ChunkIndex:    c.Index,
				Text:          c.Text,
			})
		}
	}

	// UUIDv7 の降順は作成の新しい順
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ChunkID[:], out[j].ChunkID[:]) > 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesAny(text, title string, terms []string) bool {
	for _, t := range terms {
		t = strings.ToLower(t)
		if retrieval.CountWholeWord(text, t) > 0 || retrieval.CountWholeWord(title, t) > 0 {
			return true
		}
	}
	return false
}

// StartRun は Run を作成し、キーを束縛する
func (s *Store) StartRun(_ context.Context, run *trace.Run, binding mo.Option[*idempotency.Record]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bindKey(binding); err != nil {
		return err
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// FinishRun は Step を追記して Run を終端状態にする
func (s *Store) FinishRun(_ context.Context, runID uuid.UUID, finish trace.Finish, steps ...*trace.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", trace.ErrRunNotFound, runID)
	}
	if run.IsFinished() {
		return fmt.Errorf("%w: %s", trace.ErrRunFinished, runID)
	}

	for _, step := range steps {
		cp := *step
		s.steps[runID] = append(s.steps[runID], &cp)
	}
	run.Status = finish.Status
	run.FinalOutput = finish.FinalOutput
	run.Error = finish.Error
	run.PromptTokens = finish.Usage.PromptTokens
	run.CompletionTokens = finish.Usage.CompletionTokens
	run.CostUSD = finish.Usage.CostUSD
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// GetRun は Run を取得する
func (s *Store) GetRun(_ context.Context, id uuid.UUID) (mo.Option[*trace.Run], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return mo.None[*trace.Run](), nil
	}
	cp := *run
	return mo.Some(&cp), nil
}

// ListRuns はワークスペースの Run を新しい順に取得する
func (s *Store) ListRuns(_ context.Context, workspaceID uuid.UUID, limit int) ([]*trace.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*trace.Run, 0)
	for _, run := range s.runs {
		if run.WorkspaceID != workspaceID {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListSteps は Run の Step を作成順に取得する
func (s *Store) ListSteps(_ context.Context, runID uuid.UUID) ([]*trace.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.steps[runID]
	out := make([]*trace.Step, len(src))
	for i, step := range src {
		cp := *step
		out[i] = &cp
	}
	return out, nil
}
