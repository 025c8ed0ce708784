package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"
)

// Embedder はクエリのベクトル化を提供する
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorQuery は近傍検索の条件
type VectorQuery struct {
	WorkspaceID uuid.UUID
	Embedding   []float32
	DocumentID  mo.Option[uuid.UUID]
	Limit       int
}

// VectorIndex は外部のベクトル類似度インデックス
type VectorIndex interface {
	// Nearest は距離の昇順に最大 Limit 件を返す。Score は 1 - distance/2
	Nearest(ctx context.Context, q VectorQuery) ([]VectorHit, error)
}

// ServiceOption は Service のオプション
type ServiceOption func(*Service)

// WithRetrievalLogger はロガーを設定する
func WithRetrievalLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service はキーワード照合とベクトル検索を組み合わせた検索サービス
type Service struct {
	keyword  *KeywordMatcher
	index    VectorIndex
	embedder Embedder
	logger   *slog.Logger
}

// NewService は新しい Service を作成する
func NewService(keyword *KeywordMatcher, index VectorIndex, embedder Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		keyword:  keyword,
		index:    index,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve は指定された方式で検索を行う
func (s *Service) Retrieve(ctx context.Context, req Request) (*Result, error) {
	if req.TopK <= 0 {
		return nil, fmt.Errorf("top_k must be positive: %d", req.TopK)
	}

	switch req.Strategy {
	case StrategyKeyword:
		hits, err := s.keyword.Match(ctx, req.WorkspaceID, req.Question, req.DocumentID, req.TopK)
		if err != nil {
			return nil, err
		}
		return &Result{Candidates: keywordCandidates(hits, req.Question), StrategyUsed: StrategyKeyword}, nil

	case StrategyVector:
		hits, err := s.vectorPass(ctx, req, req.TopK)
		if err != nil {
			return nil, err
		}
		return &Result{Candidates: vectorCandidates(hits, req.Question), StrategyUsed: StrategyVector}, nil

	case StrategyAuto, StrategyHybrid, "":
		candidates, err := s.hybridWithScope(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Candidates: candidates, StrategyUsed: StrategyHybrid}, nil

	default:
		return nil, fmt.Errorf("unknown retriever: %q", req.Strategy)
	}
}

// Hybrid はキーワード照合とベクトル検索を並行に実行して融合する
// 文書スコープ指定時はワークスペース全体のキーワード照合を行わない
func (s *Service) Hybrid(ctx context.Context, req Request) ([]Candidate, error) {
	expand := ExpandLimit(req.TopK)

	var (
		vector  []VectorHit
		keyword []KeywordHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.vectorPass(gctx, req, expand)
		if err != nil {
			return err
		}
		vector = hits
		return nil
	})
	if req.DocumentID.IsAbsent() {
		g.Go(func() error {
			hits, err := s.keyword.Match(gctx, req.WorkspaceID, req.Question, mo.None[uuid.UUID](), expand)
			if err != nil {
				return err
			}
			keyword = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(vector, keyword, req.Question, req.TopK)
	s.logger.Debug("hybrid retrieval fused",
		"vectorHits", len(vector),
		"keywordHits", len(keyword),
		"candidates", len(fused),
		"documentScoped", req.DocumentID.IsPresent(),
	)
	return fused, nil
}

// hybridWithScope は文書スコープ時にスコープ内キーワード照合を別途実行し、融合結果に合流させる
func (s *Service) hybridWithScope(ctx context.Context, req Request) ([]Candidate, error) {
	if req.DocumentID.IsAbsent() {
		return s.Hybrid(ctx, req)
	}

	var (
		fused  []Candidate
		scoped []KeywordHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.Hybrid(gctx, req)
		if err != nil {
			return err
		}
		fused = c
		return nil
	})
	g.Go(func() error {
		hits, err := s.keyword.Match(gctx, req.WorkspaceID, req.Question, req.DocumentID, ExpandLimit(req.TopK))
		if err != nil {
			return err
		}
		scoped = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeKeyword(fused, scoped, req.Question, req.TopK), nil
}

func (s *Service) vectorPass(ctx context.Context, req Request, limit int) ([]VectorHit, error) {
	embedding, err := s.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	hits, err := s.index.Nearest(ctx, VectorQuery{
		WorkspaceID: req.WorkspaceID,
		Embedding:   embedding,
		DocumentID:  req.DocumentID,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}
	return hits, nil
}

// keywordCandidates はキーワード結果をスコア順のまま候補に変換する
func keywordCandidates(hits []KeywordHit, question string) []Candidate {
	terms := QueryTerms(question)
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		c := Candidate{
			ChunkID:       h.ChunkID,
			DocumentID:    h.DocumentID,
			DocumentTitle: h.DocumentTitle,
			ChunkIndex:    h.ChunkIndex,
			Snippet:       h.Snippet,
			MatchedTerms:  h.MatchedTerms,
			KeywordScore:  float64(h.Score),
			Hint:          HintKeyword,
		}
		score(&c, terms)
		out = append(out, c)
	}
	return out
}

// vectorCandidates はベクトル結果を距離順のまま候補に変換する
func vectorCandidates(hits []VectorHit, question string) []Candidate {
	terms := QueryTerms(question)
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		d := h.Distance
		c := Candidate{
			ChunkID:       h.ChunkID,
			DocumentID:    h.DocumentID,
			DocumentTitle: h.DocumentTitle,
			ChunkIndex:    h.ChunkIndex,
			Snippet:       h.Snippet,
			VectorScore:   h.Score,
			Distance:      &d,
			Hint:          HintVector,
		}
		score(&c, terms)
		out = append(out, c)
	}
	return out
}

// ScoreFromDistance はコサイン距離 [0,2] を [0,1] のスコアに変換する
func ScoreFromDistance(distance float64) float64 {
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
