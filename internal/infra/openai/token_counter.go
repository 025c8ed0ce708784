package openai

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/kb-copilot/internal/core/answer"
)

// fallbackEncoding はモデル名からエンコーディングを引けない場合に使う
const fallbackEncoding = "cl100k_base"

// TokenCounter はチャットモデルのエンコーディングでプロンプトのトークン数を数える
// エンコーディングは初回の Count で読み込み、読み込めなければ概算に切り替える
type TokenCounter struct {
	model  string
	logger *slog.Logger

	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter は model 用の TokenCounter を作成する
func NewTokenCounter(model string, logger *slog.Logger) *TokenCounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenCounter{model: model, logger: logger}
}

func (tc *TokenCounter) load() {
	enc, err := tiktoken.EncodingForModel(tc.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		tc.logger.Warn("tiktoken encoding unavailable, estimating tokens", "model", tc.model, "error", err)
		return
	}
	tc.encoding = enc
}

// Count はテキストのトークン数を返す
func (tc *TokenCounter) Count(text string) int {
	if tc == nil {
		return EstimateTokens(text)
	}
	tc.once.Do(tc.load)
	if tc.encoding == nil {
		return EstimateTokens(text)
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// EstimateTokens はエンコーディングが使えない場合の概算（3文字で1トークン）
func EstimateTokens(text string) int {
	return (len([]rune(text)) + 2) / 3
}

// インターフェース実装の確認
var _ answer.TokenCounter = (*TokenCounter)(nil)
