package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// MaxKeyLength は正規化後のキーの最大長
const MaxKeyLength = 128

var (
	// ErrConflict は同じキーが異なるリクエストで再利用された場合のエラー
	ErrConflict = errors.New("idempotency key already used for a different request")

	// ErrInProgress は同じキーのリクエストがまだ完了していない場合のエラー
	ErrInProgress = errors.New("request with this idempotency key is still in progress")

	// ErrKeyTaken はキーが既に束縛済みで挿入できなかったことを表す（ストア実装が返す）
	ErrKeyTaken = errors.New("idempotency key already bound")
)

// ConflictError はキー衝突の詳細
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict.Error(), e.Key)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Record はキーとリクエスト指紋の束縛
type Record struct {
	Key            string
	WorkspaceID    uuid.UUID
	Fingerprint    string
	RunID          mo.Option[uuid.UUID]
	StoredResponse []byte
	CreatedAt      time.Time
}

// Store はキーの参照を提供する。キーの作成は対象リソースの作成と同一トランザクションで行う
type Store interface {
	GetRecord(ctx context.Context, key string) (mo.Option[*Record], error)
}

var invalidKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NormalizeKey は前後の空白を除き、許可外の文字の連続を "-" に置き換え、128文字に切り詰める
func NormalizeKey(raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}
	key = invalidKeyChars.ReplaceAllString(key, "-")
	if len(key) > MaxKeyLength {
		key = key[:MaxKeyLength]
	}
	return key
}

// Fingerprint はフィールドを正規化した JSON（キー昇順）の SHA-256 を返す
func Fingerprint(fields map[string]any) (string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fingerprint payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Outcome は既存レコードに対する判定
type Outcome int

const (
	// OutcomeFresh は新規実行
	OutcomeFresh Outcome = iota
	// OutcomeReplay は既存結果の再生
	OutcomeReplay
)

// Decision は Lookup の結果
type Decision struct {
	Outcome Outcome
	Record  *Record
}

// Resolve は既存レコードと指紋を照合する
// 指紋が異なれば ConflictError、同じなら再生を返す
func Resolve(rec *Record, fingerprint string) (Decision, error) {
	if rec == nil {
		return Decision{Outcome: OutcomeFresh}, nil
	}
	if rec.Fingerprint != fingerprint {
		return Decision{}, &ConflictError{Key: rec.Key}
	}
	return Decision{Outcome: OutcomeReplay, Record: rec}, nil
}

// Coordinator はキー単位の高々1回実行を調停する
type Coordinator struct {
	store Store
}

// NewCoordinator は新しい Coordinator を作成する
func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store}
}

// Lookup はキーの既存レコードを取得し、新規実行か再生かを判定する
func (c *Coordinator) Lookup(ctx context.Context, key, fingerprint string) (Decision, error) {
	rec, err := c.store.GetRecord(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	if rec.IsAbsent() {
		return Decision{Outcome: OutcomeFresh}, nil
	}
	return Resolve(rec.MustGet(), fingerprint)
}

// ResolveTaken は束縛の競合に負けた後、勝者のレコードに対して判定し直す
// 勝者の指紋が同じなら再生、異なれば衝突になる
func (c *Coordinator) ResolveTaken(ctx context.Context, key, fingerprint string) (Decision, error) {
	d, err := c.Lookup(ctx, key, fingerprint)
	if err != nil {
		return Decision{}, err
	}
	if d.Outcome == OutcomeFresh {
		// 勝者のトランザクションがロールバックされた
		return Decision{}, ErrInProgress
	}
	return d, nil
}
