package database

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ロックキーの名前空間
const (
	lockSpaceDocument  = "kb:document"
	lockSpaceMigration = "kb:migration"
)

// Manager はトランザクション内でアドバイザリロックを取得する
// ロックはコミットまたはロールバックで解放される
type Manager struct {
	tx pgx.Tx
}

func newManager(tx pgx.Tx) *Manager {
	return &Manager{tx: tx}
}

// GenerateLockID は名前空間とキーから 64bit のロックIDを導出する
// 各要素は NUL で区切るため ("ab","c") と ("a","bc") は別のIDになる
func GenerateLockID(parts ...string) int64 {
	h := fnv.New64a()
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(part))
	}
	return int64(h.Sum64())
}

// DocumentLockID は文書単位のロックIDを返す
func DocumentLockID(documentID uuid.UUID) int64 {
	return GenerateLockID(lockSpaceDocument, documentID.String())
}

// LockDocument は文書のチャンク置換を直列化する
func (m *Manager) LockDocument(ctx context.Context, documentID uuid.UUID) error {
	if err := acquire(ctx, m.tx, DocumentLockID(documentID)); err != nil {
		return fmt.Errorf("document %s: %w", documentID, err)
	}
	return nil
}

func acquire(ctx context.Context, tx pgx.Tx, lockID int64) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}
