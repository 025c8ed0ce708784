package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/kb-copilot/internal/infra/postgres/sqlc"
)

// TransactionProvider はトランザクション境界をコールバックで提供する
// リポジトリは pgx.Tx を直接扱わず Adapter 経由でクエリを発行する
type TransactionProvider struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// TxOption は TransactionProvider のオプション
type TxOption func(*TransactionProvider)

// WithIsolation は分離レベルを指定する（既定は READ COMMITTED）
func WithIsolation(level pgx.TxIsoLevel) TxOption {
	return func(p *TransactionProvider) {
		p.opts.IsoLevel = level
	}
}

// NewTransactionProvider は TransactionProvider を作成する
func NewTransactionProvider(pool *pgxpool.Pool, opts ...TxOption) *TransactionProvider {
	p := &TransactionProvider{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Adapter は1つのトランザクションに束縛されたクエリとロック
type Adapter struct {
	Queries *sqlc.Queries
	Locks   *Manager
}

// Transact は fn をトランザクション内で実行し、エラーがなければコミットする
func Transact[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (result T, err error) {
	var zero T

	tx, err := p.pool.BeginTx(ctx, p.opts)
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		// コミット済みなら ErrTxClosed が返るだけ
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
		}
	}()

	result, err = fn(&Adapter{Queries: sqlc.New(tx), Locks: newManager(tx)})
	if err != nil {
		return zero, err
	}
	if err = tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// Exec は戻り値のないトランザクションを実行する
func Exec(ctx context.Context, p *TransactionProvider, fn func(*Adapter) error) error {
	_, err := Transact(ctx, p, func(a *Adapter) (struct{}, error) {
		return struct{}{}, fn(a)
	})
	return err
}
