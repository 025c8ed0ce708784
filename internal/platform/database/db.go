package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultMaxConns はプールの最大接続数
	DefaultMaxConns = 10

	// DefaultMaxConnIdleTime はアイドル接続を閉じるまでの時間
	DefaultMaxConnIdleTime = 5 * time.Minute
)

// DB は接続プールを保持する
type DB struct {
	Pool *pgxpool.Pool
}

// ConnectionParams は接続パラメータ
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// MaxConns が 0 以下なら DefaultMaxConns
	MaxConns int
}

// ConnString は postgres:// 形式の接続文字列を返す
// パスワードに空白や記号を含んでもエスケープされる
func (p ConnectionParams) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.DBName,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{p.SSLMode}}.Encode()
	}
	return u.String()
}

// New は接続パラメータからプールを作成する
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(params.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection params: %w", err)
	}
	cfg.MaxConns = DefaultMaxConns
	if params.MaxConns > 0 {
		cfg.MaxConns = int32(params.MaxConns)
	}
	return open(ctx, cfg)
}

// Open は接続文字列からプールを作成する
func Open(ctx context.Context, connString string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	return open(ctx, cfg)
}

func open(ctx context.Context, cfg *pgxpool.Config) (*DB, error) {
	cfg.MaxConnIdleTime = DefaultMaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Debug("database connected",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns,
	)
	return &DB{Pool: pool}, nil
}

// Close はプールを閉じる
func (db *DB) Close() {
	db.Pool.Close()
}
