package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

const (
	defaultWorkers      = 4
	defaultQueueSize    = 256
	defaultPollInterval = 30 * time.Second
	defaultPollBatch    = 100
)

// Worker は処理待ちの文書をキューから取り出し、固定サイズのプールで処理する
// 失敗した文書は指数バックオフで再試行し、上限に達したら failed のまま残す
type Worker struct {
	processor    *Processor
	repo         Repository
	pool         *ants.Pool
	queue        chan uuid.UUID
	pollInterval time.Duration
	newBackOff   func() backoff.BackOff
	logger       *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	wg       sync.WaitGroup
}

type workerOptions struct {
	workers      int
	queueSize    int
	pollInterval time.Duration
	newBackOff   func() backoff.BackOff
	logger       *slog.Logger
}

// WorkerOption は Worker のオプション設定
type WorkerOption func(*workerOptions)

// WithWorkers は同時に処理する文書数を設定する
func WithWorkers(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize はキューの容量を設定する
func WithQueueSize(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithPollInterval は処理待ち文書を再走査する間隔を設定する
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithBackOff は再試行間隔の生成関数を設定する
func WithBackOff(fn func() backoff.BackOff) WorkerOption {
	return func(o *workerOptions) {
		o.newBackOff = fn
	}
}

// WithWorkerLogger はロガーを設定する
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		o.logger = logger
	}
}

// NewWorker は新しい Worker を作成する。使い終わったら Release を呼ぶ
func NewWorker(processor *Processor, repo Repository, opts ...WorkerOption) (*Worker, error) {
	options := workerOptions{
		workers:      defaultWorkers,
		queueSize:    defaultQueueSize,
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.newBackOff == nil {
		options.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		}
	}

	pool, err := ants.NewPool(options.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Worker{
		processor:    processor,
		repo:         repo,
		pool:         pool,
		queue:        make(chan uuid.UUID, options.queueSize),
		pollInterval: options.pollInterval,
		newBackOff:   options.newBackOff,
		logger:       options.logger,
		inflight:     make(map[uuid.UUID]struct{}),
	}, nil
}

// Enqueue は文書をキューに積む。満杯なら false を返す（ポーラーが後で拾う）
func (w *Worker) Enqueue(documentID uuid.UUID) bool {
	select {
	case w.queue <- documentID:
		return true
	default:
		return false
	}
}

// Run はコンテキストが終了するまでキューを処理する
// 起動時と一定間隔で処理待ち文書を走査してキューに積む
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("ingestion worker started", "workers", w.pool.Cap(), "pollInterval", w.pollInterval)

	w.poll(ctx)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.logger.Info("ingestion worker stopped")
			return nil
		case <-ticker.C:
			w.poll(ctx)
		case id := <-w.queue:
			if err := w.dispatch(ctx, id); err != nil {
				w.logger.Error("failed to dispatch document", "documentID", id, "error", err)
			}
		}
	}
}

// Release はプールを解放する
func (w *Worker) Release() {
	w.pool.Release()
}

func (w *Worker) poll(ctx context.Context) {
	ids, err := w.repo.ListPendingDocuments(ctx, w.processor.MaxAttempts(), defaultPollBatch)
	if err != nil {
		w.logger.Error("failed to list pending documents", "error", err)
		return
	}
	for _, id := range ids {
		if !w.Enqueue(id) {
			w.logger.Warn("ingestion queue is full", "pending", len(ids))
			return
		}
	}
	if len(ids) > 0 {
		w.logger.Debug("pending documents enqueued", "count", len(ids))
	}
}

// dispatch は同じ文書を同時に2回処理しないようにしてプールに投入する
func (w *Worker) dispatch(ctx context.Context, id uuid.UUID) error {
	w.mu.Lock()
	if _, busy := w.inflight[id]; busy {
		w.mu.Unlock()
		return nil
	}
	w.inflight[id] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	err := w.pool.Submit(func() {
		defer w.wg.Done()
		defer w.done(id)
		w.processWithRetry(ctx, id)
	})
	if err != nil {
		w.wg.Done()
		w.done(id)
		return err
	}
	return nil
}

func (w *Worker) done(id uuid.UUID) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}

func (w *Worker) processWithRetry(ctx context.Context, id uuid.UUID) {
	retries := uint64(max(w.processor.MaxAttempts()-1, 0))
	policy := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), retries), ctx)

	err := backoff.RetryNotify(func() error {
		err := w.processor.Process(ctx, id)
		if errors.Is(err, ErrNotClaimable) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		w.logger.Warn("retrying document", "documentID", id, "in", next, "error", err)
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrNotClaimable):
		w.logger.Debug("document skipped", "documentID", id, "reason", err)
	default:
		w.logger.Error("document processing gave up", "documentID", id, "error", err)
	}
}
