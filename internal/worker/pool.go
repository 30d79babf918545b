// Package worker runs jobs on a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"docgate/internal/metrics"
)

var ErrPoolStopped = errors.New("worker pool stopped")

// Job is one unit of work. ctx is cancelled when the pool stops.
type Job func(ctx context.Context)

type WorkerPool struct {
	name    string
	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	workers int
	logger  *zap.Logger
}

// NewWorkerPool starts workerCount goroutines. Submit hands a job directly to
// an idle worker, so at most workerCount jobs are in flight.
func NewWorkerPool(name string, workerCount int, logger *zap.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	wp := &WorkerPool{
		name:    name,
		jobs:    make(chan Job),
		ctx:     ctx,
		cancel:  cancel,
		workers: workerCount,
		logger:  logger,
	}
	for i := 0; i < workerCount; i++ {
		wp.wg.Add(1)
		go wp.run()
	}
	logger.Info("worker pool started", zap.String("pool", name), zap.Int("workers", workerCount))
	return wp
}

func (wp *WorkerPool) Size() int {
	return wp.workers
}

func (wp *WorkerPool) run() {
	defer wp.wg.Done()
	for {
		select {
		case <-wp.ctx.Done():
			return
		case job := <-wp.jobs:
			wp.exec(job)
		}
	}
}

func (wp *WorkerPool) exec(job Job) {
	active := metrics.WorkerActive.WithLabelValues(wp.name)
	active.Inc()
	defer active.Dec()
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("worker job panicked", zap.String("pool", wp.name), zap.Any("panic", r))
		}
	}()
	job(wp.ctx)
}

// Submit blocks until a worker accepts job, ctx ends or the pool stops.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	if wp.ctx.Err() != nil {
		return ErrPoolStopped
	}
	select {
	case wp.jobs <- job:
		return nil
	case <-wp.ctx.Done():
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new jobs and waits for running ones to return.
func (wp *WorkerPool) Stop() {
	wp.once.Do(func() {
		wp.cancel()
		wp.wg.Wait()
		wp.logger.Info("worker pool stopped", zap.String("pool", wp.name))
	})
}
