package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hosa-study-board/internal/docstore"

	"github.com/rs/zerolog/log"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

const queueSize = 1000

// inlinePublishTimeout bounds a publish the pool could not take.
const inlinePublishTimeout = 2 * time.Second

type WorkerPool struct {
	taskQueue chan Task
	wg        sync.WaitGroup

	mu        sync.RWMutex // guards isClosing against sends on a closed queue
	isClosing bool
}

func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	wp := &WorkerPool{
		taskQueue: make(chan Task, queueSize),
	}

	for range size {
		wp.wg.Add(1)
		go wp.startWorker()
	}

	return wp
}

func (wp *WorkerPool) startWorker() {
	defer wp.wg.Done()
	for task := range wp.taskQueue {
		if err := task(context.Background()); err != nil {
			log.Error().Err(err).Msg("worker task failed")
		}
	}
}

// Submit queues t. It reports false when the pool is shutting down or the
// queue is full; the task is dropped in both cases.
func (wp *WorkerPool) Submit(t Task) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.isClosing {
		log.Warn().Msg("task submitted during shutdown, dropping")
		return false
	}
	select {
	case wp.taskQueue <- t:
		return true
	default:
		log.Warn().Msg("task queue full, dropping task")
		return false
	}
}

// Shutdown closes the queue and waits for workers to finish
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.isClosing {
		wp.mu.Unlock()
		return
	}
	wp.isClosing = true
	close(wp.taskQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
}

// Publisher hands change notifications to the pool so store writes return
// without waiting on the broker. Deliveries may be reordered; subscribers
// order them by Seq. A change the pool cannot queue is published inline.
func (wp *WorkerPool) Publisher(next docstore.Publisher) docstore.Publisher {
	return asyncPublisher{pool: wp, next: next}
}

type asyncPublisher struct {
	pool *WorkerPool
	next docstore.Publisher
}

func (p asyncPublisher) Publish(ctx context.Context, change docstore.Change) error {
	queued := p.pool.Submit(func(ctx context.Context) error {
		return p.next.Publish(ctx, change)
	})
	if queued {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), inlinePublishTimeout)
	defer cancel()
	if err := p.next.Publish(ctx, change); err != nil {
		return fmt.Errorf("publishing %s seq %d inline: %w", change.Collection, change.Seq, err)
	}
	return nil
}
