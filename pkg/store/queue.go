package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/gateway/metrics"
)

// OrderBackend is the slice of the store the queue needs.
type OrderBackend interface {
	SaveOrder(ctx context.Context, order *ordering.Order) error
	RecentOrders(ctx context.Context, phone string, limit int) ([]ordering.OrderSummary, error)
}

// QueueConfig tunes the write-behind queue. Zero values get defaults.
type QueueConfig struct {
	// Size is the job buffer; a full buffer drops new orders.
	Size int

	// WriteTimeout bounds one SaveOrder attempt.
	WriteTimeout time.Duration
}

// Queue decouples order persistence from the conversation. EnqueueOrder
// never blocks: a full buffer drops the order with a log line and a metric,
// and the session carries on. Reads pass straight through to the backend.
type Queue struct {
	backend OrderBackend
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     QueueConfig

	mu     sync.RWMutex
	closed bool
	jobs   chan *ordering.Order
	done   chan struct{}
}

// NewQueue starts the background worker immediately. Call Close to drain.
func NewQueue(backend OrderBackend, logger *slog.Logger, m *metrics.Metrics, cfg QueueConfig) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	q := &Queue{
		backend: backend,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
		jobs:    make(chan *ordering.Order, cfg.Size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// EnqueueOrder hands an order to the worker. False means the order was
// dropped: the buffer is full or the queue is closed.
func (q *Queue) EnqueueOrder(order *ordering.Order) bool {
	if q == nil || order == nil {
		return false
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.jobs <- order:
		q.metrics.SetPersistQueueDepth(len(q.jobs))
		return true
	default:
		q.logger.Warn("persist queue full, dropping order", "order_id", order.ID)
		q.metrics.RecordPersistJob("dropped")
		return false
	}
}

// RecentOrders reads synchronously from the backend.
func (q *Queue) RecentOrders(ctx context.Context, phone string, limit int) ([]ordering.OrderSummary, error) {
	return q.backend.RecentOrders(ctx, phone, limit)
}

// Depth reports the number of queued jobs.
func (q *Queue) Depth() int {
	if q == nil {
		return 0
	}
	return len(q.jobs)
}

// Close stops intake and waits for the worker to finish the remaining jobs
// or for ctx to expire.
func (q *Queue) Close(ctx context.Context) error {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
	} else {
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for order := range q.jobs {
		q.metrics.SetPersistQueueDepth(len(q.jobs))
		q.persist(order)
	}
	q.metrics.SetPersistQueueDepth(0)
}

// persist runs one save. Failures are logged and counted, never surfaced;
// a lost write must not reach the conversation.
func (q *Queue) persist(order *ordering.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.WriteTimeout)
	defer cancel()

	if err := q.backend.SaveOrder(ctx, order); err != nil {
		q.logger.Warn("order persist failed", "order_id", order.ID, "error", err)
		q.metrics.RecordPersistJob("error")
		return
	}
	q.metrics.RecordPersistJob("ok")
}
