package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/tablevox/tablevox/pkg/core/providers/gemini"
	"github.com/tablevox/tablevox/pkg/gateway/metrics"
	"github.com/tablevox/tablevox/pkg/gateway/tools"
)

const (
	maxRememberedCallIDs = 256
	maxCanceledCallIDs   = 64
)

// dispatcher runs the session's tool calls on a single worker goroutine, in
// arrival order, and enforces the one-response-per-call-ID contract: a
// duplicate ID is absorbed, a canceled ID produces no response at all.
type dispatcher struct {
	registry *tools.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	jobs    chan gemini.FunctionCall
	results chan tools.Outcome

	mu            sync.Mutex
	seen          map[string]struct{}
	seenOrder     []string
	canceled      map[string]struct{}
	canceledOrder []string
}

func newDispatcher(registry *tools.Registry, logger *slog.Logger, m *metrics.Metrics, queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatcher{
		registry: registry,
		logger:   logger,
		metrics:  m,
		jobs:     make(chan gemini.FunctionCall, queueSize),
		results:  make(chan tools.Outcome, 8),
		seen:     make(map[string]struct{}),
		canceled: make(map[string]struct{}),
	}
}

// Run is the worker loop. It owns the tool registry; nothing else may touch
// the registry while Run is live.
func (d *dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case call := <-d.jobs:
			if d.isCanceled(call.ID) {
				d.logger.Debug("skipping canceled tool call", "id", call.ID, "tool", call.Name)
				d.metrics.RecordToolCall(call.Name, "canceled")
				continue
			}
			out := d.registry.Dispatch(ctx, call)
			status := "ok"
			if out.IsError {
				status = "error"
			}
			d.metrics.RecordToolCall(call.Name, status)
			if d.isCanceled(call.ID) {
				continue
			}
			select {
			case d.results <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *dispatcher) Results() <-chan tools.Outcome {
	return d.results
}

// Enqueue admits one call. A repeat of an already-admitted ID is absorbed so
// the model never receives two responses for one call. false means the queue
// is full and the caller must answer the model itself.
func (d *dispatcher) Enqueue(call gemini.FunctionCall) bool {
	id := strings.TrimSpace(call.ID)
	if id != "" {
		d.mu.Lock()
		if _, dup := d.seen[id]; dup {
			d.mu.Unlock()
			d.logger.Debug("duplicate tool call absorbed", "id", id, "tool", call.Name)
			return true
		}
		d.remember(id)
		d.mu.Unlock()
	}

	select {
	case d.jobs <- call:
		return true
	default:
		if id != "" {
			d.mu.Lock()
			d.forget(id)
			d.mu.Unlock()
		}
		return false
	}
}

// CancelIDs marks calls the model no longer wants answered. Queued jobs are
// skipped; a job already running has its result discarded.
func (d *dispatcher) CancelIDs(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, exists := d.canceled[id]; exists {
			continue
		}
		d.canceled[id] = struct{}{}
		d.canceledOrder = append(d.canceledOrder, id)
		for len(d.canceledOrder) > maxCanceledCallIDs {
			evict := d.canceledOrder[0]
			d.canceledOrder = d.canceledOrder[1:]
			delete(d.canceled, evict)
		}
	}
}

func (d *dispatcher) isCanceled(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.canceled[id]
	return exists
}

// remember and forget assume d.mu is held.
func (d *dispatcher) remember(id string) {
	d.seen[id] = struct{}{}
	d.seenOrder = append(d.seenOrder, id)
	for len(d.seenOrder) > maxRememberedCallIDs {
		evict := d.seenOrder[0]
		d.seenOrder = d.seenOrder[1:]
		delete(d.seen, evict)
	}
}

func (d *dispatcher) forget(id string) {
	delete(d.seen, id)
	for i, v := range d.seenOrder {
		if v == id {
			d.seenOrder = append(d.seenOrder[:i], d.seenOrder[i+1:]...)
			break
		}
	}
}
