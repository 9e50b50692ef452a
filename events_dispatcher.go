package authemu

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// eventQueue hands events to an EventSink on a single goroutine, so the
// sink sees them in the order the engine produced them. Events that
// cannot be queued are counted per operation and in MetricEventDropped.
type eventQueue struct {
	sink       EventSink
	metrics    *Metrics
	logger     *zap.Logger
	dropIfFull bool

	pending chan Event
	quit    chan struct{}
	stopped chan struct{}
	stop    sync.Once

	dropMu sync.Mutex
	drops  map[OperationID]uint64
}

// newEventQueue starts the delivery goroutine. It returns nil when events
// are disabled or there is no sink; a nil queue accepts and ignores events.
func newEventQueue(cfg EventsConfig, sink EventSink, metrics *Metrics, logger *zap.Logger) *eventQueue {
	if !cfg.Enabled || sink == nil {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &eventQueue{
		sink:       sink,
		metrics:    metrics,
		logger:     logger,
		dropIfFull: cfg.DropIfFull,
		pending:    make(chan Event, size),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		drops:      make(map[OperationID]uint64),
	}
	go q.deliverLoop()
	return q
}

func (q *eventQueue) deliverLoop() {
	defer close(q.stopped)
	for {
		select {
		case ev := <-q.pending:
			q.deliver(ev)
		case <-q.quit:
			q.flush()
			return
		}
	}
}

// flush delivers whatever is still buffered after shutdown began.
func (q *eventQueue) flush() {
	for {
		select {
		case ev := <-q.pending:
			q.deliver(ev)
		default:
			return
		}
	}
}

// deliver isolates the engine from a misbehaving sink.
func (q *eventQueue) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("event sink panicked",
				zap.String("operation", string(ev.Operation)),
				zap.String("namespace", ev.Namespace()),
				zap.Any("panic", r),
			)
		}
	}()
	q.sink.Emit(context.Background(), ev)
}

// publish queues ev. With dropIfFull a full buffer drops the event at once;
// otherwise publish waits for room and drops only when ctx ends first.
func (q *eventQueue) publish(ctx context.Context, ev Event) {
	if q == nil {
		return
	}
	select {
	case <-q.quit:
		return
	default:
	}

	if q.dropIfFull {
		select {
		case q.pending <- ev:
		default:
			q.drop(ev.Operation)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case q.pending <- ev:
	case <-ctx.Done():
		q.drop(ev.Operation)
	case <-q.quit:
	}
}

func (q *eventQueue) drop(op OperationID) {
	q.dropMu.Lock()
	q.drops[op]++
	q.dropMu.Unlock()
	q.metrics.Inc(MetricEventDropped)
}

// close stops accepting events, flushes the buffer to the sink and waits
// for the delivery goroutine. It is safe to call more than once.
func (q *eventQueue) close() {
	if q == nil {
		return
	}
	q.stop.Do(func() { close(q.quit) })
	<-q.stopped
}

// dropped returns a copy of the per-operation drop counts.
func (q *eventQueue) dropped() map[OperationID]uint64 {
	out := make(map[OperationID]uint64)
	if q == nil {
		return out
	}
	q.dropMu.Lock()
	defer q.dropMu.Unlock()
	for op, n := range q.drops {
		out[op] = n
	}
	return out
}
