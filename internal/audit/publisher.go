package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives batches of audit events.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// Publisher buffers audit events and hands them to a Sink from a background worker.
// Emit is safe for concurrent use and never blocks on the sink.
type Publisher struct {
	buffer        *RingBuffer
	sink          Sink
	logger        *slog.Logger
	flushInterval time.Duration
	batchSize     int
	now           func() time.Time
	wake          chan struct{}
	closeOnce     sync.Once

	// flushMu serialises flushes. pending holds a batch the sink rejected; it is written
	// before anything newer so delivery order is preserved.
	flushMu sync.Mutex
	pending []Event
	lost    atomic.Int64
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) { p.buffer = NewRingBuffer(n) }
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		buffer:        NewRingBuffer(1024),
		sink:          sink,
		logger:        slog.New(slog.DiscardHandler),
		flushInterval: time.Second,
		batchSize:     100,
		now:           time.Now,
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps and buffers an event. It returns immediately.
func (p *Publisher) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = event.Type.Category()
	}
	p.buffer.Enqueue(event)
	if p.buffer.Len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush writes everything currently buffered to the sink. A batch the sink rejects is kept
// and retried first on the next flush.
func (p *Publisher) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	for {
		batch := p.pending
		if batch == nil {
			batch = p.buffer.DequeueBatch(p.batchSize)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := p.sink.Write(ctx, batch); err != nil {
			p.pending = batch
			p.logger.WarnContext(ctx, "audit sink write failed",
				"error", err,
				"events", len(batch),
			)
			return err
		}
		p.pending = nil
	}
}

// Pending reports events waiting for delivery, including a batch held after a sink failure.
func (p *Publisher) Pending() int {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	return len(p.pending) + p.buffer.Len()
}

// Dropped reports events lost to buffer overflow or abandoned when shutdown could not
// deliver them.
func (p *Publisher) Dropped() int64 {
	return p.buffer.Dropped() + p.lost.Load()
}

// abandon discards everything undelivered and counts it as dropped.
func (p *Publisher) abandon() int {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	n := len(p.pending)
	p.pending = nil
	for batch := p.buffer.DequeueBatch(p.buffer.Len()); len(batch) > 0; batch = p.buffer.DequeueBatch(p.buffer.Len()) {
		n += len(batch)
	}
	p.lost.Add(int64(n))
	return n
}
