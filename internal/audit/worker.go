package audit

import (
	"context"
	"time"
)

// Run flushes the buffer on every tick or when a full batch is waiting, until ctx ends.
// A final flush runs on shutdown with a short deadline.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case <-ticker.C:
			_ = p.Flush(ctx)
		case <-p.wake:
			_ = p.Flush(ctx)
		}
	}
}

func (p *Publisher) drain() {
	p.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.Flush(ctx); err != nil {
			p.logger.Error("audit drain incomplete, events dropped", "error", err, "dropped", p.abandon())
		}
	})
}
