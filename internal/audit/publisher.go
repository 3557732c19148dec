package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher feeds records into the ledger, optionally through an async
// buffer so hot paths never block on storage. The ledger itself serializes
// appends, so buffered records still commit in a single total order.
type Publisher struct {
	ledger  *Ledger
	records chan Record
	wg      sync.WaitGroup
	logger  *slog.Logger
	async   bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Records are queued and committed in a background goroutine; when the
// buffer is full new records are dropped. Suitable for advisory traffic
// only. Security-relevant changes go through the synchronous publisher,
// where the entry commits before the operation returns.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.records = make(chan Record, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(ledger *Ledger, opts ...PublisherOption) *Publisher {
	p := &Publisher{ledger: ledger}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processRecords()
	}
	return p
}

// processRecords runs in a goroutine and commits records from the channel.
func (p *Publisher) processRecords() {
	defer p.wg.Done()
	for record := range p.records {
		if _, err := p.ledger.Append(context.Background(), record); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to commit audit record",
					"error", err,
					"event_type", record.EventType,
					"user_id", record.UserID,
				)
			}
		}
	}
}

// Close shuts down the async publisher and waits for pending records to drain.
func (p *Publisher) Close() {
	if p.async && p.records != nil {
		close(p.records)
		p.wg.Wait()
	}
}

// Emit records an audit event. In async mode the record is queued; if the
// buffer is full the record is dropped with a warning rather than blocking
// the hot path.
func (p *Publisher) Emit(ctx context.Context, record Record) error {
	if p.async {
		select {
		case p.records <- record:
			return nil
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, record dropped",
					"event_type", record.EventType,
					"user_id", record.UserID,
				)
			}
			return nil
		}
	}
	_, err := p.ledger.Append(ctx, record)
	return err
}
