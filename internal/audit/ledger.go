// Package audit implements the vault's tamper-evident audit ledger.
//
// Every entry is authenticated with HMAC-SHA256 over a canonical pipe-joined
// rendering of its fields, and each entry's hash covers the previous entry's
// hash. Editing, deleting, or reordering any stored entry therefore breaks
// verification at that entry and every entry after it.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	dErrors "passq/pkg/domain-errors"
	"passq/internal/platform/metrics"
)

// Ledger is an append-only hash chain over a Store.
// Appends are serialized so sequence numbers are strictly monotonic and each
// entry links to the true predecessor even under concurrent callers.
type Ledger struct {
	store   Store
	key     []byte
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	seq      uint64
	prevHash string
	loaded   bool

	flagged atomic.Bool
}

// LedgerOption configures the Ledger.
type LedgerOption func(*Ledger)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics enables metric emission.
func WithMetrics(m *metrics.Metrics) LedgerOption {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a ledger over store, authenticated with key.
func NewLedger(store Store, key []byte, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		key:    key,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// canonical renders the authenticated fields in a fixed order. Timestamps
// are UTC RFC3339Nano so the rendering survives storage round trips.
func canonical(e *Entry) string {
	return strings.Join([]string{
		strconv.FormatUint(e.Sequence, 10),
		string(e.EventType),
		e.UserID,
		e.ResourceID,
		e.IPAddress,
		e.UserAgent,
		e.Details,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.PrevHash,
	}, "|")
}

func (l *Ledger) sign(e *Entry) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte(canonical(e)))
	return hex.EncodeToString(mac.Sum(nil))
}

// loadTail positions the chain at the last committed entry.
// Called once, under l.mu.
func (l *Ledger) loadTail(ctx context.Context) error {
	last, err := l.store.Last(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			l.seq = 0
			l.prevHash = ""
			l.loaded = true
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load ledger tail")
	}
	l.seq = last.Sequence
	l.prevHash = last.Hash
	l.loaded = true
	return nil
}

// Append commits a record to the chain and returns the stored entry.
func (l *Ledger) Append(ctx context.Context, record Record) (*Entry, error) {
	if record.EventType == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event type is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		if err := l.loadTail(ctx); err != nil {
			return nil, err
		}
	}

	entry := &Entry{
		Sequence:   l.seq + 1,
		EventType:  record.EventType,
		UserID:     record.UserID,
		ResourceID: record.ResourceID,
		IPAddress:  record.IPAddress,
		UserAgent:  record.UserAgent,
		Details:    record.Details,
		Timestamp:  l.now().UTC(),
		PrevHash:   l.prevHash,
	}
	entry.Hash = l.sign(entry)

	if err := l.store.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
	}

	l.seq = entry.Sequence
	l.prevHash = entry.Hash
	if l.metrics != nil {
		l.metrics.IncrementAuditAppends()
	}
	return entry, nil
}

// VerifyResult reports the outcome of a chain verification pass.
type VerifyResult struct {
	Intact bool
	// FirstMismatch is the sequence of the earliest entry that failed
	// verification. Zero when the chain is intact.
	FirstMismatch uint64
	Checked       int
}

// Verify recomputes hashes for entries with from <= sequence <= to and checks
// both each entry's HMAC and its link to the predecessor. It reports the
// earliest failing sequence and keeps scanning no further, since every hash
// after a break is untrustworthy.
//
// When from > 1 the first entry's PrevHash cannot be cross-checked against a
// predecessor outside the window; its own HMAC still is.
func (l *Ledger) Verify(ctx context.Context, from, to uint64) (*VerifyResult, error) {
	if from == 0 {
		from = 1
	}
	if to < from {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid verification range")
	}

	entries, err := l.store.Range(ctx, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load entries for verification")
	}

	result := &VerifyResult{Intact: true}
	expectedSeq := from
	prevHash := ""
	for i, entry := range entries {
		result.Checked++
		switch {
		case entry.Sequence != expectedSeq:
			// A gap means an entry was deleted.
			result.Intact = false
			result.FirstMismatch = expectedSeq
		case i > 0 && entry.PrevHash != prevHash:
			result.Intact = false
			result.FirstMismatch = entry.Sequence
		case !hmac.Equal([]byte(entry.Hash), []byte(l.sign(entry))):
			result.Intact = false
			result.FirstMismatch = entry.Sequence
		}
		if !result.Intact {
			break
		}
		expectedSeq++
		prevHash = entry.Hash
	}

	if result.Intact && len(entries) == 0 && from <= to {
		// Nothing stored in a non-empty requested range is only a break
		// if the ledger has advanced past it.
		l.mu.Lock()
		tail := l.seq
		l.mu.Unlock()
		if tail >= from {
			result.Intact = false
			result.FirstMismatch = from
		}
	}

	if !result.Intact {
		l.flagged.Store(true)
		if l.metrics != nil {
			l.metrics.IncrementAuditChainBreaks()
		}
		l.logger.Error("audit chain verification failed",
			"first_mismatch", result.FirstMismatch,
			"checked", result.Checked,
		)
	}
	return result, nil
}

// VerifyAll verifies the chain from genesis to the current tail.
func (l *Ledger) VerifyAll(ctx context.Context) (*VerifyResult, error) {
	l.mu.Lock()
	if !l.loaded {
		if err := l.loadTail(ctx); err != nil {
			l.mu.Unlock()
			return nil, err
		}
	}
	tail := l.seq
	l.mu.Unlock()

	if tail == 0 {
		return &VerifyResult{Intact: true}, nil
	}
	return l.Verify(ctx, 1, tail)
}

// Flagged reports whether any verification pass has ever found a break.
// Once set it stays set for the life of the process; operators must
// investigate the store out of band.
func (l *Ledger) Flagged() bool {
	return l.flagged.Load()
}

// ListByUser returns a user's recent audit activity, newest first.
func (l *Ledger) ListByUser(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := l.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal,
			fmt.Sprintf("list audit entries for user %s", userID))
	}
	return entries, nil
}
