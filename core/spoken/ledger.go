// Package spoken tracks which responses have already been read aloud, so a
// response replayed from history is not auto-spoken a second time.
package spoken

import (
	"context"
	"sync"
	"time"
)

const defaultRetention = 24 * time.Hour

// Record marks a single response as spoken.
type Record struct {
	ResponseID    string `json:"responseId"`
	SpokenAtEpoch int64  `json:"spokenAtEpochMs"`
}

// Store persists ledger records between sessions.
type Store interface {
	Load() ([]Record, error)
	Save(records []Record) error
}

// Ledger is an in-memory set of spoken response ids backed by a Store.
// Records older than the retention window are dropped on load and by a
// periodic sweep.
type Ledger struct {
	mu      sync.Mutex
	records map[string]int64

	store     Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time

	sweepCancel context.CancelFunc
}

type LedgerOption func(*Ledger)

// WithRetention overrides how long a spoken mark is remembered.
func WithRetention(retention time.Duration) LedgerOption {
	return func(l *Ledger) {
		if retention <= 0 {
			return
		}
		l.retention = retention
	}
}

// WithSweepInterval overrides how often expired records are pruned.
func WithSweepInterval(interval time.Duration) LedgerOption {
	return func(l *Ledger) {
		if interval <= 0 {
			return
		}
		l.interval = interval
	}
}

func withClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger loads persisted records from store, pruning any that are already
// expired. A nil store keeps the ledger purely in-memory.
func NewLedger(store Store, opts ...LedgerOption) (*Ledger, error) {
	ledger := &Ledger{
		records:   map[string]int64{},
		store:     store,
		retention: defaultRetention,
		interval:  time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ledger)
	}

	if store != nil {
		records, err := store.Load()
		if err != nil {
			return nil, err
		}

		cutoff := ledger.now().Add(-ledger.retention).UnixMilli()
		for _, record := range records {
			if record.SpokenAtEpoch <= cutoff {
				continue
			}
			ledger.records[record.ResponseID] = record.SpokenAtEpoch
		}

		if len(ledger.records) != len(records) {
			if err := ledger.persistLocked(); err != nil {
				logger.Warn("Failed to persist pruned spoken ledger", "error", err)
			}
		}
	}

	return ledger, nil
}

// StartSweeping prunes expired records on a fixed interval until ctx is
// cancelled or Close is called.
func (l *Ledger) StartSweeping(ctx context.Context) {
	if l == nil {
		return
	}

	l.mu.Lock()
	if l.sweepCancel != nil {
		l.mu.Unlock()
		return
	}
	ctx, l.sweepCancel = context.WithCancel(ctx)
	l.mu.Unlock()

	go func() {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// HasSpoken reports whether responseID was marked spoken within the retention
// window.
func (l *Ledger) HasSpoken(responseID string) bool {
	if l == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	spokenAt, ok := l.records[responseID]
	if !ok {
		return false
	}

	if spokenAt <= l.now().Add(-l.retention).UnixMilli() {
		delete(l.records, responseID)
		return false
	}

	return true
}

// MarkSpoken records responseID as spoken now. Marking an already-spoken
// response is a no-op; the original timestamp stands, so re-marking never
// extends retention.
func (l *Ledger) MarkSpoken(responseID string) error {
	if l == nil || responseID == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, alreadyMarked := l.records[responseID]; alreadyMarked {
		return nil
	}

	l.records[responseID] = l.now().UnixMilli()
	return l.persistLocked()
}

// Sweep removes expired records and persists the result if anything changed.
func (l *Ledger) Sweep() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.retention).UnixMilli()
	removed := false
	for responseID, spokenAt := range l.records {
		if spokenAt <= cutoff {
			delete(l.records, responseID)
			removed = true
		}
	}

	if removed {
		if err := l.persistLocked(); err != nil {
			logger.Warn("Failed to persist swept spoken ledger", "error", err)
		}
	}
}

// Close stops the sweep goroutine. The ledger remains usable afterwards.
func (l *Ledger) Close() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sweepCancel != nil {
		l.sweepCancel()
		l.sweepCancel = nil
	}
}

func (l *Ledger) persistLocked() error {
	if l.store == nil {
		return nil
	}

	records := make([]Record, 0, len(l.records))
	for responseID, spokenAt := range l.records {
		records = append(records, Record{ResponseID: responseID, SpokenAtEpoch: spokenAt})
	}

	return l.store.Save(records)
}
