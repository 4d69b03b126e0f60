package scheduler

import (
	"slices"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

// Ledger remembers every fingerprint admitted to the queue so repeated
// expansion of the same day never re-queues a reminder. It is not safe for
// concurrent use; the owning Scheduler serializes access.
type Ledger struct {
	entries map[model.Fingerprint]time.Time
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[model.Fingerprint]time.Time)}
}

func (l *Ledger) ShouldAdmit(fp model.Fingerprint) bool {
	_, seen := l.entries[fp]
	return !seen
}

// Record stores fp with now as its first-seen time. An existing entry keeps
// its original timestamp.
func (l *Ledger) Record(fp model.Fingerprint, now time.Time) {
	if _, ok := l.entries[fp]; ok {
		return
	}
	l.entries[fp] = now
}

func (l *Ledger) Retract(fp model.Fingerprint) bool {
	if _, ok := l.entries[fp]; !ok {
		return false
	}
	delete(l.entries, fp)
	return true
}

// PurgeOlderThan drops entries recorded more than ttl before now and returns
// how many were removed.
func (l *Ledger) PurgeOlderThan(now time.Time, ttl time.Duration) int {
	removed := 0
	for fp, at := range l.entries {
		if now.Sub(at) > ttl {
			delete(l.entries, fp)
			removed++
		}
	}
	return removed
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns the ledger ordered by record time, then fingerprint.
func (l *Ledger) Entries() []model.LedgerEntry {
	out := make([]model.LedgerEntry, 0, len(l.entries))
	for fp, at := range l.entries {
		out = append(out, model.LedgerEntry{Fingerprint: fp, RecordedAt: at})
	}
	slices.SortFunc(out, func(a, b model.LedgerEntry) int {
		if c := a.RecordedAt.Compare(b.RecordedAt); c != 0 {
			return c
		}
		switch {
		case a.Fingerprint < b.Fingerprint:
			return -1
		case a.Fingerprint > b.Fingerprint:
			return 1
		}
		return 0
	})
	return out
}
