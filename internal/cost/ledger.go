package cost

import (
	"sort"
	"sync"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Ledger is a run-scoped, append-only record of external operations and
// their cost. It is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	entries  []model.CostEntry
	total    float64
	limit    float64
	exceeded bool
	onExceed func(total float64)
}

// NewLedger creates an empty ledger. A limit <= 0 disables the cost cap.
func NewLedger(limitUSD float64) *Ledger {
	return &Ledger{limit: limitUSD}
}

// OnExceed registers fn to be called once, outside the lock, the first
// time the running total passes the limit.
func (l *Ledger) OnExceed(fn func(total float64)) {
	l.mu.Lock()
	l.onExceed = fn
	l.mu.Unlock()
}

// Append records one entry and returns the new running total.
func (l *Ledger) Append(e model.CostEntry) float64 {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.total += e.CostUSD
	total := l.total
	var fire func(float64)
	if l.limit > 0 && total > l.limit && !l.exceeded {
		l.exceeded = true
		fire = l.onExceed
	}
	l.mu.Unlock()

	if fire != nil {
		fire(total)
	}
	return total
}

// Total returns the running total in USD.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Exceeded reports whether the cost limit has been passed.
func (l *Ledger) Exceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exceeded
}

// Entries returns a copy of the ledger ordered by operation, then model,
// then cost. Completion order of concurrent operations does not leak into
// the result.
func (l *Ledger) Entries() []model.CostEntry {
	l.mu.Lock()
	out := make([]model.CostEntry, len(l.entries))
	copy(out, l.entries)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].CostUSD < out[j].CostUSD
	})
	return out
}

// Usage sums token usage across all entries.
func (l *Ledger) Usage() model.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	var u model.TokenUsage
	for _, e := range l.entries {
		u.Add(e.Usage)
	}
	return u
}
