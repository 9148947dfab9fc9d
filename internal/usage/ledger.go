// Package usage maintains rolling usage aggregates (daily, monthly,
// all-time) independent of any single session's lifetime.
package usage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultRetentionDays is how long daily buckets are kept.
	DefaultRetentionDays = 90

	dayKeyFormat   = "2006-01-02"
	monthKeyFormat = "2006-01"
)

// Aggregate is one usage bucket.
type Aggregate struct {
	CostUSD      float64 `json:"costUsd"`
	TokensInput  int     `json:"tokensInput"`
	TokensOutput int     `json:"tokensOutput"`
	SessionCount int     `json:"sessionCount"`
	RequestCount int     `json:"requestCount"`
}

// Snapshot is the whole ledger state, shaped for load-whole/save-whole
// persistence.
type Snapshot struct {
	Daily   map[string]Aggregate `json:"daily"`
	Monthly map[string]Aggregate `json:"monthly"`
	AllTime Aggregate            `json:"allTime"`
}

// Store is the persistence contract the ledger relies on. There is no
// partial-update API: the ledger loads and saves the whole snapshot.
type Store interface {
	LoadUsage() (*Snapshot, error)
	SaveUsage(*Snapshot) error
}

// Ledger accumulates usage across sessions. Every successful assistant
// reply lands in exactly one daily bucket, one monthly bucket, and the
// all-time bucket; the three increments are applied under one lock so
// no partial update is ever observable.
type Ledger struct {
	daily         map[string]Aggregate
	monthly       map[string]Aggregate
	allTime       Aggregate
	retentionDays int
	store         Store
	mu            sync.Mutex
}

// NewLedger creates an empty ledger. store may be nil for in-memory use.
func NewLedger(store Store, retentionDays int) *Ledger {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Ledger{
		daily:         make(map[string]Aggregate),
		monthly:       make(map[string]Aggregate),
		retentionDays: retentionDays,
		store:         store,
	}
}

// Load replaces the in-memory state with the persisted snapshot, if any.
func (l *Ledger) Load() error {
	if l.store == nil {
		return nil
	}

	snap, err := l.store.LoadUsage()
	if err != nil {
		return fmt.Errorf("failed to load usage snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.daily = snap.Daily
	if l.daily == nil {
		l.daily = make(map[string]Aggregate)
	}
	l.monthly = snap.Monthly
	if l.monthly == nil {
		l.monthly = make(map[string]Aggregate)
	}
	l.allTime = snap.AllTime
	return nil
}

// RecordRequest accounts one successful assistant reply at the given
// time. Old daily buckets are pruned on every write.
func (l *Ledger) RecordRequest(now time.Time, inputTokens, outputTokens int, costUSD float64) error {
	l.mu.Lock()

	dayKey := now.Format(dayKeyFormat)
	monthKey := now.Format(monthKeyFormat)

	day := l.daily[dayKey]
	day.TokensInput += inputTokens
	day.TokensOutput += outputTokens
	day.CostUSD += costUSD
	day.RequestCount++
	l.daily[dayKey] = day

	month := l.monthly[monthKey]
	month.TokensInput += inputTokens
	month.TokensOutput += outputTokens
	month.CostUSD += costUSD
	month.RequestCount++
	l.monthly[monthKey] = month

	l.allTime.TokensInput += inputTokens
	l.allTime.TokensOutput += outputTokens
	l.allTime.CostUSD += costUSD
	l.allTime.RequestCount++

	l.pruneLocked(now)
	snap := l.snapshotLocked()
	l.mu.Unlock()

	return l.persist(snap)
}

// RecordSession accounts a new session at the moment it is created.
func (l *Ledger) RecordSession(now time.Time) error {
	l.mu.Lock()

	dayKey := now.Format(dayKeyFormat)
	monthKey := now.Format(monthKeyFormat)

	day := l.daily[dayKey]
	day.SessionCount++
	l.daily[dayKey] = day

	month := l.monthly[monthKey]
	month.SessionCount++
	l.monthly[monthKey] = month

	l.allTime.SessionCount++

	l.pruneLocked(now)
	snap := l.snapshotLocked()
	l.mu.Unlock()

	return l.persist(snap)
}

// Day returns the bucket for the given day.
func (l *Ledger) Day(now time.Time) Aggregate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.daily[now.Format(dayKeyFormat)]
}

// Month returns the bucket for the given month.
func (l *Ledger) Month(now time.Time) Aggregate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.monthly[now.Format(monthKeyFormat)]
}

// AllTime returns the all-time bucket.
func (l *Ledger) AllTime() Aggregate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allTime
}

// Snapshot returns a deep copy of the current ledger state.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Clear resets all buckets and persists the empty state.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	l.daily = make(map[string]Aggregate)
	l.monthly = make(map[string]Aggregate)
	l.allTime = Aggregate{}
	snap := l.snapshotLocked()
	l.mu.Unlock()

	return l.persist(snap)
}

func (l *Ledger) pruneLocked(now time.Time) {
	cutoff := now.AddDate(0, 0, -l.retentionDays).Format(dayKeyFormat)
	for key := range l.daily {
		if key < cutoff {
			delete(l.daily, key)
		}
	}
}

func (l *Ledger) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Daily:   make(map[string]Aggregate, len(l.daily)),
		Monthly: make(map[string]Aggregate, len(l.monthly)),
		AllTime: l.allTime,
	}
	for k, v := range l.daily {
		snap.Daily[k] = v
	}
	for k, v := range l.monthly {
		snap.Monthly[k] = v
	}
	return snap
}

func (l *Ledger) persist(snap *Snapshot) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SaveUsage(snap); err != nil {
		return fmt.Errorf("failed to save usage snapshot: %w", err)
	}
	return nil
}

// Summary renders a human-readable usage report for the given time.
func (l *Ledger) Summary(now time.Time) string {
	l.mu.Lock()
	day := l.daily[now.Format(dayKeyFormat)]
	month := l.monthly[now.Format(monthKeyFormat)]
	all := l.allTime
	dayCount := len(l.daily)
	l.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("📊 *Usage*\n\n")
	writeBucket(&sb, "Today", day)
	writeBucket(&sb, "This month", month)
	writeBucket(&sb, "All time", all)
	sb.WriteString(fmt.Sprintf("\n🗓️ Daily buckets retained: %d\n", dayCount))
	return sb.String()
}

func writeBucket(sb *strings.Builder, label string, a Aggregate) {
	sb.WriteString(fmt.Sprintf("*%s*\n", label))
	sb.WriteString(fmt.Sprintf("   💵 Cost: $%.4f\n", a.CostUSD))
	sb.WriteString(fmt.Sprintf("   🔢 Tokens: %d in / %d out\n", a.TokensInput, a.TokensOutput))
	sb.WriteString(fmt.Sprintf("   💬 Requests: %d, Sessions: %d\n", a.RequestCount, a.SessionCount))
}

// Days returns the retained daily bucket keys in ascending order.
func (l *Ledger) Days() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.daily))
	for k := range l.daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
