package usage

import (
	"testing"
	"time"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	snap  *Snapshot
	saves int
}

func (m *memStore) LoadUsage() (*Snapshot, error) {
	return m.snap, nil
}

func (m *memStore) SaveUsage(s *Snapshot) error {
	m.snap = s
	m.saves++
	return nil
}

func day(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 12, 0, 0, 0, time.UTC)
}

func TestRecordRequestAllThreeBuckets(t *testing.T) {
	l := NewLedger(nil, 90)
	now := day(2026, time.August, 28)

	l.RecordRequest(now, 100, 50, 0.01)
	l.RecordRequest(now, 200, 100, 0.02)

	d := l.Day(now)
	if d.TokensInput != 300 || d.TokensOutput != 150 || d.RequestCount != 2 {
		t.Errorf("daily bucket wrong: %+v", d)
	}

	m := l.Month(now)
	if m.TokensInput != 300 || m.RequestCount != 2 {
		t.Errorf("monthly bucket wrong: %+v", m)
	}

	a := l.AllTime()
	if a.TokensInput != 300 || a.RequestCount != 2 {
		t.Errorf("all-time bucket wrong: %+v", a)
	}
	if diff := a.CostUSD - 0.03; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected cost 0.03, got %f", a.CostUSD)
	}
}

func TestRecordSessionCountsAtCreation(t *testing.T) {
	l := NewLedger(nil, 90)
	now := day(2026, time.August, 28)

	l.RecordSession(now)
	l.RecordSession(now)

	if got := l.Day(now).SessionCount; got != 2 {
		t.Errorf("expected 2 sessions today, got %d", got)
	}
	if got := l.AllTime().SessionCount; got != 2 {
		t.Errorf("expected 2 sessions all-time, got %d", got)
	}
	if got := l.Day(now).RequestCount; got != 0 {
		t.Errorf("sessions must not count as requests, got %d", got)
	}
}

func TestPruneOldDailyBuckets(t *testing.T) {
	l := NewLedger(nil, 90)

	old := day(2026, time.May, 1) // 119 days before Aug 28
	edge := day(2026, time.May, 31)
	now := day(2026, time.August, 28)

	l.RecordRequest(old, 1, 1, 0)
	l.RecordRequest(edge, 1, 1, 0)
	l.RecordRequest(now, 1, 1, 0)

	days := l.Days()
	for _, k := range days {
		if k == "2026-05-01" {
			t.Errorf("bucket older than 90 days should be pruned, kept %v", days)
		}
	}
	if got := len(days); got != 2 {
		t.Errorf("expected 2 retained days, got %d: %v", got, days)
	}

	// Monthly and all-time aggregates survive the prune.
	if l.AllTime().RequestCount != 3 {
		t.Errorf("all-time must keep pruned requests, got %d", l.AllTime().RequestCount)
	}
	if l.Month(old).RequestCount != 2 {
		t.Errorf("monthly must keep pruned requests, got %d", l.Month(old).RequestCount)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := &memStore{}
	l := NewLedger(store, 90)
	now := day(2026, time.August, 28)

	l.RecordRequest(now, 100, 50, 0.01)
	l.RecordSession(now)

	if store.saves != 2 {
		t.Errorf("expected a save per write, got %d", store.saves)
	}

	// Fresh ledger loads the whole snapshot back.
	l2 := NewLedger(store, 90)
	if err := l2.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := l2.Day(now).TokensInput; got != 100 {
		t.Errorf("expected 100 input tokens after reload, got %d", got)
	}
	if got := l2.AllTime().SessionCount; got != 1 {
		t.Errorf("expected 1 session after reload, got %d", got)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	l := NewLedger(nil, 90)
	now := day(2026, time.August, 28)
	l.RecordRequest(now, 1, 1, 0)

	snap := l.Snapshot()
	key := now.Format("2006-01-02")
	agg := snap.Daily[key]
	agg.TokensInput = 999
	snap.Daily[key] = agg

	if l.Day(now).TokensInput != 1 {
		t.Error("mutating a snapshot must not affect the ledger")
	}
}

func TestClear(t *testing.T) {
	store := &memStore{}
	l := NewLedger(store, 90)
	now := day(2026, time.August, 28)

	l.RecordRequest(now, 1, 1, 0.5)
	if err := l.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	if l.AllTime() != (Aggregate{}) {
		t.Errorf("expected empty all-time bucket, got %+v", l.AllTime())
	}
	if store.snap == nil || len(store.snap.Daily) != 0 {
		t.Error("clear must persist the empty state")
	}
}
