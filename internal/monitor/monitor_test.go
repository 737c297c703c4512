package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/agroshakti/agroshakti-backend/internal/db"
	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/orchestrator"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func TestObserveAttempt_RecordsAndPersists(t *testing.T) {
	m := NewAttemptMonitor(newTestDB(t))
	ctx := logging.WithRequestID(context.Background(), "req00001")
	start := time.Now()

	m.ObserveAttempt(ctx, orchestrator.Attempt{
		Provider: "primary", SessionID: "s1", StartedAt: start, Duration: 120 * time.Millisecond,
		Err: &upstream.Error{Provider: "primary", Kind: upstream.KindTransient, Status: 503, Err: errors.New("down")},
	})
	m.ObserveAttempt(ctx, orchestrator.Attempt{
		Provider: "gemini", SessionID: "s1", Fallback: true, StartedAt: start.Add(time.Second), Duration: 900 * time.Millisecond,
	})
	m.Flush()

	stats := m.GetStats()
	if stats.TotalAttempts != 2 || stats.SuccessCount != 1 || stats.FailureCount != 1 || stats.FallbackCount != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.ByOutcome["transient"] != 1 || stats.ByProvider["gemini"] != 1 {
		t.Fatalf("unexpected breakdown %+v", stats)
	}

	recent := m.Recent(10)
	if len(recent) != 2 || recent[0].Provider != "gemini" {
		t.Fatalf("recent = %+v", recent)
	}
	if recent[1].Status != 503 || recent[1].Outcome != "transient" || recent[1].RequestID != "req00001" {
		t.Fatalf("failure entry = %+v", recent[1])
	}

	page, total, err := m.GetAttemptsWithPagination(context.Background(), 1, 10, "")
	if err != nil {
		t.Fatalf("GetAttemptsWithPagination() error = %v", err)
	}
	if total != 2 || len(page) != 2 || page[0].Provider != "gemini" {
		t.Fatalf("page = %+v total=%d", page, total)
	}

	filtered, total, _ := m.GetAttemptsWithPagination(context.Background(), 1, 10, "transient")
	if total != 1 || filtered[0].Provider != "primary" {
		t.Fatalf("filtered = %+v", filtered)
	}
}

func TestObserveAttempt_StoresRetryHint(t *testing.T) {
	m := NewAttemptMonitor(newTestDB(t))
	m.ObserveAttempt(context.Background(), orchestrator.Attempt{
		Provider: "gemini", Fallback: true, StartedAt: time.Now(),
		Err: &upstream.Error{Provider: "gemini", Kind: upstream.KindQuota, Status: 429, RetryAfter: 20 * time.Second},
	})
	m.Flush()

	recent := m.Recent(1)
	if len(recent) != 1 || recent[0].RetryAfterMs != 20000 || recent[0].Outcome != "quota" {
		t.Fatalf("recent = %+v", recent)
	}
	page, _, err := m.GetAttemptsWithPagination(context.Background(), 1, 10, "")
	if err != nil || len(page) != 1 || page[0].RetryAfterMs != 20000 {
		t.Fatalf("persisted = %+v, %v", page, err)
	}
}

func TestGetAttemptsWithPagination_PastLastPage(t *testing.T) {
	m := NewAttemptMonitor(newTestDB(t))
	m.ObserveAttempt(context.Background(), orchestrator.Attempt{Provider: "primary", StartedAt: time.Now()})
	m.Flush()

	for _, page := range []int{2, math.MaxInt} {
		rows, total, err := m.GetAttemptsWithPagination(context.Background(), page, 10, "")
		if err != nil {
			t.Fatalf("page %d: error = %v", page, err)
		}
		if total != 1 || len(rows) != 0 {
			t.Fatalf("page %d: rows=%d total=%d", page, len(rows), total)
		}
	}
}

func TestDisabledMonitorIgnoresAttempts(t *testing.T) {
	m := NewAttemptMonitor(newTestDB(t))
	m.SetEnabled(false)
	m.ObserveAttempt(context.Background(), orchestrator.Attempt{Provider: "primary"})
	m.Flush()
	if m.GetStats().TotalAttempts != 0 {
		t.Fatal("disabled monitor should not count attempts")
	}
}

func TestStatsReloadAndClear(t *testing.T) {
	gdb := newTestDB(t)
	m := NewAttemptMonitor(gdb)
	for i := 0; i < 3; i++ {
		m.ObserveAttempt(context.Background(), orchestrator.Attempt{Provider: "groq", Fallback: true, StartedAt: time.Now()})
	}
	m.Flush()

	reloaded := NewAttemptMonitor(gdb)
	if s := reloaded.GetStats(); s.TotalAttempts != 3 || s.FallbackCount != 3 || s.ByProvider["groq"] != 3 {
		t.Fatalf("reloaded stats %+v", s)
	}

	if err := reloaded.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s := reloaded.GetStats(); s.TotalAttempts != 0 {
		t.Fatalf("stats after clear %+v", s)
	}
	_, total, _ := reloaded.GetAttemptsWithPagination(context.Background(), 1, 10, "")
	if total != 0 {
		t.Fatalf("rows after clear = %d", total)
	}
}

func TestRecentWindowIsBounded(t *testing.T) {
	m := NewAttemptMonitor(newTestDB(t))
	for i := 0; i < MaxMemoryAttempts+10; i++ {
		m.ObserveAttempt(context.Background(), orchestrator.Attempt{Provider: "primary", StartedAt: time.Now()})
	}
	m.Flush()
	if got := len(m.Recent(0)); got != MaxMemoryAttempts {
		t.Fatalf("recent window = %d", got)
	}
}
