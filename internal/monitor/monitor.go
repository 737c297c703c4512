// Package monitor records every provider attempt the orchestrator makes:
// a bounded in-memory window, live counters, and asynchronous persistence.
package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/agroshakti/agroshakti-backend/internal/db/models"
	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/orchestrator"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
	"github.com/agroshakti/agroshakti-backend/internal/util"
)

const (
	// MaxMemoryAttempts limits the in-memory window
	MaxMemoryAttempts = 100
	// MaxErrorSize limits stored error text
	MaxErrorSize = 2048

	OutcomeOK = "ok"
)

// AttemptMonitor implements orchestrator.Observer.
type AttemptMonitor struct {
	db      *gorm.DB
	enabled atomic.Bool
	pending sync.WaitGroup

	recent   []models.ProviderAttempt
	recentMu sync.RWMutex

	totalAttempts atomic.Int64
	successCount  atomic.Int64
	failureCount  atomic.Int64
	fallbackCount atomic.Int64

	countsMu   sync.Mutex
	byProvider map[string]int64
	byOutcome  map[string]int64
}

var _ orchestrator.Observer = (*AttemptMonitor)(nil)

// NewAttemptMonitor creates an enabled monitor and loads counters from db.
func NewAttemptMonitor(db *gorm.DB) *AttemptMonitor {
	m := &AttemptMonitor{
		db:         db,
		recent:     make([]models.ProviderAttempt, 0, MaxMemoryAttempts),
		byProvider: map[string]int64{},
		byOutcome:  map[string]int64{},
	}
	m.loadStatsFromDB()
	m.enabled.Store(true)
	return m
}

func (m *AttemptMonitor) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	log.Info().Bool("enabled", enabled).Msg("Attempt monitor toggled")
}

func (m *AttemptMonitor) IsEnabled() bool {
	return m.enabled.Load()
}

// ObserveAttempt records a (non-blocking) attempt.
func (m *AttemptMonitor) ObserveAttempt(ctx context.Context, a orchestrator.Attempt) {
	if !m.IsEnabled() {
		return
	}

	entry := models.ProviderAttempt{
		ID:        uuid.NewString(),
		Timestamp: a.StartedAt.UnixMilli(),
		RequestID: logging.GetRequestID(ctx),
		SessionID: a.SessionID,
		Provider:  a.Provider,
		Fallback:  a.Fallback,
		Outcome:   OutcomeOK,
		Duration:  a.Duration.Milliseconds(),
	}
	if a.StartedAt.IsZero() {
		entry.Timestamp = time.Now().UnixMilli()
	}
	if a.Err != nil {
		entry.Outcome = string(a.Kind())
		entry.Error = util.TruncateLog(a.Err.Error(), MaxErrorSize)
		var upErr *upstream.Error
		if errors.As(a.Err, &upErr) {
			entry.Status = upErr.Status
			entry.RetryAfterMs = upErr.RetryAfter.Milliseconds()
		}
	}

	m.totalAttempts.Add(1)
	if a.Err == nil {
		m.successCount.Add(1)
	} else {
		m.failureCount.Add(1)
	}
	if a.Fallback {
		m.fallbackCount.Add(1)
	}
	m.countsMu.Lock()
	m.byProvider[entry.Provider]++
	m.byOutcome[entry.Outcome]++
	m.countsMu.Unlock()

	m.recentMu.Lock()
	m.recent = append([]models.ProviderAttempt{entry}, m.recent...)
	if len(m.recent) > MaxMemoryAttempts {
		m.recent = m.recent[:MaxMemoryAttempts]
	}
	m.recentMu.Unlock()

	m.pending.Add(1)
	go func(entry models.ProviderAttempt) {
		defer m.pending.Done()
		if err := m.db.Create(&entry).Error; err != nil {
			log.Warn().Err(err).Str("provider", entry.Provider).Msg("Failed to save provider attempt")
		}
	}(entry)
}

// Flush waits for pending writes.
func (m *AttemptMonitor) Flush() {
	m.pending.Wait()
}

// Recent returns up to limit of the newest in-memory attempts.
func (m *AttemptMonitor) Recent(limit int) []models.ProviderAttempt {
	m.recentMu.RLock()
	defer m.recentMu.RUnlock()
	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	out := make([]models.ProviderAttempt, limit)
	copy(out, m.recent[:limit])
	return out
}

// GetAttemptsWithPagination returns persisted attempts, newest first.
func (m *AttemptMonitor) GetAttemptsWithPagination(ctx context.Context, page, pageSize int, search string) ([]models.ProviderAttempt, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	query := m.db.WithContext(ctx).Model(&models.ProviderAttempt{})
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("provider LIKE ? OR outcome LIKE ? OR session_id LIKE ? OR error LIKE ?",
			pattern, pattern, pattern, pattern)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Pages past the end stay empty without computing an offset.
	if pages := (total + int64(pageSize) - 1) / int64(pageSize); int64(page) > pages {
		return []models.ProviderAttempt{}, total, nil
	}

	var attempts []models.ProviderAttempt
	offset := (page - 1) * pageSize
	if err := query.Order("timestamp DESC").Offset(offset).Limit(pageSize).Find(&attempts).Error; err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

// GetStats returns live counters.
func (m *AttemptMonitor) GetStats() models.AttemptStats {
	m.countsMu.Lock()
	byProvider := make(map[string]int64, len(m.byProvider))
	for k, v := range m.byProvider {
		byProvider[k] = v
	}
	byOutcome := make(map[string]int64, len(m.byOutcome))
	for k, v := range m.byOutcome {
		byOutcome[k] = v
	}
	m.countsMu.Unlock()

	return models.AttemptStats{
		TotalAttempts: m.totalAttempts.Load(),
		SuccessCount:  m.successCount.Load(),
		FailureCount:  m.failureCount.Load(),
		FallbackCount: m.fallbackCount.Load(),
		ByProvider:    byProvider,
		ByOutcome:     byOutcome,
	}
}

// Clear drops all attempts from memory and database.
func (m *AttemptMonitor) Clear(ctx context.Context) error {
	m.Flush()

	m.recentMu.Lock()
	m.recent = m.recent[:0]
	m.recentMu.Unlock()

	m.totalAttempts.Store(0)
	m.successCount.Store(0)
	m.failureCount.Store(0)
	m.fallbackCount.Store(0)
	m.countsMu.Lock()
	m.byProvider = map[string]int64{}
	m.byOutcome = map[string]int64{}
	m.countsMu.Unlock()

	if err := m.db.WithContext(ctx).Where("1 = 1").Delete(&models.ProviderAttempt{}).Error; err != nil {
		return err
	}
	log.Info().Msg("Provider attempts cleared")
	return nil
}

func (m *AttemptMonitor) loadStatsFromDB() {
	var total, success, fallback int64
	m.db.Model(&models.ProviderAttempt{}).Count(&total)
	m.db.Model(&models.ProviderAttempt{}).Where("outcome = ?", OutcomeOK).Count(&success)
	m.db.Model(&models.ProviderAttempt{}).Where("fallback = ?", true).Count(&fallback)

	type bucket struct {
		Name  string
		Count int64
	}
	var providers, outcomes []bucket
	m.db.Model(&models.ProviderAttempt{}).Select("provider AS name, COUNT(*) AS count").Group("provider").Scan(&providers)
	m.db.Model(&models.ProviderAttempt{}).Select("outcome AS name, COUNT(*) AS count").Group("outcome").Scan(&outcomes)

	m.totalAttempts.Store(total)
	m.successCount.Store(success)
	m.failureCount.Store(total - success)
	m.fallbackCount.Store(fallback)
	for _, b := range providers {
		m.byProvider[b.Name] = b.Count
	}
	for _, b := range outcomes {
		m.byOutcome[b.Name] = b.Count
	}

	log.Debug().Int64("total", total).Int64("success", success).Msg("Loaded attempt stats")
}
