package models

// ProviderAttempt is one provider call made while resolving a request.
type ProviderAttempt struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	Timestamp int64  `gorm:"index" json:"timestamp"` // unix millis
	RequestID string `gorm:"size:64" json:"request_id,omitempty"`
	SessionID string `gorm:"index;size:255" json:"session_id,omitempty"`
	Provider  string `gorm:"index;size:64" json:"provider"`
	Fallback  bool   `json:"fallback"`
	Outcome   string `gorm:"index;size:16" json:"outcome"` // "ok" or a failure kind
	Status    int    `json:"status,omitempty"`
	Duration  int64  `json:"duration"` // milliseconds
	Error     string `gorm:"type:text" json:"error,omitempty"`

	RetryAfterMs int64 `json:"retry_after_ms,omitempty"` // quota hint from the provider
}

// AttemptStats holds aggregated attempt counters.
type AttemptStats struct {
	TotalAttempts int64            `json:"total_attempts"`
	SuccessCount  int64            `json:"success_count"`
	FailureCount  int64            `json:"failure_count"`
	FallbackCount int64            `json:"fallback_count"`
	ByProvider    map[string]int64 `json:"by_provider"`
	ByOutcome     map[string]int64 `json:"by_outcome"`
}
