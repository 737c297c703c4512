// Package history persists answered exchanges and serves them back, newest
// first. Rows are only ever inserted; the sole removal path is the
// per-user purge.
package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agroshakti/agroshakti-backend/internal/db/models"
)

// ErrPersistence wraps every storage failure.
var ErrPersistence = errors.New("history: persistence failure")

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Record is one exchange to persist.
type Record struct {
	SessionID    string
	UserID       string
	RequestText  string
	ResponseText string
	Category     string
	Provider     string
	Degraded     bool
}

// Recorder appends history records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Pagination mirrors what the web client pages with.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type Page struct {
	History    []models.ChatHistory `json:"history"`
	Pagination Pagination           `json:"pagination"`
}

// Store is the gorm-backed Recorder.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record inserts rec. Unknown categories are stored as chatbot.
func (s *Store) Record(ctx context.Context, rec Record) error {
	category := strings.ToLower(strings.TrimSpace(rec.Category))
	if !models.IsHookType(category) {
		category = models.HookChatbot
	}
	row := models.ChatHistory{
		ID:        uuid.NewString(),
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		Message:   rec.RequestText,
		Response:  rec.ResponseText,
		HookType:  category,
		Provider:  rec.Provider,
		Degraded:  rec.Degraded,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: create chat history: %v", ErrPersistence, err)
	}
	return nil
}

// List returns one page of a user's history, optionally narrowed to a
// session, newest first.
func (s *Store) List(ctx context.Context, userID, sessionID string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	q := s.db.WithContext(ctx).Model(&models.ChatHistory{}).Where("user_id = ?", userID)
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page{}, fmt.Errorf("%w: count chat history: %v", ErrPersistence, err)
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	rows := make([]models.ChatHistory, 0, limit)
	if page > totalPages {
		return Page{
			History:    rows,
			Pagination: Pagination{Total: total, Page: page, Limit: limit, TotalPages: totalPages},
		}, nil
	}
	if err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&rows).Error; err != nil {
		return Page{}, fmt.Errorf("%w: list chat history: %v", ErrPersistence, err)
	}

	return Page{
		History: rows,
		Pagination: Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
		},
	}, nil
}

// DeleteByUser removes every record of a user and reports how many went.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrPersistence)
	}
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.ChatHistory{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: delete chat history: %v", ErrPersistence, res.Error)
	}
	return res.RowsAffected, nil
}
