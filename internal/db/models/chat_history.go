package models

import "time"

// Hook types tag which feature produced a history row.
const (
	HookChatbot = "chatbot"
	HookDisease = "disease"
)

var hookTypes = map[string]struct{}{
	HookChatbot: {}, HookDisease: {},
}

// Column limits shared with the edges that accept these values.
const (
	MaxUserIDLength    = 128
	MaxSessionIDLength = 255
)

// IsHookType reports whether s is a known hook type.
func IsHookType(s string) bool {
	_, ok := hookTypes[s]
	return ok
}

// ChatHistory is one answered exchange. Rows are append-only.
type ChatHistory struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index;size:128;not null" json:"user_id"`
	SessionID string    `gorm:"index;size:255;not null" json:"session_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Response  string    `gorm:"type:text;not null" json:"response"`
	HookType  string    `gorm:"index;size:32;not null" json:"hook_type"`
	Provider  string    `gorm:"size:64" json:"provider"`
	Degraded  bool      `json:"degraded"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ChatHistory) TableName() string {
	return "chat_history"
}
