package model

import "time"

// AskLog records one answered question for later review on the dashboard.
type AskLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequestID   string    `gorm:"size:36;not null;uniqueIndex" json:"request_id"`
	UserID      uint      `gorm:"index" json:"user_id"`
	Question    string    `gorm:"type:text;not null" json:"question"`
	Answer      string    `gorm:"type:text" json:"answer"`
	Status      string    `gorm:"size:16;not null;index" json:"status"`
	Provider    string    `gorm:"size:64" json:"provider"`
	Generation  uint64    `json:"generation"`
	SourceCount int       `json:"source_count"`
	Cached      bool      `json:"cached"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AskLog) TableName() string {
	return "rag_ask_logs"
}
