package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EduTaskStatus string

const (
	EduTaskOpen       EduTaskStatus = "open"
	EduTaskInProgress EduTaskStatus = "in_progress"
	EduTaskDone       EduTaskStatus = "done"
)

type EduTask struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title       string     `gorm:"type:varchar(160);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Subject     string     `gorm:"type:varchar(80);index" json:"subject"`
	Reward      int64      `json:"reward"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	Status EduTaskStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *EduTask) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
