package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionAnswered QuestionStatus = "answered"
	QuestionClosed   QuestionStatus = "closed"
)

type Question struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title    string                      `gorm:"type:varchar(200);not null" json:"title"`
	Body     string                      `gorm:"type:text" json:"body"`
	Category string                      `gorm:"type:varchar(60);index" json:"category"`
	Tags     datatypes.JSONSlice[string] `json:"tags"`

	// optional: question addressed to one mentor
	MentorID *uuid.UUID `gorm:"type:uuid;index" json:"mentor_id,omitempty"`

	Status QuestionStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Answers []Answer `gorm:"foreignKey:QuestionID" json:"answers,omitempty"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

type Answer struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Body       string `gorm:"type:text;not null" json:"body"`
	IsAccepted bool   `gorm:"default:false" json:"is_accepted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Author *User `gorm:"foreignKey:UserID" json:"author,omitempty"`
}

func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

type MentorProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	Expertise  datatypes.JSONSlice[string] `json:"expertise"`
	Bio        string                      `gorm:"type:text" json:"bio"`
	HourlyRate int64                       `json:"hourly_rate"`
	Available  bool                        `gorm:"default:true" json:"available"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (m *MentorProfile) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
