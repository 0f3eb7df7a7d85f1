package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectPublished ProjectStatus = "published"
	ProjectArchived  ProjectStatus = "archived"
)

type Project struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title       string                      `gorm:"type:varchar(160);not null" json:"title"`
	Description string                      `gorm:"type:text" json:"description"`
	Category    string                      `gorm:"type:varchar(60);index" json:"category"`
	TechStack   datatypes.JSONSlice[string] `json:"tech_stack"`
	RepoURL     string                      `gorm:"type:text" json:"repo_url"`
	DemoURL     string                      `gorm:"type:text" json:"demo_url"`
	CoverURL    string                      `gorm:"type:text" json:"cover_url"`
	Files       datatypes.JSONSlice[string] `json:"files"`

	Status ProjectStatus `gorm:"type:varchar(20);not null;default:'published';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
