package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobType string

const (
	JobFullTime   JobType = "full_time"
	JobPartTime   JobType = "part_time"
	JobContract   JobType = "contract"
	JobFreelance  JobType = "freelance"
	JobInternship JobType = "internship"
)

type JobStatus string

const (
	JobStatusOpen   JobStatus = "open"
	JobStatusClosed JobStatus = "closed"
	JobStatusFilled JobStatus = "filled"
)

type JobPosting struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title       string  `gorm:"type:varchar(160);not null" json:"title"`
	Company     string  `gorm:"type:varchar(120)" json:"company"`
	Description string  `gorm:"type:text" json:"description"`
	Category    string  `gorm:"type:varchar(60);index" json:"category"`
	JobType     JobType `gorm:"type:varchar(20)" json:"job_type"`
	Location    string  `gorm:"type:varchar(120)" json:"location"`
	Remote      bool    `gorm:"default:false" json:"remote"`
	BudgetMin   int64   `json:"budget_min"`
	BudgetMax   int64   `json:"budget_max"`

	Skills   datatypes.JSONSlice[string] `json:"skills"`
	Deadline *time.Time                  `json:"deadline,omitempty"`

	Status JobStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Owner *User `gorm:"foreignKey:UserID" json:"owner,omitempty"`
}

func (j *JobPosting) BeforeCreate(tx *gorm.DB) error {
	ensureID(&j.ID)
	return nil
}

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

type JobApplication struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_application_job_user" json:"job_id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_application_job_user;index" json:"user_id"`

	CoverLetter  string                      `gorm:"type:text" json:"cover_letter"`
	ProposedRate int64                       `json:"proposed_rate"`
	ResumeURL    string                      `gorm:"type:text" json:"resume_url"`
	Attachments  datatypes.JSONSlice[string] `json:"attachments"`

	Status ApplicationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Job       *JobPosting `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Applicant *User       `gorm:"foreignKey:UserID" json:"applicant,omitempty"`
}

func (a *JobApplication) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
