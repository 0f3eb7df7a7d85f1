package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ExchangeMode string

const (
	ExchangeOnline  ExchangeMode = "online"
	ExchangeOffline ExchangeMode = "offline"
	ExchangeHybrid  ExchangeMode = "hybrid"
)

type ExchangeStatus string

const (
	ExchangeOpen    ExchangeStatus = "open"
	ExchangeMatched ExchangeStatus = "matched"
	ExchangeClosed  ExchangeStatus = "closed"
)

type SkillExchange struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	SkillOffered string       `gorm:"type:varchar(80);not null;index" json:"skill_offered"`
	SkillWanted  string       `gorm:"type:varchar(80);not null;index" json:"skill_wanted"`
	Description  string       `gorm:"type:text" json:"description"`
	Mode         ExchangeMode `gorm:"type:varchar(20);default:'online'" json:"mode"`

	Status ExchangeStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *SkillExchange) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

type ExchangeProposal struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExchangeID uuid.UUID `gorm:"type:uuid;not null;index" json:"exchange_id"`
	ProposerID uuid.UUID `gorm:"type:uuid;not null;index" json:"proposer_id"`

	SkillOffered string `gorm:"type:varchar(80)" json:"skill_offered"`
	Message      string `gorm:"type:text" json:"message"`

	Status ProposalStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Proposer *User `gorm:"foreignKey:ProposerID" json:"proposer,omitempty"`
}

func (p *ExchangeProposal) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
