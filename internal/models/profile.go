package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Profile struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	Username  string `gorm:"type:varchar(40);uniqueIndex;not null" json:"username"`
	FullName  string `gorm:"type:varchar(120)" json:"full_name"`
	Headline  string `gorm:"type:varchar(160)" json:"headline"`
	Bio       string `gorm:"type:text" json:"bio"`
	AvatarURL string `gorm:"type:text" json:"avatar_url"`
	Location  string `gorm:"type:varchar(120)" json:"location"`
	Website   string `gorm:"type:text" json:"website"`

	Skills datatypes.JSONSlice[string] `json:"skills"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
