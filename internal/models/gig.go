package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GigStatus string

const (
	GigActive GigStatus = "active"
	GigPaused GigStatus = "paused"
)

// Gig ids stay numeric and are exposed encrypted, see utils.EncryptID.
type Gig struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title        string                      `gorm:"type:varchar(160);not null" json:"title"`
	Description  string                      `gorm:"type:text" json:"description"`
	Category     string                      `gorm:"type:varchar(60);index" json:"category"`
	Price        int64                       `json:"price"`
	DeliveryDays int                         `json:"delivery_days"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	CoverURL     string                      `gorm:"type:text" json:"cover_url"`

	Status GigStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingAccepted  BookingStatus = "accepted"
	BookingRejected  BookingStatus = "rejected"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type GigBooking struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GigID    uint      `gorm:"not null;index" json:"gig_id"`
	BuyerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"buyer_id"`
	SellerID uuid.UUID `gorm:"type:uuid;not null;index" json:"seller_id"`

	Requirements string `gorm:"type:text" json:"requirements"`
	Price        int64  `json:"price"`

	Status BookingStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Gig   *Gig  `gorm:"foreignKey:GigID" json:"gig,omitempty"`
	Buyer *User `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
}

func (b *GigBooking) BeforeCreate(tx *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
