package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MintStatusPending = "pending"
	MintStatusMinted  = "minted"
	MintStatusFailed  = "failed"
)

type NFTWinner struct {
	ID string `gorm:"primaryKey;type:varchar(36)"`
	// PeriodStart is the unix second the 30-minute period starts at.
	PeriodStart int64  `gorm:"column:period_timestamp;not null;uniqueIndex"`
	PostID      string `gorm:"type:varchar(64);not null;index"`
	UserID      string `gorm:"type:varchar(64);not null;index"`
	LikeCount   int64  `gorm:"not null"`

	MintStatus           string  `gorm:"type:varchar(20);not null;default:'pending';index"`
	TransactionSignature *string `gorm:"type:varchar(128)"`

	SelectedAt time.Time `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (NFTWinner) TableName() string {
	return "nft_winners"
}

func (w *NFTWinner) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
