package models

import "time"

// Post is owned by the web app. The reward pipeline reads it and sets the
// winner flag once per minted period.
type Post struct {
	ID      string `gorm:"primaryKey;type:varchar(64)"`
	UserID  string `gorm:"type:varchar(64);not null;index"`
	Content string `gorm:"type:text;not null"`

	IsNFTWinner       bool       `gorm:"column:is_nft_winner;not null;default:false"`
	WinnerPeriodStart *time.Time `gorm:"column:winner_period_start"`

	CreatedAt time.Time `gorm:"not null;index"`
}

func (Post) TableName() string {
	return "posts"
}
