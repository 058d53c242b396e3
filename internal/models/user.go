package models

import "time"

// User is owned by the web app; only the columns read here are mapped.
type User struct {
	ID            string  `gorm:"primaryKey;type:varchar(64)"`
	Username      string  `gorm:"type:varchar(64);not null;uniqueIndex"`
	WalletAddress *string `gorm:"type:varchar(64)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}
