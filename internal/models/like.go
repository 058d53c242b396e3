package models

import "time"

type Like struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	PostID string `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_likes_post_user"`
	UserID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_likes_post_user"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Like) TableName() string {
	return "likes"
}
