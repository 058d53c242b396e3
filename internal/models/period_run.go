package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusNoWinner      = "no_winner"
	RunStatusIneligible    = "ineligible"
	RunStatusMinted        = "minted"
	RunStatusChainFailed   = "chain_failed"
	RunStatusQueryFailed   = "query_failed"
	RunStatusPersistFailed = "persist_failed"
)

// PeriodRun is the audit trail of processing attempts, one row per period.
type PeriodRun struct {
	PeriodStart int64  `gorm:"primaryKey;autoIncrement:false"`
	Status      string `gorm:"type:varchar(32);not null;index"`
	Attempts    int    `gorm:"not null;default:0"`

	PostID               *string `gorm:"type:varchar(64)"`
	LikeCount            *int64
	TransactionSignature *string `gorm:"type:varchar(128)"`
	LastError            *string `gorm:"type:text"`

	Details       datatypes.JSON
	LastAttemptAt time.Time `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (PeriodRun) TableName() string {
	return "period_runs"
}
