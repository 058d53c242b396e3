package repository

import (
	"context"
	"time"

	"github.com/lalitcap23/defess-v3/internal/models"
)

// PostReader is the read side the winner selector needs from the posts store.
type PostReader interface {
	// ListPostsCreatedBetween returns posts with created_at in [start, end),
	// newest first, joined with their author.
	ListPostsCreatedBetween(ctx context.Context, start, end time.Time) ([]PostWithAuthor, error)
	CountLikes(ctx context.Context, postID string) (int64, error)
	// CountLikesByPosts returns a count per post id in one grouped query. Posts
	// without likes are absent from the map.
	CountLikesByPosts(ctx context.Context, postIDs []string) (map[string]int64, error)
}

// WinnerWriter persists the outcome of a minted period.
type WinnerWriter interface {
	InsertWinner(ctx context.Context, item *models.NFTWinner) error
	MarkPostWinner(ctx context.Context, postID string, periodStart time.Time) error
}

type PeriodRunRepository interface {
	RecordPeriodRun(ctx context.Context, item *models.PeriodRun) error
	GetPeriodRun(ctx context.Context, periodStart int64) (*models.PeriodRun, error)
	ListPeriodRuns(ctx context.Context, limit int) ([]models.PeriodRun, error)
}

type StatsRepository interface {
	GetWinnerByPeriod(ctx context.Context, periodStart int64) (*models.NFTWinner, error)
	ListRecentWinners(ctx context.Context, limit int) ([]models.NFTWinner, error)
	WinnerStatusCounts(ctx context.Context, since time.Time) (WinnerStatusCounts, error)
	CountPosts(ctx context.Context, since *time.Time) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
	CountWinners(ctx context.Context) (int64, error)
}

// Repository is everything the reward service reads and writes.
type Repository interface {
	PostReader
	WinnerWriter
	PeriodRunRepository
	StatsRepository
	Ping(ctx context.Context) error
}

// PostWithAuthor is a post row joined with its author. Wallet is nil when the
// author never linked one.
type PostWithAuthor struct {
	PostID         string    `gorm:"column:post_id"`
	AuthorID       string    `gorm:"column:author_id"`
	Content        string    `gorm:"column:content"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	AuthorUsername string    `gorm:"column:author_username"`
	AuthorWallet   *string   `gorm:"column:author_wallet"`
}

type WinnerStatusCounts struct {
	Total   int64 `json:"total_winners"`
	Pending int64 `json:"pending_mints"`
	Minted  int64 `json:"minted_nfts"`
	Failed  int64 `json:"failed_mints"`
	Since   int64 `json:"last_24_hours"`
}
