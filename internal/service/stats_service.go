package service

import (
	"context"
	"math"
	"time"

	"github.com/lalitcap23/defess-v3/internal/models"
	"github.com/lalitcap23/defess-v3/internal/period"
	"github.com/lalitcap23/defess-v3/internal/repository"
)

type Overview struct {
	TotalWinners               int64 `json:"total_winners"`
	TotalPosts                 int64 `json:"total_posts"`
	TotalUsers                 int64 `json:"total_users"`
	PostsLast24h               int64 `json:"posts_last_24h"`
	MinutesUntilNextProcessing int   `json:"minutes_until_next_processing"`
}

type CurrentPeriod struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	PeriodStart      int64     `json:"period_start"`
	MinutesRemaining int       `json:"minutes_remaining"`
}

type RecentWinner struct {
	PeriodStart          int64     `json:"period_timestamp"`
	PostID               string    `json:"post_id"`
	LikeCount            int64     `json:"like_count"`
	SelectedAt           time.Time `json:"selected_at"`
	MintStatus           string    `json:"mint_status"`
	TransactionSignature *string   `json:"transaction_signature"`
}

type ConfigStatus struct {
	CronSecretConfigured bool   `json:"cron_secret_configured"`
	SolanaConfigured     bool   `json:"solana_configured"`
	TimeZone             string `json:"time_zone"`
}

type Stats struct {
	Timestamp     time.Time                     `json:"timestamp"`
	Overview      Overview                      `json:"overview"`
	CurrentPeriod CurrentPeriod                 `json:"current_period"`
	RecentWinners []RecentWinner                `json:"recent_winners"`
	Status        repository.WinnerStatusCounts `json:"status"`
	RecentRuns    []models.PeriodRun            `json:"recent_runs"`
	Config        ConfigStatus                  `json:"config"`
}

// WinnerPreview is the dry-run view of a period's leader.
type WinnerPreview struct {
	PeriodStart int64  `json:"period_start"`
	PostID      string `json:"post_id"`
	Username    string `json:"username"`
	LikeCount   int64  `json:"like_count"`
	HasWallet   bool   `json:"has_wallet"`
}

type StatsService struct {
	Repo     repository.Repository
	Selector *WinnerSelector
	Config   ConfigStatus
	Now      func() time.Time
}

func (s *StatsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *StatsService) Stats(ctx context.Context) (Stats, error) {
	now := s.now().UTC()
	cur := period.Containing(now)
	remaining := int(math.Ceil(cur.Remaining(now).Minutes()))

	out := Stats{
		Timestamp: now,
		CurrentPeriod: CurrentPeriod{
			Start:            cur.Start(),
			End:              cur.End(),
			PeriodStart:      cur.Unix(),
			MinutesRemaining: remaining,
		},
		Config: s.Config,
	}
	out.Overview.MinutesUntilNextProcessing = remaining

	var err error
	if out.Overview.TotalWinners, err = s.Repo.CountWinners(ctx); err != nil {
		return Stats{}, err
	}
	if out.Overview.TotalPosts, err = s.Repo.CountPosts(ctx, nil); err != nil {
		return Stats{}, err
	}
	if out.Overview.TotalUsers, err = s.Repo.CountUsers(ctx); err != nil {
		return Stats{}, err
	}
	dayAgo := now.Add(-24 * time.Hour)
	if out.Overview.PostsLast24h, err = s.Repo.CountPosts(ctx, &dayAgo); err != nil {
		return Stats{}, err
	}
	if out.Status, err = s.Repo.WinnerStatusCounts(ctx, dayAgo); err != nil {
		return Stats{}, err
	}

	winners, err := s.Repo.ListRecentWinners(ctx, 10)
	if err != nil {
		return Stats{}, err
	}
	out.RecentWinners = make([]RecentWinner, 0, len(winners))
	for _, w := range winners {
		out.RecentWinners = append(out.RecentWinners, RecentWinner{
			PeriodStart:          w.PeriodStart,
			PostID:               w.PostID,
			LikeCount:            w.LikeCount,
			SelectedAt:           w.SelectedAt,
			MintStatus:           w.MintStatus,
			TransactionSignature: w.TransactionSignature,
		})
	}

	if out.RecentRuns, err = s.Repo.ListPeriodRuns(ctx, 10); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// PreviewPreviousWinner runs selection for the previous period without
// touching the chain or writing anything. A nil preview means no winner.
func (s *StatsService) PreviewPreviousWinner(ctx context.Context) (*WinnerPreview, error) {
	per := period.Previous(s.now())
	out := s.Selector.FindWinner(ctx, per)
	switch out.Kind {
	case OutcomeFailed:
		return nil, out.Err
	case OutcomeNotFound:
		return nil, nil
	}
	c := out.Candidate
	return &WinnerPreview{
		PeriodStart: per.Unix(),
		PostID:      c.PostID,
		Username:    c.AuthorUsername,
		LikeCount:   c.LikeCount,
		HasWallet:   c.HasWallet(),
	}, nil
}
