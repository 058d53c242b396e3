package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lalitcap23/defess-v3/internal/models"
	"github.com/lalitcap23/defess-v3/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var errNoDB = errors.New("gorm store: db is nil")

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- posts & likes ----------------------------------------------------------

func (s *Store) ListPostsCreatedBetween(ctx context.Context, start, end time.Time) ([]repository.PostWithAuthor, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	var rows []repository.PostWithAuthor
	err := s.db.WithContext(ctx).
		Table("posts AS p").
		Select(`
			p.id AS post_id,
			p.user_id AS author_id,
			p.content AS content,
			p.created_at AS created_at,
			COALESCE(u.username, '') AS author_username,
			u.wallet_address AS author_wallet
		`).
		Joins("LEFT JOIN users AS u ON u.id = p.user_id").
		Where("p.created_at >= ?", start.UTC()).
		Where("p.created_at < ?", end.UTC()).
		Order("p.created_at desc").
		Order("p.id desc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
		if rows[i].AuthorWallet != nil && strings.TrimSpace(*rows[i].AuthorWallet) == "" {
			rows[i].AuthorWallet = nil
		}
	}
	return rows, nil
}

func (s *Store) CountLikes(ctx context.Context, postID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNoDB
	}
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("post_id = ?", postID).
		Count(&n).Error
	return n, err
}

type likeCountRow struct {
	PostID string `gorm:"column:post_id"`
	Likes  int64  `gorm:"column:likes"`
}

func (s *Store) CountLikesByPosts(ctx context.Context, postIDs []string) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	out := make(map[string]int64, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []likeCountRow
	err := s.db.WithContext(ctx).
		Model(&models.Like{}).
		Select("post_id, COUNT(*) AS likes").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.PostID] = r.Likes
	}
	return out, nil
}

// --- winners ----------------------------------------------------------------

func (s *Store) InsertWinner(ctx context.Context, item *models.NFTWinner) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	if item == nil {
		return errors.New("gorm store: winner is nil")
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) MarkPostWinner(ctx context.Context, postID string, periodStart time.Time) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	res := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", postID).
		Updates(map[string]any{
			"is_nft_winner":       true,
			"winner_period_start": periodStart.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) GetWinnerByPeriod(ctx context.Context, periodStart int64) (*models.NFTWinner, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	var item models.NFTWinner
	err := s.db.WithContext(ctx).
		Where("period_timestamp = ?", periodStart).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRecentWinners(ctx context.Context, limit int) ([]models.NFTWinner, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	var items []models.NFTWinner
	if err := s.db.WithContext(ctx).
		Model(&models.NFTWinner{}).
		Order("selected_at desc").
		Limit(normalizeLimit(limit, 10)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

type statusCountRow struct {
	MintStatus string `gorm:"column:mint_status"`
	N          int64  `gorm:"column:n"`
}

func (s *Store) WinnerStatusCounts(ctx context.Context, since time.Time) (repository.WinnerStatusCounts, error) {
	var out repository.WinnerStatusCounts
	if s == nil || s.db == nil {
		return out, errNoDB
	}
	var rows []statusCountRow
	if err := s.db.WithContext(ctx).
		Model(&models.NFTWinner{}).
		Select("mint_status, COUNT(*) AS n").
		Group("mint_status").
		Scan(&rows).Error; err != nil {
		return out, err
	}
	for _, r := range rows {
		out.Total += r.N
		switch r.MintStatus {
		case models.MintStatusPending:
			out.Pending = r.N
		case models.MintStatusMinted:
			out.Minted = r.N
		case models.MintStatusFailed:
			out.Failed = r.N
		}
	}
	if err := s.db.WithContext(ctx).
		Model(&models.NFTWinner{}).
		Where("selected_at > ?", since.UTC()).
		Count(&out.Since).Error; err != nil {
		return out, err
	}
	return out, nil
}

func (s *Store) CountPosts(ctx context.Context, since *time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNoDB
	}
	query := s.db.WithContext(ctx).Model(&models.Post{})
	if since != nil && !since.IsZero() {
		query = query.Where("created_at >= ?", since.UTC())
	}
	var n int64
	err := query.Count(&n).Error
	return n, err
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNoDB
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

func (s *Store) CountWinners(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNoDB
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.NFTWinner{}).Count(&n).Error
	return n, err
}

// --- period runs ------------------------------------------------------------

// RecordPeriodRun upserts the audit row for a period and bumps its attempt
// counter.
func (s *Store) RecordPeriodRun(ctx context.Context, item *models.PeriodRun) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	if item == nil {
		return nil
	}
	if item.LastAttemptAt.IsZero() {
		item.LastAttemptAt = time.Now().UTC()
	}
	if item.Attempts <= 0 {
		item.Attempts = 1
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period_start"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":                item.Status,
			"attempts":              gorm.Expr("period_runs.attempts + 1"),
			"post_id":               item.PostID,
			"like_count":            item.LikeCount,
			"transaction_signature": item.TransactionSignature,
			"last_error":            item.LastError,
			"details":               item.Details,
			"last_attempt_at":       item.LastAttemptAt,
			"updated_at":            time.Now().UTC(),
		}),
	}).Create(item).Error
}

func (s *Store) GetPeriodRun(ctx context.Context, periodStart int64) (*models.PeriodRun, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	var item models.PeriodRun
	err := s.db.WithContext(ctx).
		Where("period_start = ?", periodStart).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPeriodRuns(ctx context.Context, limit int) ([]models.PeriodRun, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	var items []models.PeriodRun
	if err := s.db.WithContext(ctx).
		Model(&models.PeriodRun{}).
		Order("period_start desc").
		Limit(normalizeLimit(limit, 48)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeLimit(limit int, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 500 {
		return 500
	}
	return limit
}

var _ repository.Repository = (*Store)(nil)
