package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalitcap23/defess-v3/internal/metrics"
	"github.com/lalitcap23/defess-v3/internal/period"
	"github.com/lalitcap23/defess-v3/internal/repository"
)

const (
	StrategyAggregate = "aggregate"
	StrategyFanout    = "fanout"
)

// Candidate is the most-liked post of a period together with its author.
type Candidate struct {
	PostID              string
	AuthorID            string
	AuthorUsername      string
	AuthorWalletAddress *string
	LikeCount           int64
	CreatedAt           time.Time
}

func (c Candidate) HasWallet() bool {
	return c.AuthorWalletAddress != nil && strings.TrimSpace(*c.AuthorWalletAddress) != ""
}

type OutcomeKind int

const (
	OutcomeNotFound OutcomeKind = iota
	OutcomeFound
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeFailed:
		return "failed"
	default:
		return "not_found"
	}
}

// Outcome of a winner search. Candidate is set only for OutcomeFound and Err
// only for OutcomeFailed.
type Outcome struct {
	Kind      OutcomeKind
	Candidate Candidate
	Err       error
	// Posts is the number of posts created in the period.
	Posts int
}

func Found(c Candidate) Outcome { return Outcome{Kind: OutcomeFound, Candidate: c} }

func NotFound() Outcome { return Outcome{Kind: OutcomeNotFound} }

func Failed(err error) Outcome { return Outcome{Kind: OutcomeFailed, Err: err} }

type WinnerSelector struct {
	Repo           repository.PostReader
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Strategy       string
	MaxConcurrency int
}

// FindWinner picks the most-liked post created inside p. Among equal counts
// the most recently created post wins.
func (s *WinnerSelector) FindWinner(ctx context.Context, p period.Period) Outcome {
	if s == nil || s.Repo == nil {
		return Failed(fmt.Errorf("%w: winner selector not configured", ErrQuery))
	}
	started := time.Now()

	posts, err := s.Repo.ListPostsCreatedBetween(ctx, p.Start(), p.End())
	if err != nil {
		return Failed(fmt.Errorf("%w: list posts for period %d: %v", ErrQuery, p.Unix(), err))
	}
	if s.Logger != nil {
		s.Logger.Info("winner selection",
			zap.Int64("period", p.Unix()),
			zap.Time("start", p.Start()),
			zap.Time("end", p.End()),
			zap.Int("posts", len(posts)),
		)
	}
	if len(posts) == 0 {
		s.Metrics.ObserveSelection(time.Since(started), 0)
		return NotFound()
	}

	var counts map[string]int64
	if s.Strategy == StrategyFanout {
		var failed int
		counts, failed = s.countFanout(ctx, posts)
		if err := ctx.Err(); err != nil {
			return Failed(fmt.Errorf("%w: count likes for period %d: %v", ErrQuery, p.Unix(), err))
		}
		if failed == len(posts) {
			return Failed(fmt.Errorf("%w: count likes for period %d: all %d counts failed", ErrQuery, p.Unix(), failed))
		}
	} else {
		counts, err = s.countAggregate(ctx, posts)
		if err != nil {
			return Failed(fmt.Errorf("%w: count likes for period %d: %v", ErrQuery, p.Unix(), err))
		}
	}
	s.Metrics.ObserveSelection(time.Since(started), len(posts))

	out := pickLeader(posts, counts)
	out.Posts = len(posts)
	if out.Kind == OutcomeFound && s.Logger != nil {
		s.Logger.Info("winner candidate",
			zap.Int64("period", p.Unix()),
			zap.String("post_id", out.Candidate.PostID),
			zap.String("username", out.Candidate.AuthorUsername),
			zap.Int64("likes", out.Candidate.LikeCount),
		)
	}
	return out
}

// pickLeader expects posts newest first. Posts missing from counts are
// either unliked or were skipped after a count error; both rank as zero.
func pickLeader(posts []repository.PostWithAuthor, counts map[string]int64) Outcome {
	var (
		leader   *repository.PostWithAuthor
		maxLikes int64
	)
	for i := range posts {
		n := counts[posts[i].PostID]
		if n > maxLikes {
			maxLikes = n
			leader = &posts[i]
		}
	}
	if leader == nil || maxLikes == 0 {
		return NotFound()
	}
	return Found(Candidate{
		PostID:              leader.PostID,
		AuthorID:            leader.AuthorID,
		AuthorUsername:      leader.AuthorUsername,
		AuthorWalletAddress: leader.AuthorWallet,
		LikeCount:           maxLikes,
		CreatedAt:           leader.CreatedAt,
	})
}

func (s *WinnerSelector) countAggregate(ctx context.Context, posts []repository.PostWithAuthor) (map[string]int64, error) {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PostID)
	}
	return s.Repo.CountLikesByPosts(ctx, ids)
}

// countFanout issues one count per post with bounded concurrency. A failing
// post is logged and left out; the number of such posts is returned.
func (s *WinnerSelector) countFanout(ctx context.Context, posts []repository.PostWithAuthor) (map[string]int64, int) {
	limit := s.MaxConcurrency
	if limit <= 0 {
		limit = 8
	}
	var (
		mu     sync.Mutex
		counts = make(map[string]int64, len(posts))
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range posts {
		postID := p.PostID
		g.Go(func() error {
			n, err := s.Repo.CountLikes(gctx, postID)
			if err != nil {
				if s.Logger != nil {
					s.Logger.Warn("count likes failed, skipping post", zap.String("post_id", postID), zap.Error(err))
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			counts[postID] = n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return counts, failed
}
