package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lalitcap23/defess-v3/internal/models"
	"github.com/lalitcap23/defess-v3/internal/repository"
	"github.com/lalitcap23/defess-v3/internal/reward"
)

type fakeRepo struct {
	mu sync.Mutex

	posts    []repository.PostWithAuthor
	likes    map[string]int64
	countErr map[string]error
	listErr  error
	aggErr   error
	users    int64

	winners   map[int64]models.NFTWinner
	flagged   map[string]time.Time
	runs      map[int64]models.PeriodRun
	insertErr error
	markErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		likes:    map[string]int64{},
		countErr: map[string]error{},
		winners:  map[int64]models.NFTWinner{},
		flagged:  map[string]time.Time{},
		runs:     map[int64]models.PeriodRun{},
	}
}

func (f *fakeRepo) addPost(id, author string, wallet *string, createdAt time.Time, likes int64) {
	f.posts = append(f.posts, repository.PostWithAuthor{
		PostID:         id,
		AuthorID:       "u-" + author,
		AuthorUsername: author,
		AuthorWallet:   wallet,
		CreatedAt:      createdAt,
	})
	if likes > 0 {
		f.likes[id] = likes
	}
}

func (f *fakeRepo) Ping(context.Context) error { return nil }

func (f *fakeRepo) ListPostsCreatedBetween(_ context.Context, start, end time.Time) ([]repository.PostWithAuthor, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []repository.PostWithAuthor
	for _, p := range f.posts {
		if !p.CreatedAt.Before(start) && p.CreatedAt.Before(end) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) CountLikes(_ context.Context, postID string) (int64, error) {
	if err := f.countErr[postID]; err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.likes[postID], nil
}

func (f *fakeRepo) CountLikesByPosts(_ context.Context, ids []string) (map[string]int64, error) {
	if f.aggErr != nil {
		return nil, f.aggErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int64{}
	for _, id := range ids {
		if n := f.likes[id]; n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertWinner(_ context.Context, w *models.NFTWinner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.winners[w.PeriodStart]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	f.winners[w.PeriodStart] = *w
	return nil
}

func (f *fakeRepo) MarkPostWinner(_ context.Context, postID string, periodStart time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.flagged[postID] = periodStart
	return nil
}

func (f *fakeRepo) RecordPeriodRun(_ context.Context, item *models.PeriodRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.runs[item.PeriodStart]
	next := *item
	next.Attempts = cur.Attempts + 1
	f.runs[item.PeriodStart] = next
	return nil
}

func (f *fakeRepo) GetPeriodRun(_ context.Context, periodStart int64) (*models.PeriodRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[periodStart]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeRepo) ListPeriodRuns(context.Context, int) ([]models.PeriodRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PeriodRun, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRepo) GetWinnerByPeriod(_ context.Context, periodStart int64) (*models.NFTWinner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.winners[periodStart]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (f *fakeRepo) ListRecentWinners(context.Context, int) ([]models.NFTWinner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.NFTWinner, 0, len(f.winners))
	for _, w := range f.winners {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeRepo) WinnerStatusCounts(context.Context, time.Time) (repository.WinnerStatusCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out repository.WinnerStatusCounts
	for _, w := range f.winners {
		out.Total++
		if w.MintStatus == models.MintStatusMinted {
			out.Minted++
		}
	}
	return out, nil
}

func (f *fakeRepo) CountPosts(_ context.Context, since *time.Time) (int64, error) {
	var n int64
	for _, p := range f.posts {
		if since == nil || !p.CreatedAt.Before(*since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CountUsers(context.Context) (int64, error) { return f.users, nil }

func (f *fakeRepo) CountWinners(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.winners)), nil
}

func (f *fakeRepo) winnerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.winners)
}

// fakeChain rejects a second winner for the same period the way the program's
// winner account does.
type fakeChain struct {
	mu      sync.Mutex
	periods map[int64]reward.Request
	calls   int
	err     error
	block   bool
	delay   time.Duration
}

func newFakeChain() *fakeChain {
	return &fakeChain{periods: map[int64]reward.Request{}}
}

func (c *fakeChain) IssueReward(ctx context.Context, req reward.Request) (string, error) {
	if c.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if _, ok := c.periods[req.PeriodStart]; ok {
		return "", errors.New("winner account already in use")
	}
	c.periods[req.PeriodStart] = req
	return "sig-" + req.PostID, nil
}

func (c *fakeChain) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
