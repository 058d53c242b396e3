package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lalitcap23/defess-v3/internal/lock"
	"github.com/lalitcap23/defess-v3/internal/models"
	"github.com/lalitcap23/defess-v3/internal/notify"
	"github.com/lalitcap23/defess-v3/internal/reward"
)

func newProcessor(repo *fakeRepo, chain reward.Issuer) *PeriodProcessor {
	return &PeriodProcessor{
		Selector: &WinnerSelector{Repo: repo},
		Issuer:   chain,
		Repo:     repo,
		// Seven minutes into the period after testPeriod.
		Now: func() time.Time { return testPeriod.End().Add(7 * time.Minute) },
	}
}

func TestProcessPreviousPeriod_NoWinner(t *testing.T) {
	repo := newFakeRepo()
	chain := newFakeChain()
	res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())

	require.True(t, res.Success)
	require.Equal(t, KindNoWinner, res.Kind)
	require.Equal(t, "No winner found for previous period", res.Message)
	require.Equal(t, testPeriod.Unix(), res.Period)
	require.Zero(t, chain.callCount())
	require.Equal(t, models.RunStatusNoWinner, repo.runs[testPeriod.Unix()].Status)
}

func TestProcessPreviousPeriod_Success(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 2)
	repo.addPost("p2", "bob", strPtr("wallet-b"), at(4), 5)
	chain := newFakeChain()

	res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())
	require.True(t, res.Success, res.Error)
	require.Equal(t, KindSuccess, res.Kind)
	require.Equal(t, "sig-p2", res.Signature)
	require.Equal(t, "Winner processed: bob (sig-p2)", res.Message)

	req := chain.periods[testPeriod.Unix()]
	require.Equal(t, reward.Request{PeriodStart: testPeriod.Unix(), Username: "bob", PostID: "p2", LikeCount: 5}, req)

	w := repo.winners[testPeriod.Unix()]
	require.Equal(t, "p2", w.PostID)
	require.Equal(t, "u-bob", w.UserID)
	require.Equal(t, int64(5), w.LikeCount)
	require.Equal(t, models.MintStatusMinted, w.MintStatus)
	require.NotNil(t, w.TransactionSignature)
	require.Equal(t, "sig-p2", *w.TransactionSignature)

	require.Equal(t, testPeriod.Start(), repo.flagged["p2"])
	run := repo.runs[testPeriod.Unix()]
	require.Equal(t, models.RunStatusMinted, run.Status)
	require.Equal(t, "sig-p2", *run.TransactionSignature)
}

func TestProcessPreviousPeriod_IneligibleWinner(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("  "), at(3), 8)
	chain := newFakeChain()

	res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())
	require.False(t, res.Success)
	require.Equal(t, KindIneligible, res.Kind)
	require.False(t, res.Kind.Failure())
	require.Contains(t, res.Error, "User has no wallet address")
	require.Zero(t, chain.callCount())
	require.Zero(t, repo.winnerCount())
	require.Equal(t, models.RunStatusIneligible, repo.runs[testPeriod.Unix()].Status)
}

func TestProcessPreviousPeriod_ChainFailurePersistsNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	chain := newFakeChain()
	chain.err = errors.New("insufficient funds")

	res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())
	require.False(t, res.Success)
	require.Equal(t, KindChainFailed, res.Kind)
	require.Contains(t, res.Error, "insufficient funds")
	require.Zero(t, repo.winnerCount())
	require.Empty(t, repo.flagged)

	run := repo.runs[testPeriod.Unix()]
	require.Equal(t, models.RunStatusChainFailed, run.Status)
	require.NotNil(t, run.LastError)
}

func TestProcessPreviousPeriod_UnconfirmedKeepsSignature(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	chain := newFakeChain()
	chain.err = &reward.UnconfirmedError{Signature: "5xSent", Err: context.Canceled}

	res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())
	require.False(t, res.Success)
	require.Equal(t, KindChainFailed, res.Kind)
	require.Equal(t, "5xSent", res.Signature)
	require.Zero(t, repo.winnerCount())

	run := repo.runs[testPeriod.Unix()]
	require.Equal(t, models.RunStatusChainFailed, run.Status)
	require.NotNil(t, run.TransactionSignature)
	require.Equal(t, "5xSent", *run.TransactionSignature)
}

func TestProcessPreviousPeriod_QueryFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("connection reset")
	chain := newFakeChain()

	res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())
	require.False(t, res.Success)
	require.Equal(t, KindQueryFailed, res.Kind)
	require.True(t, res.Kind.Failure())
	require.Contains(t, res.Error, "connection reset")
	require.Zero(t, chain.callCount())

	run := repo.runs[testPeriod.Unix()]
	require.Equal(t, models.RunStatusQueryFailed, run.Status)
	require.NotNil(t, run.LastError)
}

func TestProcessPreviousPeriod_FanoutCountsAllFail(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	repo.countErr["p1"] = errors.New("connection reset")
	chain := newFakeChain()
	p := newProcessor(repo, chain)
	p.Selector.Strategy = StrategyFanout

	res := p.ProcessPreviousPeriod(context.Background())
	require.False(t, res.Success)
	require.Equal(t, KindQueryFailed, res.Kind)
	require.Equal(t, models.RunStatusQueryFailed, repo.runs[testPeriod.Unix()].Status)
}

func TestProcessPreviousPeriod_UnusableUsernameIsIneligible(t *testing.T) {
	for _, name := range []string{"", "a-username-that-is-longer-than-32-bytes"} {
		repo := newFakeRepo()
		repo.addPost("p1", name, strPtr("wallet-a"), at(3), 8)
		chain := newFakeChain()

		res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())
		require.False(t, res.Success, name)
		require.Equal(t, KindIneligible, res.Kind, name)
		require.False(t, res.Kind.Failure())
		require.Zero(t, chain.callCount())
	}
}

func TestProcessPreviousPeriod_ChainTimeout(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	chain := newFakeChain()
	chain.block = true

	p := newProcessor(repo, chain)
	p.IssueTimeout = 20 * time.Millisecond
	res := p.ProcessPreviousPeriod(context.Background())
	require.False(t, res.Success)
	require.Equal(t, KindChainTimeout, res.Kind)
	require.Zero(t, repo.winnerCount())
}

func TestProcessPreviousPeriod_PersistenceFailureKeepsSignature(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	repo.insertErr = errors.New("connection refused")
	chain := newFakeChain()

	res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())
	require.False(t, res.Success)
	require.Equal(t, KindPersistFailed, res.Kind)
	require.Equal(t, "sig-p1", res.Signature)
	require.Empty(t, repo.flagged)
	require.Equal(t, models.RunStatusPersistFailed, repo.runs[testPeriod.Unix()].Status)
}

func TestProcessPreviousPeriod_PostFlagFailureIsNotFatal(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	repo.markErr = errors.New("row locked")
	chain := newFakeChain()

	res := newProcessor(repo, chain).ProcessPreviousPeriod(context.Background())
	require.True(t, res.Success)
	require.Equal(t, 1, repo.winnerCount())
}

func TestProcessPeriod_SecondRunRejectedByChain(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	chain := newFakeChain()
	p := newProcessor(repo, chain)

	first := p.ProcessPeriod(context.Background(), testPeriod)
	require.True(t, first.Success)
	second := p.ProcessPeriod(context.Background(), testPeriod)
	require.False(t, second.Success)
	require.Equal(t, KindChainFailed, second.Kind)
	require.Equal(t, 1, repo.winnerCount())
	require.Equal(t, 2, repo.runs[testPeriod.Unix()].Attempts)
}

func TestProcessPeriod_ConcurrentInvocations(t *testing.T) {
	for _, withLock := range []bool{false, true} {
		repo := newFakeRepo()
		repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
		repo.addPost("p2", "bob", strPtr("wallet-b"), at(5), 1)
		chain := newFakeChain()
		chain.delay = 5 * time.Millisecond
		p := newProcessor(repo, chain)
		if withLock {
			p.Locker = lock.NewMemoryLocker()
		}

		const n = 8
		results := make([]Result, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = p.ProcessPeriod(context.Background(), testPeriod)
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, r := range results {
			if r.Success {
				successes++
			}
		}
		require.Equal(t, 1, successes, "withLock=%v", withLock)
		require.Equal(t, 1, repo.winnerCount(), "withLock=%v", withLock)
		require.Equal(t, "p1", repo.winners[testPeriod.Unix()].PostID)
	}
}

func TestProcessPeriod_BusyWhenLockHeld(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	chain := newFakeChain()
	locker := lock.NewMemoryLocker()
	release, ok, err := locker.TryAcquire(context.Background(), lock.PeriodKey(testPeriod.Unix()), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	p := newProcessor(repo, chain)
	p.Locker = locker
	res := p.ProcessPeriod(context.Background(), testPeriod)
	require.False(t, res.Success)
	require.Equal(t, KindBusy, res.Kind)
	require.Zero(t, chain.callCount())
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.WinnerEvent
	err    error
}

func (r *recordingNotifier) AnnounceWinner(_ context.Context, ev notify.WinnerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestProcessPeriod_AnnouncesWinner(t *testing.T) {
	repo := newFakeRepo()
	repo.addPost("p1", "alice", strPtr("wallet-a"), at(3), 8)
	n := &recordingNotifier{err: errors.New("webhook down")}
	p := newProcessor(repo, newFakeChain())
	p.Notifier = n

	res := p.ProcessPeriod(context.Background(), testPeriod)
	require.True(t, res.Success)
	require.Len(t, n.events, 1)
	require.Equal(t, "alice", n.events[0].Username)
	require.Equal(t, "sig-p1", n.events[0].Signature)
}

func TestCheckEligible(t *testing.T) {
	require.ErrorIs(t, checkEligible(Candidate{AuthorUsername: "bob", LikeCount: 3}), ErrIneligibleWinner)
	require.ErrorIs(t, checkEligible(Candidate{AuthorUsername: "bob", AuthorWalletAddress: strPtr("w")}), ErrIneligibleWinner)
	require.ErrorIs(t, checkEligible(Candidate{AuthorWalletAddress: strPtr("w"), LikeCount: 1}), ErrIneligibleWinner)
	require.NoError(t, checkEligible(Candidate{AuthorUsername: "bob", AuthorWalletAddress: strPtr("w"), LikeCount: 1}))
}
