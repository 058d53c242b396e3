package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/lalitcap23/defess-v3/internal/lock"
	"github.com/lalitcap23/defess-v3/internal/metrics"
	"github.com/lalitcap23/defess-v3/internal/models"
	"github.com/lalitcap23/defess-v3/internal/notify"
	"github.com/lalitcap23/defess-v3/internal/period"
	"github.com/lalitcap23/defess-v3/internal/repository"
	"github.com/lalitcap23/defess-v3/internal/reward"
)

type ResultKind string

const (
	KindSuccess       ResultKind = "success"
	KindNoWinner      ResultKind = "no_winner"
	KindIneligible    ResultKind = "ineligible"
	KindBusy          ResultKind = "busy"
	KindQueryFailed   ResultKind = "query_failed"
	KindChainFailed   ResultKind = "chain_failed"
	KindChainTimeout  ResultKind = "chain_timeout"
	KindPersistFailed ResultKind = "persist_failed"
)

// Failure reports whether the run hit an infrastructure error, as opposed to
// a normal "nothing to do" outcome.
func (k ResultKind) Failure() bool {
	switch k {
	case KindQueryFailed, KindChainFailed, KindChainTimeout, KindPersistFailed:
		return true
	}
	return false
}

// maxUsernameBytes is the username capacity of the on-chain winner account.
const maxUsernameBytes = 32

type Result struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Signature string     `json:"signature,omitempty"`
	Error     string     `json:"error,omitempty"`
	Kind      ResultKind `json:"kind"`
	Period    int64      `json:"period_start"`
}

// WinnerStore is the write side of the processor.
type WinnerStore interface {
	repository.WinnerWriter
	RecordPeriodRun(ctx context.Context, item *models.PeriodRun) error
}

type WinnerNotifier interface {
	AnnounceWinner(ctx context.Context, ev notify.WinnerEvent) error
}

type PeriodProcessor struct {
	Selector *WinnerSelector
	Issuer   reward.Issuer
	Repo     WinnerStore
	Locker   lock.Locker
	Notifier WinnerNotifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
	// IssueTimeout bounds the chain call; zero leaves only ctx.
	IssueTimeout time.Duration
	LockTTL      time.Duration
}

func (p *PeriodProcessor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// ProcessPreviousPeriod runs one cycle for the period immediately before the
// one containing the current time.
func (p *PeriodProcessor) ProcessPreviousPeriod(ctx context.Context) Result {
	return p.ProcessPeriod(ctx, period.Previous(p.now()))
}

func (p *PeriodProcessor) ProcessPeriod(ctx context.Context, per period.Period) Result {
	res := p.process(ctx, per)
	res.Period = per.Unix()
	p.Metrics.ObserveRun(string(res.Kind), per.Unix())
	if p.Logger != nil {
		fields := []zap.Field{
			zap.Int64("period", per.Unix()),
			zap.String("kind", string(res.Kind)),
			zap.Bool("success", res.Success),
		}
		if res.Signature != "" {
			fields = append(fields, zap.String("signature", res.Signature))
		}
		if res.Error != "" {
			fields = append(fields, zap.String("error", res.Error))
		}
		if res.Kind.Failure() {
			p.Logger.Error("period processing failed", fields...)
		} else {
			p.Logger.Info("period processed", fields...)
		}
	}
	return res
}

func (p *PeriodProcessor) process(ctx context.Context, per period.Period) Result {
	if p.Selector == nil || p.Issuer == nil || p.Repo == nil {
		return failure(KindQueryFailed, errors.New("period processor not configured"))
	}

	if p.Locker != nil {
		ttl := p.LockTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		release, ok, err := p.Locker.TryAcquire(ctx, lock.PeriodKey(per.Unix()), ttl)
		if err != nil {
			// Lock backend down: the chain still rejects duplicates.
			if p.Logger != nil {
				p.Logger.Warn("period lock unavailable, continuing", zap.Int64("period", per.Unix()), zap.Error(err))
			}
		} else if !ok {
			return Result{
				Success: false,
				Kind:    KindBusy,
				Message: fmt.Sprintf("Period %d is already being processed", per.Unix()),
			}
		} else {
			defer release()
		}
	}

	out := p.Selector.FindWinner(ctx, per)
	switch out.Kind {
	case OutcomeFailed:
		p.recordRun(ctx, per, models.RunStatusQueryFailed, nil, "", out.Err, map[string]any{"posts": out.Posts})
		return failure(KindQueryFailed, out.Err)
	case OutcomeNotFound:
		p.recordRun(ctx, per, models.RunStatusNoWinner, nil, "", nil, map[string]any{"posts": out.Posts})
		return Result{Success: true, Kind: KindNoWinner, Message: "No winner found for previous period"}
	}

	c := out.Candidate
	if err := checkEligible(c); err != nil {
		p.recordRun(ctx, per, models.RunStatusIneligible, &c, "", err, map[string]any{"posts": out.Posts, "username": c.AuthorUsername})
		return Result{
			Success: false,
			Kind:    KindIneligible,
			Message: "Failed to process winner: " + err.Error(),
			Error:   err.Error(),
		}
	}

	sig, err := p.issue(ctx, per, c)
	if err != nil {
		kind := KindChainFailed
		if errors.Is(err, reward.ErrChainTimeout) {
			kind = KindChainTimeout
		}
		// A submitted but unconfirmed transaction may still land; keep its
		// signature so the period can be reconciled against the chain.
		sent := reward.SentSignature(err)
		p.recordRun(ctx, per, models.RunStatusChainFailed, &c, sent, err, map[string]any{"posts": out.Posts, "timeout": kind == KindChainTimeout})
		res := failure(kind, err)
		res.Signature = sent
		return res
	}

	if err := p.persist(ctx, per, c, sig); err != nil {
		p.recordRun(ctx, per, models.RunStatusPersistFailed, &c, sig, err, nil)
		res := failure(KindPersistFailed, err)
		res.Signature = sig
		return res
	}
	p.recordRun(ctx, per, models.RunStatusMinted, &c, sig, nil, map[string]any{"posts": out.Posts, "username": c.AuthorUsername})
	p.Metrics.ObserveWinner(c.LikeCount)
	p.announce(ctx, per, c, sig)

	return Result{
		Success:   true,
		Kind:      KindSuccess,
		Signature: sig,
		Message:   fmt.Sprintf("Winner processed: %s (%s)", c.AuthorUsername, sig),
	}
}

func checkEligible(c Candidate) error {
	if strings.TrimSpace(c.AuthorUsername) == "" {
		return fmt.Errorf("%w: Post has no author", ErrIneligibleWinner)
	}
	if len(c.AuthorUsername) > maxUsernameBytes {
		return fmt.Errorf("%w: Username longer than %d bytes", ErrIneligibleWinner, maxUsernameBytes)
	}
	if !c.HasWallet() {
		return fmt.Errorf("%w: User has no wallet address", ErrIneligibleWinner)
	}
	if c.LikeCount < 1 {
		return fmt.Errorf("%w: Not enough likes (minimum 1)", ErrIneligibleWinner)
	}
	return nil
}

func (p *PeriodProcessor) issue(ctx context.Context, per period.Period, c Candidate) (string, error) {
	issuer := p.Issuer
	if p.IssueTimeout > 0 {
		issuer = reward.WithTimeout(issuer, p.IssueTimeout)
	}
	started := time.Now()
	sig, err := issuer.IssueReward(ctx, reward.Request{
		PeriodStart: per.Unix(),
		Username:    c.AuthorUsername,
		PostID:      c.PostID,
		LikeCount:   uint64(c.LikeCount),
	})
	err = reward.ChainError("issue reward", err)
	p.Metrics.ObserveIssue(time.Since(started), err)
	return sig, err
}

// persist writes the winner row, then flags the post. The flag is best effort:
// the winner row is the record of truth.
func (p *PeriodProcessor) persist(ctx context.Context, per period.Period, c Candidate, sig string) error {
	signature := sig
	w := &models.NFTWinner{
		PeriodStart:          per.Unix(),
		PostID:               c.PostID,
		UserID:               c.AuthorID,
		LikeCount:            c.LikeCount,
		MintStatus:           models.MintStatusMinted,
		TransactionSignature: &signature,
		SelectedAt:           p.now().UTC(),
	}
	if err := p.Repo.InsertWinner(ctx, w); err != nil {
		return fmt.Errorf("%w: insert winner for period %d: %v", ErrPersistence, per.Unix(), err)
	}
	if err := p.Repo.MarkPostWinner(ctx, c.PostID, per.Start()); err != nil && p.Logger != nil {
		p.Logger.Warn("flag winning post failed", zap.String("post_id", c.PostID), zap.Int64("period", per.Unix()), zap.Error(err))
	}
	return nil
}

func (p *PeriodProcessor) announce(ctx context.Context, per period.Period, c Candidate, sig string) {
	if p.Notifier == nil {
		return
	}
	err := p.Notifier.AnnounceWinner(ctx, notify.WinnerEvent{
		PeriodStart: per.Unix(),
		PostID:      c.PostID,
		Username:    c.AuthorUsername,
		LikeCount:   c.LikeCount,
		Signature:   sig,
	})
	if err != nil && p.Logger != nil {
		p.Logger.Warn("winner announcement failed", zap.Int64("period", per.Unix()), zap.Error(err))
	}
}

func (p *PeriodProcessor) recordRun(ctx context.Context, per period.Period, status string, c *Candidate, sig string, runErr error, details map[string]any) {
	run := &models.PeriodRun{
		PeriodStart:   per.Unix(),
		Status:        status,
		LastAttemptAt: p.now().UTC(),
	}
	if c != nil {
		postID := c.PostID
		likes := c.LikeCount
		run.PostID = &postID
		run.LikeCount = &likes
	}
	if sig != "" {
		run.TransactionSignature = &sig
	}
	if runErr != nil {
		msg := runErr.Error()
		run.LastError = &msg
	}
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			run.Details = datatypes.JSON(b)
		}
	}
	if err := p.Repo.RecordPeriodRun(ctx, run); err != nil && p.Logger != nil {
		p.Logger.Warn("record period run failed", zap.Int64("period", per.Unix()), zap.Error(err))
	}
}

func failure(kind ResultKind, err error) Result {
	msg := "Unknown error"
	if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	return Result{Success: false, Kind: kind, Message: msg, Error: msg}
}
