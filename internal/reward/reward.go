// Package reward defines the boundary between the winner pipeline and the
// chain program that records winners and mints their NFTs.
package reward

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrChain covers every rejection or failure reported by the chain,
	// including the program's own duplicate-period protection.
	ErrChain = errors.New("chain error")
	// ErrChainTimeout means the call did not confirm before its deadline. It
	// wraps ErrChain.
	ErrChainTimeout = fmt.Errorf("%w: timed out", ErrChain)
)

// Request carries the arguments of the on-chain winner instruction.
type Request struct {
	PeriodStart int64
	Username    string
	PostID      string
	LikeCount   uint64
}

type Issuer interface {
	IssueReward(ctx context.Context, req Request) (signature string, err error)
}

// Addresses are the program-derived accounts touched by a reward.
type Addresses struct {
	Collection string `json:"collection"`
	Winner     string `json:"winner,omitempty"`
	NFT        string `json:"nft,omitempty"`
}

// AddressDeriver is implemented by issuers that can compute account addresses
// without touching the network.
type AddressDeriver interface {
	DeriveAddresses(periodStart *int64, postID string) (Addresses, error)
}

// ChainError wraps err so that errors.Is(err, ErrChain) holds. A context
// deadline becomes ErrChainTimeout.
func ChainError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrChainTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrChainTimeout, err)
	}
	if errors.Is(err, ErrChain) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrChain, err)
}

// UnconfirmedError is returned when a transaction was submitted but its
// confirmation could not be observed. The transaction may still land.
type UnconfirmedError struct {
	Signature string
	Err       error
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("transaction %s unconfirmed: %v", e.Signature, e.Err)
}

func (e *UnconfirmedError) Unwrap() error { return e.Err }

// SentSignature returns the signature of a submitted but unconfirmed
// transaction carried by err, or "".
func SentSignature(err error) string {
	var ue *UnconfirmedError
	if errors.As(err, &ue) {
		return ue.Signature
	}
	return ""
}

// WithTimeout bounds every IssueReward call made through the returned issuer.
func WithTimeout(inner Issuer, d time.Duration) Issuer {
	if inner == nil || d <= 0 {
		return inner
	}
	return &timeoutIssuer{inner: inner, timeout: d}
}

const unwindGrace = 250 * time.Millisecond

type timeoutIssuer struct {
	inner   Issuer
	timeout time.Duration
}

func (t *timeoutIssuer) IssueReward(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		sig string
		err error
	}
	done := make(chan result, 1)
	go func() {
		sig, err := t.inner.IssueReward(ctx, req)
		done <- result{sig: sig, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", ChainError("issue reward", r.err)
		}
		return r.sig, nil
	case <-ctx.Done():
		// Give the inner call a moment to unwind so a sent signature is kept.
		select {
		case r := <-done:
			if r.err == nil {
				return r.sig, nil
			}
			return "", ChainError("issue reward", errors.Join(ctx.Err(), r.err))
		case <-time.After(unwindGrace):
		}
		return "", ChainError("issue reward", ctx.Err())
	}
}
