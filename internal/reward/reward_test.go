package reward

import (
	"context"
	"errors"
	"testing"
	"time"
)

type issuerFunc func(ctx context.Context, req Request) (string, error)

func (f issuerFunc) IssueReward(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func TestWithTimeout_HungCallBecomesChainTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	hung := issuerFunc(func(ctx context.Context, req Request) (string, error) {
		<-release
		return "late", nil
	})
	start := time.Now()
	_, err := WithTimeout(hung, 20*time.Millisecond).IssueReward(context.Background(), Request{PeriodStart: 1800})
	if !errors.Is(err, ErrChainTimeout) {
		t.Fatalf("err=%v want ErrChainTimeout", err)
	}
	if !errors.Is(err, ErrChain) {
		t.Fatalf("timeout should also match ErrChain: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout took too long")
	}
}

func TestWithTimeout_PassesThroughSignature(t *testing.T) {
	ok := issuerFunc(func(ctx context.Context, req Request) (string, error) {
		if _, has := ctx.Deadline(); !has {
			t.Errorf("inner call has no deadline")
		}
		return "sig-" + req.PostID, nil
	})
	sig, err := WithTimeout(ok, time.Second).IssueReward(context.Background(), Request{PostID: "p1"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig != "sig-p1" {
		t.Fatalf("sig=%q", sig)
	}
}

func TestWithTimeout_WrapsPlainErrors(t *testing.T) {
	failing := issuerFunc(func(ctx context.Context, req Request) (string, error) {
		return "", errors.New("custom program error: 0x0")
	})
	_, err := WithTimeout(failing, time.Second).IssueReward(context.Background(), Request{})
	if !errors.Is(err, ErrChain) {
		t.Fatalf("err=%v want ErrChain", err)
	}
	if errors.Is(err, ErrChainTimeout) {
		t.Fatalf("plain failure must not be a timeout: %v", err)
	}
}

func TestChainError(t *testing.T) {
	if ChainError("op", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	wrapped := ChainError("send", context.DeadlineExceeded)
	if !errors.Is(wrapped, ErrChainTimeout) {
		t.Fatalf("deadline should map to timeout: %v", wrapped)
	}
	if again := ChainError("outer", wrapped); again != wrapped {
		t.Fatalf("already classified errors should be returned as is")
	}
}

func TestSentSignature_SurvivesClassification(t *testing.T) {
	if SentSignature(errors.New("plain")) != "" {
		t.Fatalf("plain error has no signature")
	}
	err := ChainError("confirm transaction", &UnconfirmedError{Signature: "5xSig", Err: context.Canceled})
	if !errors.Is(err, ErrChain) {
		t.Fatalf("err=%v want ErrChain", err)
	}
	if got := SentSignature(err); got != "5xSig" {
		t.Fatalf("signature=%q", got)
	}

	timedOut := ChainError("confirm transaction", &UnconfirmedError{Signature: "5xSig", Err: context.DeadlineExceeded})
	if !errors.Is(timedOut, ErrChainTimeout) {
		t.Fatalf("err=%v want ErrChainTimeout", timedOut)
	}
	if got := SentSignature(ChainError("issue reward", timedOut)); got != "5xSig" {
		t.Fatalf("signature lost on rewrap: %q", got)
	}
}

func TestWithTimeout_KeepsSignatureOfUnconfirmedSend(t *testing.T) {
	sent := issuerFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", &UnconfirmedError{Signature: "5xLate", Err: ctx.Err()}
	})
	_, err := WithTimeout(sent, 20*time.Millisecond).IssueReward(context.Background(), Request{PeriodStart: 1800})
	if !errors.Is(err, ErrChainTimeout) {
		t.Fatalf("err=%v want ErrChainTimeout", err)
	}
	if got := SentSignature(err); got != "5xLate" {
		t.Fatalf("signature=%q", got)
	}
}
